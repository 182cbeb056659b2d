package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

const (
	testSecret = "secret"
	testIssuer = "community-auth"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken(testSecret, testIssuer, time.Hour, Claims{
		UserID: "u1", Role: "association_member", OrganizationID: "O1",
	})
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	claims, err := ParseToken(testSecret, testIssuer, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	id, err := claims.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	want := model.Identity{UserID: "u1", Role: model.RoleAssociationMember, OrganizationID: "O1"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, err := NewAccessToken(testSecret, testIssuer, time.Hour, Claims{UserID: "u1", Role: "student"})
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	expired, err := NewAccessToken(testSecret, testIssuer, -time.Minute, Claims{UserID: "u1", Role: "student"})
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	cases := []struct {
		name, secret, issuer, token string
	}{
		{"wrong secret", "other", testIssuer, good},
		{"wrong issuer", testSecret, "someone-else", good},
		{"expired", testSecret, testIssuer, expired},
		{"garbage", testSecret, testIssuer, "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseToken(tc.secret, tc.issuer, tc.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestClaimsIdentityRejectsUnknownRole(t *testing.T) {
	c := Claims{UserID: "u1", Role: "superuser"}
	if _, err := c.Identity(); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	c = Claims{Role: "student"}
	if _, err := c.Identity(); err == nil {
		t.Fatalf("expected missing user id to be rejected")
	}
}

func serveWith(opts Options, req *http.Request) (model.Identity, bool) {
	var (
		got model.Identity
		ok  bool
	)
	h := AuthContext(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFrom(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestAuthContextBearer(t *testing.T) {
	token, err := NewAccessToken(testSecret, testIssuer, time.Hour, Claims{UserID: "u7", Role: "psychiatrist"})
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	id, ok := serveWith(Options{Secret: testSecret, Issuer: testIssuer}, req)
	if !ok || id.UserID != "u7" || id.Role != model.RolePsychiatrist {
		t.Fatalf("unexpected identity %+v (ok=%v)", id, ok)
	}

	req.Header.Set("Authorization", "Bearer tampered."+token)
	if _, ok := serveWith(Options{Secret: testSecret, Issuer: testIssuer}, req); ok {
		t.Fatalf("invalid token must not yield an identity")
	}
}

func TestAuthContextDevHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-User-ID", "u1")
	req.Header.Set("X-Debug-Role", "association_member")
	req.Header.Set("X-Debug-Org", "O1")

	if _, ok := serveWith(Options{Secret: testSecret}, req); ok {
		t.Fatalf("debug headers must be ignored unless enabled")
	}
	id, ok := serveWith(Options{DevHeaders: true}, req)
	if !ok || id.Role != model.RoleAssociationMember || id.OrganizationID != "O1" {
		t.Fatalf("unexpected identity %+v (ok=%v)", id, ok)
	}

	req.Header.Set("X-Debug-Role", "wizard")
	if _, ok := serveWith(Options{DevHeaders: true}, req); ok {
		t.Fatalf("unknown debug role must not yield an identity")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
