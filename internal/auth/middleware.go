package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

type ctxKey struct{}

// Options configures the AuthContext middleware.
type Options struct {
	Secret string
	Issuer string
	// DevHeaders accepts X-Debug-User-ID, X-Debug-Role and X-Debug-Org in
	// place of a token. Never enable in production.
	DevHeaders bool
	Logger     *slog.Logger
}

// AuthContext attaches the caller's identity to the request context when a
// valid bearer token (or, in dev mode, debug headers) is present. Requests
// without one pass through unchanged; handlers decide whether to answer 401.
func AuthContext(opts Options) func(http.Handler) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r.Header.Get("Authorization")); token != "" && opts.Secret != "" {
				claims, err := ParseToken(opts.Secret, opts.Issuer, token)
				if err != nil {
					log.Debug("rejecting bearer token", "err", err)
					next.ServeHTTP(w, r)
					return
				}
				id, err := claims.Identity()
				if err != nil {
					log.Debug("rejecting token claims", "err", err)
					next.ServeHTTP(w, r)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}

			if opts.DevHeaders {
				if id, ok := debugIdentity(r); ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func debugIdentity(r *http.Request) (model.Identity, bool) {
	uid := strings.TrimSpace(r.Header.Get("X-Debug-User-ID"))
	if uid == "" {
		return model.Identity{}, false
	}
	role := model.RoleStudent
	if raw := r.Header.Get("X-Debug-Role"); strings.TrimSpace(raw) != "" {
		parsed, err := model.ParseRole(raw)
		if err != nil {
			return model.Identity{}, false
		}
		role = parsed
	}
	return model.Identity{
		UserID:         uid,
		Role:           role,
		OrganizationID: strings.TrimSpace(r.Header.Get("X-Debug-Org")),
	}, true
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity attached by AuthContext.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(model.Identity)
	return id, ok
}

func bearerToken(authHeader string) string {
	if strings.TrimSpace(authHeader) == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
