package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of platform roles. New roles must be added here and
// to every exhaustive switch over Role.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RolePsychiatrist
	RoleAssociationMember
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleStudent:           "student",
	RolePsychiatrist:      "psychiatrist",
	RoleAssociationMember: "association_member",
	RoleAdmin:             "admin",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRole maps a role claim onto the enum.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// MarshalText lets Role travel as its claim string in JSON.
func (r Role) MarshalText() ([]byte, error) {
	if r == RoleUnknown {
		return nil, fmt.Errorf("cannot marshal unknown role")
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses a role claim.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the authenticated caller as asserted by the auth collaborator.
type Identity struct {
	UserID         string `json:"user_id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}
