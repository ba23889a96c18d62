package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role differentiates the three principal collections.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleSeller Role = "SELLER"
	RoleUser   Role = "USER"
)

// Roles lists every principal role.
var Roles = []Role{RoleAdmin, RoleSeller, RoleUser}

// ParseRole accepts role names in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleSeller, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Slug is the lowercase form used in URLs and storage keys.
func (r Role) Slug() string {
	return strings.ToLower(string(r))
}

// TokenKind separates full sessions from pre-confirmation tickets.
type TokenKind string

const (
	TokenKindSession TokenKind = "session"
	TokenKindPending TokenKind = "pending"
)

// Token represents issued authentication tokens metadata.
type Token struct {
	Value       string
	Kind        TokenKind
	PrincipalID string
	Role        Role
	ExpiresAt   time.Time
}

// NormalizeEmail is applied at every lookup and uniqueness check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
