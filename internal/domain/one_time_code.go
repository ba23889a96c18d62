package domain

import "time"

// CodePurpose scopes a one-time code to a single flow.
type CodePurpose string

const (
	CodePurposeLogin         CodePurpose = "LOGIN"
	CodePurposePasswordReset CodePurpose = "PASSWORD_RESET"
)

// CodePurposes lists every flow a code can be issued for.
var CodePurposes = []CodePurpose{CodePurposeLogin, CodePurposePasswordReset}

// OneTimeCode is a pending login or password-reset confirmation.
type OneTimeCode struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	PrincipalID string      `json:"principal_id"`
	Purpose     CodePurpose `json:"purpose"`
	CodeHash    string      `json:"code_hash"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Expired reports whether the code is past its validity window.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
