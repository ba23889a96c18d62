package domain

import "time"

// Provider records how a principal was first created.
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
)

// Profile holds role-specific, optional profile fields.
type Profile struct {
	Username     string     `json:"username,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	PhotoKey     string     `json:"photo_key,omitempty"`
	BusinessName string     `json:"business_name,omitempty"`
}

// Principal is any authenticable actor: admin, seller or end-user.
type Principal struct {
	ID              string
	Role            Role
	Email           string
	PasswordHash    *string
	Name            string
	Profile         Profile
	Provider        Provider
	ProviderSubject *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword is false for identity-provider-only accounts.
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != nil && *p.PasswordHash != ""
}
