package dto

import "time"

// RegisterRequest payload for new principals of any role.
type RegisterRequest struct {
	Name         string `json:"name" validate:"required,min=2"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	Username     string `json:"username" validate:"omitempty,min=3,max=32"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	BusinessName string `json:"businessName" validate:"omitempty,max=120"`
}

// LoginRequest payload for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyCodeRequest confirms a login code. Either OtpID or Ticket identifies the code.
type VerifyCodeRequest struct {
	OtpID            string `json:"otpId" validate:"required_without=Ticket"`
	Ticket           string `json:"ticket" validate:"required_without=OtpID"`
	VerificationCode string `json:"verificationCode" validate:"required,numeric"`
}

// IdentityGrantRequest carries an authorization code or a signed ID token.
type IdentityGrantRequest struct {
	Code       string `json:"code" validate:"required_without=Credential"`
	Credential string `json:"credential" validate:"required_without=Code"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// ForgotPasswordRequest starts a code-based password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a code-based password reset.
type ResetPasswordRequest struct {
	OtpID            string `json:"otpId" validate:"required"`
	VerificationCode string `json:"verificationCode" validate:"required,numeric"`
	Email            string `json:"email" validate:"omitempty,email"`
	NewPassword      string `json:"newPassword" validate:"required,min=8"`
	ConfirmPassword  string `json:"confirmPassword" validate:"required"`
}

// IdentityResetRequest completes a password reset proven by an identity-provider grant.
type IdentityResetRequest struct {
	Code            string `json:"code" validate:"required_without=Credential"`
	Credential      string `json:"credential" validate:"required_without=Code"`
	Email           string `json:"email" validate:"omitempty,email"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// ChangePasswordRequest updates the password of the signed-in principal.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// AuthResponse is returned whenever a session is issued.
type AuthResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Principal *ProfileResponse `json:"principal,omitempty"`
}

// PendingLoginResponse is returned when a second factor is still required.
type PendingLoginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	OtpID     string    `json:"otpId"`
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MessageResponse is the bare success envelope.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ForgotPasswordResponse returns the id the reset code must be confirmed against.
type ForgotPasswordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OtpID   string `json:"otpId"`
}
