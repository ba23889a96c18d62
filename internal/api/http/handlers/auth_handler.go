package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/quickbites/identity-service/internal/api/dto"
	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/service"
	apperrors "github.com/quickbites/identity-service/pkg/util"
)

// AuthHandler exposes the auth endpoints of every role. Each method returns
// the handler bound to one role.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/:role/register.
func (h *AuthHandler) Register(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.RegisterRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		principal, token, err := h.auth.Register(c.UserContext(), role, service.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Profile: domain.Profile{
				Username:     req.Username,
				Phone:        req.Phone,
				BusinessName: req.BusinessName,
			},
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(sessionResponse("registration successful", principal, token))
	}
}

// Login handles POST /api/:role/login.
func (h *AuthHandler) Login(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.LoginRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		res, err := h.auth.PasswordLogin(c.UserContext(), role, req.Email, req.Password)
		if err != nil {
			return err
		}
		if res.Pending != nil {
			return c.JSON(dto.PendingLoginResponse{
				Success:   true,
				Message:   "verification code sent to your email",
				OtpID:     res.CodeID,
				Ticket:    res.Pending.Value,
				ExpiresAt: res.Pending.ExpiresAt,
			})
		}
		return c.JSON(sessionResponse("login successful", res.Principal, res.Session))
	}
}

// VerifyCode handles POST /api/:role/verify-otp.
func (h *AuthHandler) VerifyCode(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.VerifyCodeRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		codeID := req.OtpID
		if req.Ticket != "" {
			fromTicket, err := h.auth.CodeIDFromTicket(role, req.Ticket)
			if err != nil {
				return err
			}
			if codeID != "" && codeID != fromTicket {
				return apperrors.NewInvalidCode()
			}
			codeID = fromTicket
		}

		principal, token, err := h.auth.ConfirmCode(c.UserContext(), role, codeID, req.VerificationCode)
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse("login successful", principal, token))
	}
}

// IdentityLogin handles POST /api/:role/google-login.
func (h *AuthHandler) IdentityLogin(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.IdentityGrantRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		principal, token, err := h.auth.IdentityLogin(c.UserContext(), role, domain.IdentityGrant{
			Code:       req.Code,
			Credential: req.Credential,
		})
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse("login successful", principal, token))
	}
}

// ForgotPassword handles POST /api/:role/forgot-password.
func (h *AuthHandler) ForgotPassword(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.ForgotPasswordRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		codeID, err := h.auth.RequestPasswordReset(c.UserContext(), role, req.Email)
		if err != nil {
			return err
		}
		return c.JSON(dto.ForgotPasswordResponse{
			Success: true,
			Message: "if an account exists for this email, a reset code has been sent",
			OtpID:   codeID,
		})
	}
}

// ResetPassword handles POST /api/:role/reset-password.
func (h *AuthHandler) ResetPassword(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.ResetPasswordRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		err := h.auth.ResetPasswordWithCode(c.UserContext(), role, service.ResetWithCodeInput{
			CodeID:          req.OtpID,
			Code:            req.VerificationCode,
			Email:           req.Email,
			NewPassword:     req.NewPassword,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			return err
		}
		return c.JSON(dto.MessageResponse{Success: true, Message: "password reset successful"})
	}
}

// IdentityResetPassword handles POST /api/:role/google-reset-password.
func (h *AuthHandler) IdentityResetPassword(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.IdentityResetRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		err := h.auth.ResetPasswordWithIdentity(c.UserContext(), role, service.ResetWithIdentityInput{
			Grant:           domain.IdentityGrant{Code: req.Code, Credential: req.Credential},
			Email:           req.Email,
			NewPassword:     req.NewPassword,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			return err
		}
		return c.JSON(dto.MessageResponse{Success: true, Message: "password reset successful"})
	}
}

// VerifyIdentityReset handles POST /api/:role/verify-google-reset.
func (h *AuthHandler) VerifyIdentityReset(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.IdentityGrantRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		grant := domain.IdentityGrant{Code: req.Code, Credential: req.Credential}
		if err := h.auth.VerifyIdentityReset(c.UserContext(), role, grant, req.Email); err != nil {
			return err
		}
		return c.JSON(dto.MessageResponse{Success: true, Message: "identity verified"})
	}
}

// ChangePassword handles POST /api/me/password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "password changed"})
}

// Logout handles POST /api/logout. Sessions are stateless; the client drops its token.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.auth.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "logged out"})
}

func sessionResponse(message string, principal *domain.Principal, token *domain.Token) dto.AuthResponse {
	profile := dto.NewProfileResponse(principal, "")
	return dto.AuthResponse{
		Success:   true,
		Message:   message,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		Principal: &profile,
	}
}

// bind parses the JSON body and validates its tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}
