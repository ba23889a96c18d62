package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/quickbites/identity-service/internal/domain"
	apperrors "github.com/quickbites/identity-service/pkg/util"
)

const principalKey = "auth_principal"

// PrincipalLoader resolves a principal from the claims of a session token.
type PrincipalLoader interface {
	GetByID(ctx context.Context, role domain.Role, id string) (*domain.Principal, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens     *TokenManager
	principals PrincipalLoader
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, principals PrincipalLoader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, principals: principals}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	tokenStr, err := BearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseSession(tokenStr)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal, err := m.principals.GetByID(c.UserContext(), claims.Role, claims.PrincipalID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("principal not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}
