package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/quickbites/identity-service/internal/domain"
)

var (
	// ErrWrongTokenKind is returned when a pending ticket is presented as a session or vice versa.
	ErrWrongTokenKind = errors.New("wrong token kind")
	errInvalidClaims  = errors.New("invalid token claims")
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	ticketTTL  time.Duration
	now        func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, sessionTTL, ticketTTL time.Duration) *TokenManager {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if ticketTTL <= 0 {
		ticketTTL = 5 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), sessionTTL: sessionTTL, ticketTTL: ticketTTL, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	Role   domain.Role      `json:"role"`
	Kind   domain.TokenKind `json:"typ"`
	CodeID string           `json:"otp,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// IssueSession signs a session token proving a completed authentication.
func (tm *TokenManager) IssueSession(principalID string, role domain.Role) (*domain.Token, error) {
	return tm.issue(principalID, role, domain.TokenKindSession, "", tm.sessionTTL)
}

// IssuePendingTicket signs a ticket that only identifies an outstanding code confirmation.
// It is never accepted where a session is required.
func (tm *TokenManager) IssuePendingTicket(principalID string, role domain.Role, codeID string) (*domain.Token, error) {
	return tm.issue(principalID, role, domain.TokenKindPending, codeID, tm.ticketTTL)
}

func (tm *TokenManager) issue(principalID string, role domain.Role, kind domain.TokenKind, codeID string, ttl time.Duration) (*domain.Token, error) {
	now := tm.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role:   role,
		Kind:   kind,
		CodeID: codeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, err
	}
	return &domain.Token{
		Value:       tokenString,
		Kind:        kind,
		PrincipalID: principalID,
		Role:        role,
		ExpiresAt:   expiresAt,
	}, nil
}

// ParseSession validates a session token.
func (tm *TokenManager) ParseSession(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, domain.TokenKindSession)
}

// ParsePendingTicket validates a pending-login ticket.
func (tm *TokenManager) ParsePendingTicket(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, domain.TokenKindPending)
}

func (tm *TokenManager) parse(tokenStr string, kind domain.TokenKind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errInvalidClaims
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}
