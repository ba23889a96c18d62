package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbites/identity-service/internal/domain"
)

func TestIssueAndParseSession(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", time.Hour, time.Minute)
	tok, err := tm.IssueSession("user-1", domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenKindSession, tok.Kind)

	claims, err := tm.ParseSession(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.PrincipalID())
	assert.Equal(t, domain.RoleUser, claims.Role)
}

func TestPendingTicketIsNotASession(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", time.Hour, time.Minute)
	ticket, err := tm.IssuePendingTicket("seller-1", domain.RoleSeller, "code-1")
	require.NoError(t, err)

	_, err = tm.ParseSession(ticket.Value)
	require.ErrorIs(t, err, ErrWrongTokenKind)

	claims, err := tm.ParsePendingTicket(ticket.Value)
	require.NoError(t, err)
	assert.Equal(t, "code-1", claims.CodeID)
	assert.Equal(t, domain.RoleSeller, claims.Role)
}

func TestParseSession_Expired(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", time.Hour, time.Minute)
	issuedAt := time.Now().Add(-2 * time.Hour)
	tm.now = func() time.Time { return issuedAt }
	tok, err := tm.IssueSession("u1", domain.RoleAdmin)
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ParseSession(tok.Value)
	require.Error(t, err)
}

func TestParseSession_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewTokenManager("right", time.Hour, time.Minute).IssueSession("u2", domain.RoleUser)
	require.NoError(t, err)

	_, err = NewTokenManager("wrong", time.Hour, time.Minute).ParseSession(tok.Value)
	require.Error(t, err)
}

func TestSessionDefaultsToOneDay(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", 0, 0)
	before := time.Now()
	tok, err := tm.IssueSession("u3", domain.RoleUser)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(24*time.Hour), tok.ExpiresAt, 5*time.Second)
}
