package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbites/identity-service/internal/domain"
)

func newTestCodeRepo(t *testing.T) (CodeRepository, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCodeRepository(client), mr, client
}

func newCode(id, principalID string) *domain.OneTimeCode {
	now := time.Now()
	return &domain.OneTimeCode{
		ID:          id,
		Role:        domain.RoleSeller,
		PrincipalID: principalID,
		Purpose:     domain.CodePurposeLogin,
		CodeHash:    "hash",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
}

func TestCodeRepository_CreateAndGet(t *testing.T) {
	repo, _, client := newTestCodeRepo(t)
	ctx := context.Background()

	code := newCode("c1", "s1")
	require.NoError(t, repo.Create(ctx, code))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.PrincipalID)
	assert.Equal(t, domain.CodePurposeLogin, got.Purpose)
	assert.WithinDuration(t, code.ExpiresAt, got.ExpiresAt, time.Second)

	ttl, err := client.TTL(ctx, codeKey("c1")).Result()
	require.NoError(t, err)
	assert.InDelta(t, (5 * time.Minute).Seconds(), ttl.Seconds(), 2)
}

func TestCodeRepository_SecondCodeWhilePendingIsRejected(t *testing.T) {
	repo, _, _ := newTestCodeRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newCode("c1", "s1")))
	require.ErrorIs(t, repo.Create(ctx, newCode("c2", "s1")), ErrCodePending)

	_, err := repo.Get(ctx, "c2")
	require.ErrorIs(t, err, ErrCodeNotFound)

	// a different principal is unaffected
	require.NoError(t, repo.Create(ctx, newCode("c3", "s2")))
}

func TestCodeRepository_PendingSlotIsPerPurpose(t *testing.T) {
	repo, _, _ := newTestCodeRepo(t)
	ctx := context.Background()

	reset := newCode("r1", "s1")
	reset.Purpose = domain.CodePurposePasswordReset
	require.NoError(t, repo.Create(ctx, reset))

	// an outstanding reset code leaves the login slot free
	login := newCode("l1", "s1")
	require.NoError(t, repo.Create(ctx, login))

	second := newCode("r2", "s1")
	second.Purpose = domain.CodePurposePasswordReset
	require.ErrorIs(t, repo.Create(ctx, second), ErrCodePending)

	require.NoError(t, repo.Consume(ctx, login))
	_, err := repo.Get(ctx, "r1")
	require.NoError(t, err, "consuming the login code leaves the reset code alone")
}

func TestCodeRepository_ConcurrentCreateOnlyOneWins(t *testing.T) {
	repo, _, _ := newTestCodeRepo(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Create(ctx, newCode(string(rune('a'+i)), "s1")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCodeRepository_ConsumeExactlyOnce(t *testing.T) {
	repo, _, _ := newTestCodeRepo(t)
	ctx := context.Background()

	code := newCode("c1", "s1")
	require.NoError(t, repo.Create(ctx, code))

	require.NoError(t, repo.Consume(ctx, code))
	require.ErrorIs(t, repo.Consume(ctx, code), ErrCodeNotFound)

	// pending slot released
	require.NoError(t, repo.Create(ctx, newCode("c2", "s1")))
}

func TestCodeRepository_ExpiresWithTTL(t *testing.T) {
	repo, mr, _ := newTestCodeRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newCode("c1", "s1")))
	mr.FastForward(5*time.Minute + time.Second)

	_, err := repo.Get(ctx, "c1")
	require.ErrorIs(t, err, ErrCodeNotFound)
	require.NoError(t, repo.Create(ctx, newCode("c2", "s1")))
}

func TestCodeRepository_DeleteForPrincipal(t *testing.T) {
	repo, _, _ := newTestCodeRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newCode("c1", "s1")))
	reset := newCode("c2", "s1")
	reset.Purpose = domain.CodePurposePasswordReset
	require.NoError(t, repo.Create(ctx, reset))
	require.NoError(t, repo.DeleteForPrincipal(ctx, domain.RoleSeller, "s1"))

	_, err := repo.Get(ctx, "c1")
	require.ErrorIs(t, err, ErrCodeNotFound)
	_, err = repo.Get(ctx, "c2")
	require.ErrorIs(t, err, ErrCodeNotFound)
	require.NoError(t, repo.Create(ctx, newCode("c3", "s1")))
	require.NoError(t, repo.DeleteForPrincipal(ctx, domain.RoleSeller, "nobody"))
}
