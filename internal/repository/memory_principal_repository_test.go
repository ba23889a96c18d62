package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbites/identity-service/internal/domain"
)

func TestMemoryDirectory_EmailRegistrySpansRoles(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	user := &domain.Principal{Email: "a@x.com", Name: "Alice", Provider: domain.ProviderPassword}
	require.NoError(t, dir.For(domain.RoleUser).Create(ctx, user))
	assert.Equal(t, domain.RoleUser, user.Role)

	inUse, err := dir.EmailInUse(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, inUse)

	err = dir.For(domain.RoleAdmin).Create(ctx, &domain.Principal{Email: "a@x.com", Name: "Admin"})
	require.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, dir.For(domain.RoleUser).Delete(ctx, user.ID))
	require.NoError(t, dir.For(domain.RoleAdmin).Create(ctx, &domain.Principal{Email: "a@x.com", Name: "Admin"}))

	_, err = dir.GetByID(ctx, domain.RoleUser, user.ID)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryPrincipalRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 9; i++ {
		role := domain.Roles[i%len(domain.Roles)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := dir.For(role).Create(ctx, &domain.Principal{Email: "race@x.com", Name: "Racer"})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestMemoryPrincipalRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrincipalRepository(domain.RoleAdmin, NewEmailRegistry())

	hash := "h1"
	p := &domain.Principal{Email: "b@x.com", Name: "Bo", PasswordHash: &hash, Profile: domain.Profile{Username: "bo"}}
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	*got.PasswordHash = "tampered"

	again, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", *again.PasswordHash)

	other := &domain.Principal{Email: "c@x.com", Name: "Cy", Profile: domain.Profile{Username: "bo"}}
	require.ErrorIs(t, repo.Create(ctx, other), ErrUsernameTaken)

	inUse, err := NewDirectory(repo).EmailInUse(ctx, "c@x.com")
	require.NoError(t, err)
	assert.False(t, inUse, "failed create must not claim the email")
}
