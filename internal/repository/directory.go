package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quickbites/identity-service/internal/domain"
)

// Directory groups the three principal collections.
type Directory struct {
	repos map[domain.Role]PrincipalRepository
}

// NewDirectory indexes the given repositories by role.
func NewDirectory(repos ...PrincipalRepository) *Directory {
	d := &Directory{repos: make(map[domain.Role]PrincipalRepository, len(repos))}
	for _, repo := range repos {
		d.repos[repo.Role()] = repo
	}
	return d
}

// For returns the repository of a role, or nil when none is registered.
func (d *Directory) For(role domain.Role) PrincipalRepository {
	return d.repos[role]
}

// GetByID loads a principal from the role's collection.
func (d *Directory) GetByID(ctx context.Context, role domain.Role, id string) (*domain.Principal, error) {
	repo := d.For(role)
	if repo == nil {
		return nil, fmt.Errorf("no repository for role %q", role)
	}
	return repo.GetByID(ctx, id)
}

// EmailInUse looks the email up in every collection concurrently. It is a
// pre-write check only; the email registry constraint is what makes
// concurrent registrations safe.
func (d *Directory) EmailInUse(ctx context.Context, email string) (bool, error) {
	found := make([]bool, len(domain.Roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range domain.Roles {
		repo := d.For(role)
		if repo == nil {
			continue
		}
		g.Go(func() error {
			exists, err := repo.ExistsByEmail(gctx, email)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", role.Slug(), err)
			}
			found[i] = exists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, f := range found {
		if f {
			return true, nil
		}
	}
	return false, nil
}
