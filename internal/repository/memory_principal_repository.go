package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quickbites/identity-service/internal/domain"
)

// EmailRegistry is the in-memory counterpart of the principal_emails table,
// shared by the memory repositories of all roles.
type EmailRegistry struct {
	mu     sync.Mutex
	emails map[string]bool
}

// NewEmailRegistry returns an empty registry.
func NewEmailRegistry() *EmailRegistry {
	return &EmailRegistry{emails: make(map[string]bool)}
}

type memoryPrincipalRepository struct {
	role     domain.Role
	registry *EmailRegistry
	mu       sync.RWMutex
	byID     map[string]domain.Principal
}

// NewMemoryPrincipalRepository returns a process-local store with the same
// semantics as the Postgres one, including cross-role email uniqueness
// through the shared registry.
func NewMemoryPrincipalRepository(role domain.Role, registry *EmailRegistry) PrincipalRepository {
	return &memoryPrincipalRepository{role: role, registry: registry, byID: make(map[string]domain.Principal)}
}

// NewMemoryDirectory builds a Directory of memory repositories for every role.
func NewMemoryDirectory() *Directory {
	registry := NewEmailRegistry()
	repos := make([]PrincipalRepository, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		repos = append(repos, NewMemoryPrincipalRepository(role, registry))
	}
	return NewDirectory(repos...)
}

func (r *memoryPrincipalRepository) Role() domain.Role {
	return r.role
}

func (r *memoryPrincipalRepository) Create(_ context.Context, p *domain.Principal) error {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()
	if r.registry.emails[p.Email] {
		return ErrEmailTaken
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUsername(p); err != nil {
		return err
	}
	r.registry.emails[p.Email] = true

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Role = r.role
	p.CreatedAt = now
	p.UpdatedAt = now
	r.byID[p.ID] = clonePrincipal(*p)
	return nil
}

func (r *memoryPrincipalRepository) Update(_ context.Context, p *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[p.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if err := r.checkUsername(p); err != nil {
		return err
	}
	cur.Name = p.Name
	cur.Profile = p.Profile
	cur.UpdatedAt = time.Now().UTC()
	r.byID[p.ID] = clonePrincipal(cur)
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *memoryPrincipalRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	cur.PasswordHash = &passwordHash
	cur.UpdatedAt = time.Now().UTC()
	r.byID[id] = cur
	return nil
}

func (r *memoryPrincipalRepository) LinkProvider(_ context.Context, id, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if ok && cur.ProviderSubject == nil {
		cur.ProviderSubject = &subject
		r.byID[id] = cur
	}
	return nil
}

func (r *memoryPrincipalRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := clonePrincipal(p)
	return &out, nil
}

func (r *memoryPrincipalRepository) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.Email == email {
			out := clonePrincipal(p)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryPrincipalRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// List orders by creation time, newest first, like the Postgres store.
func (r *memoryPrincipalRepository) List(_ context.Context, limit, offset int) ([]domain.Principal, error) {
	r.mu.RLock()
	out := make([]domain.Principal, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, clonePrincipal(p))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryPrincipalRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	p, ok := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()
	if !ok {
		return pgx.ErrNoRows
	}

	r.registry.mu.Lock()
	delete(r.registry.emails, p.Email)
	r.registry.mu.Unlock()
	return nil
}

// checkUsername mirrors admins_username_idx. Callers hold r.mu.
func (r *memoryPrincipalRepository) checkUsername(p *domain.Principal) error {
	if r.role != domain.RoleAdmin || p.Profile.Username == "" {
		return nil
	}
	for id, other := range r.byID {
		if id != p.ID && other.Profile.Username == p.Profile.Username {
			return ErrUsernameTaken
		}
	}
	return nil
}

func clonePrincipal(p domain.Principal) domain.Principal {
	if p.PasswordHash != nil {
		hash := *p.PasswordHash
		p.PasswordHash = &hash
	}
	if p.ProviderSubject != nil {
		subject := *p.ProviderSubject
		p.ProviderSubject = &subject
	}
	if p.Profile.DateOfBirth != nil {
		dob := *p.Profile.DateOfBirth
		p.Profile.DateOfBirth = &dob
	}
	return p
}
