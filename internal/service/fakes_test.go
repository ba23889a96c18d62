package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/events"
	"github.com/quickbites/identity-service/internal/mail"
	"github.com/quickbites/identity-service/internal/repository"
)

type fakeBridge struct {
	mu         sync.Mutex
	identities map[string]domain.ExternalIdentity
	err        error
}

func (b *fakeBridge) add(credential string, id domain.ExternalIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identities[credential] = id
}

func (b *fakeBridge) Exchange(_ context.Context, grant domain.IdentityGrant) (*domain.ExternalIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	key := grant.Credential
	if key == "" {
		key = grant.Code
	}
	id, ok := b.identities[key]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return &id, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var codePattern = regexp.MustCompile(`letter-spacing: 2px;">(\d+)</div>`)

// lastCode extracts the plaintext code from the most recent mail to the address.
func (m *fakeMailer) lastCode(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != to {
			continue
		}
		match := codePattern.FindStringSubmatch(m.sent[i].HTML)
		require.Len(t, match, 2, "mail to %s carries no code", to)
		return match[1]
	}
	t.Fatalf("no mail sent to %s", to)
	return ""
}

// unlinkableRepo fails every provider link and delegates everything else.
type unlinkableRepo struct {
	repository.PrincipalRepository
}

func (unlinkableRepo) LinkProvider(context.Context, string, string) error {
	return errors.New("write conflict")
}

type harness struct {
	svc        *AuthService
	dir        *repository.Directory
	codes      repository.CodeRepository
	bridge     *fakeBridge
	mailer     *fakeMailer
	dispatcher events.Dispatcher
	redis      *miniredis.Miniredis
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret",
			SessionTTLMinutes: 1440,
			CodeTTLMinutes:    5,
			CodeLength:        6,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := repository.NewMemoryDirectory()
	h := &harness{
		dir:        dir,
		codes:      repository.NewCodeRepository(client),
		bridge:     &fakeBridge{identities: map[string]domain.ExternalIdentity{}},
		mailer:     &fakeMailer{},
		dispatcher: events.NewInMemoryDispatcher(),
		redis:      mr,
	}
	h.svc = NewAuthService(testConfig(), AuthDependencies{
		Principals: dir,
		Codes:      h.codes,
		Identity:   h.bridge,
		Mailer:     h.mailer,
		Dispatcher: h.dispatcher,
	})
	return h
}

func (h *harness) register(t *testing.T, role domain.Role, email, password string) *domain.Principal {
	t.Helper()
	p, _, err := h.svc.Register(context.Background(), role, RegisterInput{Name: "Test " + role.Slug(), Email: email, Password: password})
	require.NoError(t, err)
	return p
}
