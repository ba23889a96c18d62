package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/quickbites/identity-service/internal/api/http/handlers"
	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/mail"
	"github.com/quickbites/identity-service/internal/observability"
	"github.com/quickbites/identity-service/internal/repository"
	"github.com/quickbites/identity-service/internal/service"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

var mailedCode = regexp.MustCompile(`letter-spacing: 2px;">(\d+)</div>`)

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	match := mailedCode.FindStringSubmatch(m.sent[len(m.sent)-1].HTML)
	require.Len(t, match, 2)
	return match[1]
}

type staticBridge map[string]domain.ExternalIdentity

func (b staticBridge) Exchange(_ context.Context, grant domain.IdentityGrant) (*domain.ExternalIdentity, error) {
	id, ok := b[grant.Credential+grant.Code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return &id, nil
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app    *fiber.App
	mailer *captureMailer
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret: "test-secret", SessionTTLMinutes: 60, CodeTTLMinutes: 5,
		CodeLength: 6, BcryptCost: bcrypt.MinCost, MinPasswordLength: 8,
	}}
	dir := repository.NewMemoryDirectory()
	codes := repository.NewCodeRepository(client)
	mailer := &captureMailer{}
	bridge := staticBridge{"g-user": {Email: "g@x.com", Name: "Gee", Subject: "sub"}}

	authService := service.NewAuthService(cfg, service.AuthDependencies{
		Principals: dir, Codes: codes, Identity: bridge, Mailer: mailer, Logger: zap.NewNop(),
	})
	profiles := service.NewProfileService(dir, codes, nil, zap.NewNop())
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("identity", "test", deps),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Profile:        handlers.NewProfileHandler(profiles),
		Admin:          handlers.NewAdminHandler(profiles),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), dir),
	})
	return &testServer{app: app, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestAuthFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	creds := map[string]any{"name": "Alice", "email": "a@x.com", "password": "password123"}

	status, body := s.do(t, "POST", "/api/user/register", creds, "")
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	status, body = s.do(t, "POST", "/api/user/login", map[string]any{"email": "A@x.com", "password": "password123"}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	token := body["token"].(string)

	status, body = s.do(t, "GET", "/api/me", nil, token)
	require.Equal(t, fiber.StatusOK, status, body)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, "a@x.com", profile["email"])
	assert.Equal(t, "USER", profile["role"])

	status, body = s.do(t, "POST", "/api/admin/register", map[string]any{"name": "Admin", "email": "a@x.com", "password": "password123"}, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "EMAIL_IN_USE", body["code"])

	status, body = s.do(t, "POST", "/api/user/login", map[string]any{"email": "a@x.com", "password": "wrong-pass"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid email or password", body["message"])

	status, _ = s.do(t, "POST", "/api/logout", nil, token)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestSellerSecondFactorOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, "POST", "/api/seller/register", map[string]any{"name": "Sam", "email": "s@x.com", "password": "password123"}, "")
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = s.do(t, "POST", "/api/seller/login", map[string]any{"email": "s@x.com", "password": "password123"}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotEmpty(t, body["otpId"])
	assert.Nil(t, body["token"])
	ticket := body["ticket"].(string)

	status, body = s.do(t, "GET", "/api/me", nil, ticket)
	assert.Equal(t, fiber.StatusUnauthorized, status, "ticket is not a session")
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, body = s.do(t, "POST", "/api/seller/verify-otp", map[string]any{"ticket": ticket, "verificationCode": s.mailer.lastCode(t)}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	session := body["token"].(string)

	status, _ = s.do(t, "GET", "/api/me", nil, session)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, "POST", "/api/seller/verify-otp", map[string]any{"ticket": ticket, "verificationCode": s.mailer.lastCode(t)}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CODE", body["code"])
}

func TestValidationAndRoutingErrors(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, "POST", "/api/user/register", map[string]any{"name": "A", "email": "nope", "password": "short"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	status, body = s.do(t, "POST", "/api/user/google-login", map[string]any{}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	status, body = s.do(t, "POST", "/api/user/google-login", map[string]any{"credential": "bogus"}, "")
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "UPSTREAM_ERROR", body["code"])
	assert.NotContains(t, body["message"], "invalid_grant")

	status, body = s.do(t, "GET", "/api/nowhere", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	_, body := s.do(t, "POST", "/api/user/google-login", map[string]any{"credential": "g-user"}, "")
	userToken := body["token"].(string)
	_, body = s.do(t, "POST", "/api/admin/register", map[string]any{"name": "Root", "email": "root@x.com", "password": "password123"}, "")
	adminToken := body["token"].(string)

	status, _ := s.do(t, "GET", "/api/admin/users", nil, userToken)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = s.do(t, "GET", "/api/admin/users?role=user", nil, adminToken)
	require.Equal(t, fiber.StatusOK, status, body)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	victim := users[0].(map[string]any)
	assert.Equal(t, "g@x.com", victim["email"])
	assert.Equal(t, false, victim["hasPassword"])

	status, body = s.do(t, "GET", "/api/admin/users?role=admin&page=2&page_size=500", nil, adminToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Empty(t, body["users"])
	status, body = s.do(t, "GET", "/api/admin/users?role=admin", nil, adminToken)
	require.Equal(t, fiber.StatusOK, status, body)
	admins := body["users"].([]any)
	require.Len(t, admins, 1)
	self := admins[0].(map[string]any)

	status, body = s.do(t, "DELETE", "/api/admin/users/"+self["id"].(string)+"?role=admin", nil, adminToken)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
	status, _ = s.do(t, "GET", "/api/me", nil, adminToken)
	assert.Equal(t, fiber.StatusOK, status, "admin account survives the refused delete")

	status, _ = s.do(t, "DELETE", "/api/admin/users/"+victim["id"].(string)+"?role=user", nil, adminToken)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, "GET", "/api/me", nil, userToken)
	assert.Equal(t, fiber.StatusUnauthorized, status, "deleted principal can no longer authenticate")
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	status, _ := s.do(t, "GET", "/health/live", nil, "")
	assert.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, "GET", "/health/ready", nil, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	details := body["details"].(map[string]any)
	assert.Equal(t, "ok", details["postgres"])
	assert.Equal(t, "connection refused", details["redis"])

	status, body = s.do(t, "GET", "/metrics", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["requests"])
}
