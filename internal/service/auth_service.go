package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/events"
	"github.com/quickbites/identity-service/internal/identity"
	"github.com/quickbites/identity-service/internal/mail"
	"github.com/quickbites/identity-service/internal/repository"
	apperrors "github.com/quickbites/identity-service/pkg/util"
)

// RolePolicy captures how the auth protocols differ between roles.
type RolePolicy struct {
	Role domain.Role
	// RequireExistingAccount rejects identity-provider logins without a registered account.
	RequireExistingAccount bool
	// AutoProvision creates a password-less account on first identity-provider login.
	AutoProvision bool
	// RequireCodeConfirmation adds an emailed one-time code after password verification.
	RequireCodeConfirmation bool
}

// DefaultPolicies returns the marketplace policy for each role.
func DefaultPolicies() map[domain.Role]RolePolicy {
	return map[domain.Role]RolePolicy{
		domain.RoleAdmin:  {Role: domain.RoleAdmin, RequireExistingAccount: true},
		domain.RoleSeller: {Role: domain.RoleSeller, AutoProvision: true, RequireCodeConfirmation: true},
		domain.RoleUser:   {Role: domain.RoleUser, AutoProvision: true},
	}
}

// AuthService coordinates registration, login and password reset flows.
type AuthService struct {
	principals *repository.Directory
	codes      repository.CodeRepository
	identity   identity.Bridge
	mailer     mail.Mailer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	policies   map[domain.Role]RolePolicy

	tokenMgr          *auth.TokenManager
	bcryptCost        int
	codeTTL           time.Duration
	codeLength        int
	minPasswordLength int
	dummyHash         string
	now               func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Principals *repository.Directory
	Codes      repository.CodeRepository
	Identity   identity.Bridge
	Mailer     mail.Mailer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Policies   map[domain.Role]RolePolicy
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	policies := deps.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}

	s := &AuthService{
		principals:        deps.Principals,
		codes:             deps.Codes,
		identity:          deps.Identity,
		mailer:            deps.Mailer,
		dispatcher:        dispatcher,
		logger:            logger,
		policies:          policies,
		tokenMgr:          auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL(), cfg.Auth.CodeTTL()),
		bcryptCost:        cfg.Auth.BcryptCost,
		codeTTL:           cfg.Auth.CodeTTL(),
		codeLength:        cfg.Auth.CodeLength,
		minPasswordLength: cfg.Auth.MinPasswordLength,
		now:               time.Now,
	}
	if s.codeLength <= 0 {
		s.codeLength = 6
	}
	if s.minPasswordLength < 8 {
		s.minPasswordLength = 8
	}
	// Compared against on unknown emails so response time does not reveal account existence.
	s.dummyHash, _ = auth.HashPassword(uuid.NewString(), s.bcryptCost)
	return s
}

// RegisterInput carries registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Profile  domain.Profile
}

// LoginResult is either a session or, for second-factor roles, a pending ticket.
type LoginResult struct {
	Principal *domain.Principal
	Session   *domain.Token
	Pending   *domain.Token
	CodeID    string
}

// ResetWithCodeInput confirms a reset with an emailed code.
type ResetWithCodeInput struct {
	CodeID          string
	Code            string
	Email           string
	NewPassword     string
	ConfirmPassword string
}

// ResetWithIdentityInput confirms a reset with an identity-provider grant.
type ResetWithIdentityInput struct {
	Grant           domain.IdentityGrant
	Email           string
	NewPassword     string
	ConfirmPassword string
}

// Register creates a new principal after the cross-collection email check.
func (s *AuthService) Register(ctx context.Context, role domain.Role, in RegisterInput) (*domain.Principal, *domain.Token, error) {
	repo, err := s.repo(role)
	if err != nil {
		return nil, nil, err
	}

	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if len(name) < 2 {
		return nil, nil, apperrors.NewValidationError("name must be 2 letters or more", map[string]any{"field": "name"})
	}
	if email == "" {
		return nil, nil, apperrors.NewValidationError("email is required", map[string]any{"field": "email"})
	}
	if err := s.checkPasswordPolicy(in.Password); err != nil {
		return nil, nil, err
	}

	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}

	principal := &domain.Principal{
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
		Profile:      in.Profile,
		Provider:     domain.ProviderPassword,
	}
	if err := repo.Create(ctx, principal); err != nil {
		return nil, nil, mapCreateError(err)
	}

	s.publish(ctx, events.EventPrincipalRegistered, principal, nil)

	token, err := s.tokenMgr.IssueSession(principal.ID, role)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	return principal, token, nil
}

// PasswordLogin verifies email and password. Every credential failure yields
// the same error regardless of its cause.
func (s *AuthService) PasswordLogin(ctx context.Context, role domain.Role, email, password string) (*LoginResult, error) {
	repo, err := s.repo(role)
	if err != nil {
		return nil, err
	}

	principal, err := repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = auth.ComparePassword(s.dummyHash, password)
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !principal.HasPassword() {
		_ = auth.ComparePassword(s.dummyHash, password)
		return nil, apperrors.NewInvalidCredentials()
	}
	if err := auth.ComparePassword(*principal.PasswordHash, password); err != nil {
		return nil, apperrors.NewInvalidCredentials()
	}

	if s.policies[role].RequireCodeConfirmation {
		code, err := s.issueCode(ctx, principal, domain.CodePurposeLogin)
		if err != nil {
			return nil, err
		}
		ticket, err := s.tokenMgr.IssuePendingTicket(principal.ID, role, code.ID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		return &LoginResult{Principal: principal, Pending: ticket, CodeID: code.ID}, nil
	}

	session, err := s.completeLogin(ctx, principal, "password")
	if err != nil {
		return nil, err
	}
	return &LoginResult{Principal: principal, Session: session}, nil
}

// ConfirmCode consumes a login code and issues a session. A code can be
// confirmed at most once.
func (s *AuthService) ConfirmCode(ctx context.Context, role domain.Role, codeID, code string) (*domain.Principal, *domain.Token, error) {
	repo, err := s.repo(role)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.checkCode(ctx, role, codeID, code, domain.CodePurposeLogin)
	if err != nil {
		return nil, nil, err
	}
	if err := s.consumeCode(ctx, record); err != nil {
		return nil, nil, err
	}

	principal, err := repo.GetByID(ctx, record.PrincipalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewInvalidCode()
		}
		return nil, nil, apperrors.NewInternalError(err)
	}

	session, err := s.completeLogin(ctx, principal, "one_time_code")
	if err != nil {
		return nil, nil, err
	}
	return principal, session, nil
}

// CodeIDFromTicket resolves the code a pending-login ticket was issued for.
func (s *AuthService) CodeIDFromTicket(role domain.Role, ticket string) (string, error) {
	claims, err := s.tokenMgr.ParsePendingTicket(ticket)
	if err != nil || claims.Role != role || claims.CodeID == "" {
		return "", apperrors.NewInvalidCode()
	}
	return claims.CodeID, nil
}

// IdentityLogin signs a principal in with an identity-provider grant,
// provisioning an account when the role allows it.
func (s *AuthService) IdentityLogin(ctx context.Context, role domain.Role, grant domain.IdentityGrant) (*domain.Principal, *domain.Token, error) {
	repo, err := s.repo(role)
	if err != nil {
		return nil, nil, err
	}
	policy := s.policies[role]

	ext, err := s.exchange(ctx, grant)
	if err != nil {
		return nil, nil, err
	}

	principal, err := repo.GetByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		s.backfillProviderLink(ctx, repo, principal, ext)
	case errors.Is(err, pgx.ErrNoRows):
		if policy.RequireExistingAccount || !policy.AutoProvision {
			return nil, nil, apperrors.NewNotFound("account", nil)
		}
		principal, err = s.provision(ctx, repo, ext)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, apperrors.NewInternalError(err)
	}

	session, err := s.completeLogin(ctx, principal, "identity_provider")
	if err != nil {
		return nil, nil, err
	}
	return principal, session, nil
}

// RequestPasswordReset mails a reset code. The response never reveals whether
// the account exists: unknown emails, an already pending code and a failed
// delivery all yield a random id and no error.
func (s *AuthService) RequestPasswordReset(ctx context.Context, role domain.Role, email string) (string, error) {
	repo, err := s.repo(role)
	if err != nil {
		return "", err
	}

	principal, err := repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("password reset requested for unknown email", zap.String("role", string(role)))
			return uuid.NewString(), nil
		}
		return "", apperrors.NewInternalError(err)
	}

	code, err := s.issueCode(ctx, principal, domain.CodePurposePasswordReset)
	switch {
	case err == nil:
		return code.ID, nil
	case apperrors.HasCode(err, apperrors.CodeCodePending), apperrors.HasCode(err, apperrors.CodeUpstream):
		s.logger.Info("password reset code not issued",
			zap.String("role", string(role)),
			zap.String("principal_id", principal.ID),
			zap.Error(err))
		return uuid.NewString(), nil
	default:
		return "", err
	}
}

// ResetPasswordWithCode sets a new password after confirming an emailed reset code.
func (s *AuthService) ResetPasswordWithCode(ctx context.Context, role domain.Role, in ResetWithCodeInput) error {
	repo, err := s.repo(role)
	if err != nil {
		return err
	}
	if err := s.checkNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}

	record, err := s.checkCode(ctx, role, in.CodeID, in.Code, domain.CodePurposePasswordReset)
	if err != nil {
		return err
	}

	principal, err := repo.GetByID(ctx, record.PrincipalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewInvalidCode()
		}
		return apperrors.NewInternalError(err)
	}
	if in.Email != "" && domain.NormalizeEmail(in.Email) != principal.Email {
		return apperrors.NewInvalidCode()
	}
	if err := s.checkUnchanged(principal, in.NewPassword); err != nil {
		return err
	}
	if err := s.consumeCode(ctx, record); err != nil {
		return err
	}
	return s.setPassword(ctx, repo, principal, in.NewPassword, "one_time_code")
}

// VerifyIdentityReset checks that the grant belongs to the account being reset.
func (s *AuthService) VerifyIdentityReset(ctx context.Context, role domain.Role, grant domain.IdentityGrant, email string) error {
	_, _, err := s.resolveIdentityReset(ctx, role, grant, email)
	return err
}

// ResetPasswordWithIdentity sets a new password for the account the grant proves ownership of.
func (s *AuthService) ResetPasswordWithIdentity(ctx context.Context, role domain.Role, in ResetWithIdentityInput) error {
	if err := s.checkNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}

	repo, principal, err := s.resolveIdentityReset(ctx, role, in.Grant, in.Email)
	if err != nil {
		return err
	}
	if err := s.checkUnchanged(principal, in.NewPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, repo, principal, in.NewPassword, "identity_provider")
}

// ChangePassword updates the password of an authenticated principal. The
// current password is only required when one is set.
func (s *AuthService) ChangePassword(ctx context.Context, principal *domain.Principal, currentPassword, newPassword, confirmPassword string) error {
	repo, err := s.repo(principal.Role)
	if err != nil {
		return err
	}
	if err := s.checkNewPassword(newPassword, confirmPassword); err != nil {
		return err
	}
	if principal.HasPassword() {
		if err := auth.ComparePassword(*principal.PasswordHash, currentPassword); err != nil {
			return apperrors.NewInvalidCredentials()
		}
	}
	if err := s.checkUnchanged(principal, newPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, repo, principal, newPassword, "change")
}

// Logout currently no-ops for stateless JWT approach.
func (s *AuthService) Logout(_ context.Context, _ *domain.Principal) error {
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) repo(role domain.Role) (repository.PrincipalRepository, error) {
	repo := s.principals.For(role)
	if repo == nil {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	return repo, nil
}

func (s *AuthService) ensureEmailAvailable(ctx context.Context, email string) error {
	inUse, err := s.principals.EmailInUse(ctx, email)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if inUse {
		return apperrors.NewEmailInUse()
	}
	return nil
}

func (s *AuthService) provision(ctx context.Context, repo repository.PrincipalRepository, ext *domain.ExternalIdentity) (*domain.Principal, error) {
	if err := s.ensureEmailAvailable(ctx, ext.Email); err != nil {
		return nil, err
	}

	principal := &domain.Principal{
		Email:    ext.Email,
		Name:     ext.Name,
		Provider: domain.ProviderGoogle,
	}
	if ext.Subject != "" {
		subject := ext.Subject
		principal.ProviderSubject = &subject
	}
	if err := repo.Create(ctx, principal); err != nil {
		return nil, mapCreateError(err)
	}
	s.publish(ctx, events.EventPrincipalProvisioned, principal, nil)
	return principal, nil
}

func (s *AuthService) backfillProviderLink(ctx context.Context, repo repository.PrincipalRepository, principal *domain.Principal, ext *domain.ExternalIdentity) {
	if principal.ProviderSubject != nil || ext.Subject == "" {
		return
	}
	if err := repo.LinkProvider(ctx, principal.ID, ext.Subject); err != nil {
		s.logger.Warn("provider link backfill failed",
			zap.String("role", string(principal.Role)),
			zap.String("principal_id", principal.ID),
			zap.Error(err))
		return
	}
	subject := ext.Subject
	principal.ProviderSubject = &subject
}

func (s *AuthService) resolveIdentityReset(ctx context.Context, role domain.Role, grant domain.IdentityGrant, email string) (repository.PrincipalRepository, *domain.Principal, error) {
	repo, err := s.repo(role)
	if err != nil {
		return nil, nil, err
	}
	ext, err := s.exchange(ctx, grant)
	if err != nil {
		return nil, nil, err
	}
	if email != "" && domain.NormalizeEmail(email) != ext.Email {
		return nil, nil, apperrors.NewForbidden("identity provider account does not match the requested email")
	}

	principal, err := repo.GetByEmail(ctx, ext.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("account", nil)
		}
		return nil, nil, apperrors.NewInternalError(err)
	}
	return repo, principal, nil
}

func (s *AuthService) exchange(ctx context.Context, grant domain.IdentityGrant) (*domain.ExternalIdentity, error) {
	if grant.Empty() {
		return nil, apperrors.NewValidationError("code or credential is required", nil)
	}
	ext, err := s.identity.Exchange(ctx, grant)
	if err != nil {
		s.logger.Warn("identity provider exchange failed", zap.Error(err))
		return nil, apperrors.NewUpstreamError("identity provider authentication failed", err)
	}
	return ext, nil
}

func (s *AuthService) issueCode(ctx context.Context, principal *domain.Principal, purpose domain.CodePurpose) (*domain.OneTimeCode, error) {
	plain, err := auth.GenerateNumericCode(s.codeLength)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	hash, err := auth.HashPassword(plain, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now()
	code := &domain.OneTimeCode{
		ID:          uuid.NewString(),
		Role:        principal.Role,
		PrincipalID: principal.ID,
		Purpose:     purpose,
		CodeHash:    hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		if errors.Is(err, repository.ErrCodePending) {
			return nil, apperrors.NewCodePending()
		}
		return nil, apperrors.NewInternalError(err)
	}

	render := mail.LoginCode
	if purpose == domain.CodePurposePasswordReset {
		render = mail.ResetCode
	}
	msg, err := render(principal.Email, principal.Name, plain, s.codeTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		// Release the slot so a failed delivery does not block retries for the whole window.
		if delErr := s.codes.Consume(ctx, code); delErr != nil && !errors.Is(delErr, repository.ErrCodeNotFound) {
			s.logger.Warn("release undelivered code", zap.String("code_id", code.ID), zap.Error(delErr))
		}
		s.logger.Error("verification code delivery failed",
			zap.String("role", string(principal.Role)),
			zap.String("principal_id", principal.ID),
			zap.Error(err))
		return nil, apperrors.NewUpstreamError("failed to deliver verification code", err)
	}
	return code, nil
}

// checkCode validates a code without consuming it. Expired records are deleted.
func (s *AuthService) checkCode(ctx context.Context, role domain.Role, codeID, code string, purpose domain.CodePurpose) (*domain.OneTimeCode, error) {
	if codeID == "" || code == "" {
		return nil, apperrors.NewValidationError("code id and verification code are required", nil)
	}

	record, err := s.codes.Get(ctx, codeID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, apperrors.NewInvalidCode()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if record.Role != role || record.Purpose != purpose {
		return nil, apperrors.NewInvalidCode()
	}
	if record.Expired(s.now()) {
		if err := s.codes.Consume(ctx, record); err != nil && !errors.Is(err, repository.ErrCodeNotFound) {
			s.logger.Warn("delete expired code", zap.String("code_id", record.ID), zap.Error(err))
		}
		return nil, apperrors.NewInvalidCode()
	}
	if err := auth.ComparePassword(record.CodeHash, code); err != nil {
		return nil, apperrors.NewInvalidCode()
	}
	return record, nil
}

func (s *AuthService) consumeCode(ctx context.Context, record *domain.OneTimeCode) error {
	if err := s.codes.Consume(ctx, record); err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return apperrors.NewInvalidCode()
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (s *AuthService) completeLogin(ctx context.Context, principal *domain.Principal, method string) (*domain.Token, error) {
	token, err := s.tokenMgr.IssueSession(principal.ID, principal.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.EventLoginSucceeded, principal, events.LoginSucceededPayload{Method: method})
	return token, nil
}

func (s *AuthService) checkPasswordPolicy(password string) error {
	if len(password) < s.minPasswordLength {
		return apperrors.NewValidationError("password must be at least 8 characters long",
			map[string]any{"field": "password", "min": s.minPasswordLength})
	}
	return nil
}

func (s *AuthService) checkNewPassword(newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return apperrors.NewPasswordMismatch()
	}
	return s.checkPasswordPolicy(newPassword)
}

// checkUnchanged rejects reusing the current password; principals without one always pass.
func (s *AuthService) checkUnchanged(principal *domain.Principal, newPassword string) error {
	if !principal.HasPassword() {
		return nil
	}
	if auth.ComparePassword(*principal.PasswordHash, newPassword) == nil {
		return apperrors.NewPasswordUnchanged()
	}
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, repo repository.PrincipalRepository, principal *domain.Principal, newPassword, method string) error {
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := repo.UpdatePassword(ctx, principal.ID, hash); err != nil {
		return apperrors.MapError(err)
	}
	principal.PasswordHash = &hash

	if err := s.codes.DeleteForPrincipal(ctx, principal.Role, principal.ID); err != nil {
		s.logger.Warn("invalidate outstanding codes", zap.String("principal_id", principal.ID), zap.Error(err))
	}
	s.publish(ctx, events.EventPasswordReset, principal, events.PasswordResetPayload{Method: method})
	return nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, principal *domain.Principal, payload interface{}) {
	event := events.Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Actor: events.Actor{
			Role:        principal.Role,
			PrincipalID: principal.ID,
			Email:       principal.Email,
			Name:        principal.Name,
		},
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func mapCreateError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return apperrors.NewEmailInUse()
	case errors.Is(err, repository.ErrUsernameTaken):
		return apperrors.NewConflict("username already in use", map[string]any{"field": "username"})
	default:
		return apperrors.NewInternalError(err)
	}
}
