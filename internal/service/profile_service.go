package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/media"
	"github.com/quickbites/identity-service/internal/repository"
	apperrors "github.com/quickbites/identity-service/pkg/util"
)

// ProfileService manages profiles of authenticated principals and the
// admin-facing account listing.
type ProfileService struct {
	principals *repository.Directory
	codes      repository.CodeRepository
	photos     media.PhotoStore
	logger     *zap.Logger
}

// NewProfileService builds the service. photos may be nil when storage is not configured.
func NewProfileService(principals *repository.Directory, codes repository.CodeRepository, photos media.PhotoStore, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{principals: principals, codes: codes, photos: photos, logger: logger}
}

// ProfileUpdate holds optional changes; nil fields are left untouched.
type ProfileUpdate struct {
	Name         *string
	Username     *string
	Phone        *string
	Address      *string
	Gender       *string
	DateOfBirth  *time.Time
	PhotoKey     *string
	BusinessName *string
}

// ProfileView is a principal with a short-lived photo URL resolved.
type ProfileView struct {
	Principal *domain.Principal
	PhotoURL  string
}

// GetProfile resolves the principal's photo URL when one is set.
func (s *ProfileService) GetProfile(ctx context.Context, principal *domain.Principal) (*ProfileView, error) {
	view := &ProfileView{Principal: principal}
	if principal.Profile.PhotoKey == "" || s.photos == nil {
		return view, nil
	}
	url, err := s.photos.PresignDownload(ctx, principal.Profile.PhotoKey)
	if err != nil {
		// The profile itself is still useful without the photo.
		s.logger.Warn("presign photo download", zap.String("principal_id", principal.ID), zap.Error(err))
		return view, nil
	}
	view.PhotoURL = url
	return view, nil
}

// UpdateProfile applies the given changes. Username is admin-only and
// business name is seller-only.
func (s *ProfileService) UpdateProfile(ctx context.Context, principal *domain.Principal, in ProfileUpdate) (*domain.Principal, error) {
	repo := s.principals.For(principal.Role)
	if repo == nil {
		return nil, apperrors.NewValidationError("unknown role", nil)
	}

	updated := *principal
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) < 2 {
			return nil, apperrors.NewValidationError("name must be 2 letters or more", map[string]any{"field": "name"})
		}
		updated.Name = name
	}
	if in.Username != nil {
		if principal.Role != domain.RoleAdmin {
			return nil, apperrors.NewValidationError("username is only available to admins", map[string]any{"field": "username"})
		}
		updated.Profile.Username = strings.TrimSpace(*in.Username)
	}
	if in.BusinessName != nil {
		if principal.Role != domain.RoleSeller {
			return nil, apperrors.NewValidationError("business name is only available to sellers", map[string]any{"field": "businessName"})
		}
		updated.Profile.BusinessName = strings.TrimSpace(*in.BusinessName)
	}
	if in.Phone != nil {
		updated.Profile.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Address != nil {
		updated.Profile.Address = strings.TrimSpace(*in.Address)
	}
	if in.Gender != nil {
		updated.Profile.Gender = strings.TrimSpace(*in.Gender)
	}
	if in.DateOfBirth != nil {
		if in.DateOfBirth.After(time.Now()) {
			return nil, apperrors.NewValidationError("date of birth cannot be in the future", map[string]any{"field": "dateOfBirth"})
		}
		dob := *in.DateOfBirth
		updated.Profile.DateOfBirth = &dob
	}
	if in.PhotoKey != nil {
		key := strings.TrimSpace(*in.PhotoKey)
		if key != "" && !media.OwnsKey(principal.Role, principal.ID, key) {
			return nil, apperrors.NewForbidden("photo key does not belong to this account")
		}
		updated.Profile.PhotoKey = key
	}

	if err := repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, apperrors.NewConflict("username already in use", map[string]any{"field": "username"})
		}
		return nil, apperrors.MapError(err)
	}
	return &updated, nil
}

// PhotoUploadURL presigns a direct upload of a new profile photo.
func (s *ProfileService) PhotoUploadURL(ctx context.Context, principal *domain.Principal, contentType string) (*media.Upload, error) {
	if s.photos == nil {
		return nil, apperrors.NewDomainError(apperrors.CodeUpstream, "photo storage is not configured", http.StatusServiceUnavailable, nil)
	}
	upload, err := s.photos.PresignUpload(ctx, principal.Role, principal.ID, contentType)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedContentType) {
			return nil, apperrors.NewValidationError("unsupported content type", map[string]any{"field": "contentType"})
		}
		return nil, apperrors.NewUpstreamError("failed to presign upload", err)
	}
	return upload, nil
}

// MaxPageSize bounds one page of the admin account listing.
const MaxPageSize = 100

const defaultPageSize = 50

// ListPrincipals returns one page of a role's accounts. Pages start at 1; a
// page size outside 1..MaxPageSize falls back to the default.
func (s *ProfileService) ListPrincipals(ctx context.Context, role domain.Role, page, pageSize int) ([]domain.Principal, error) {
	repo := s.principals.For(role)
	if repo == nil {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = defaultPageSize
	}
	if page < 1 {
		page = 1
	}
	if page > math.MaxInt32/pageSize {
		return []domain.Principal{}, nil
	}
	list, err := repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return list, nil
}

// DeletePrincipal removes a User account, releases its email and drops any
// pending codes. Admin and seller accounts are never hard-deleted.
func (s *ProfileService) DeletePrincipal(ctx context.Context, role domain.Role, id string) error {
	if role != domain.RoleUser {
		return apperrors.NewForbidden("only user accounts can be deleted")
	}
	repo := s.principals.For(role)
	if repo == nil {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	if err := repo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("account", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	if err := s.codes.DeleteForPrincipal(ctx, role, id); err != nil {
		s.logger.Warn("drop codes of deleted principal", zap.String("principal_id", id), zap.Error(err))
	}
	return nil
}
