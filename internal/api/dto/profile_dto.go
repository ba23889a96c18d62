package dto

import (
	"time"

	"github.com/quickbites/identity-service/internal/domain"
)

// ProfileResponse is the public view of a principal.
type ProfileResponse struct {
	ID           string     `json:"id"`
	Role         string     `json:"role"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	BusinessName string     `json:"businessName,omitempty"`
	PhotoKey     string     `json:"photoKey,omitempty"`
	PhotoURL     string     `json:"photoUrl,omitempty"`
	Provider     string     `json:"provider"`
	HasPassword  bool       `json:"hasPassword"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// UpdateProfileRequest holds optional profile changes.
type UpdateProfileRequest struct {
	Name         *string    `json:"name" validate:"omitempty,min=2"`
	Username     *string    `json:"username" validate:"omitempty,min=3,max=32"`
	Phone        *string    `json:"phone" validate:"omitempty,max=32"`
	Address      *string    `json:"address" validate:"omitempty,max=255"`
	Gender       *string    `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	PhotoKey     *string    `json:"photoKey"`
	BusinessName *string    `json:"businessName" validate:"omitempty,max=120"`
}

// PhotoUploadRequest asks for a presigned upload URL.
type PhotoUploadRequest struct {
	ContentType string `json:"contentType" validate:"required,oneof=image/jpeg image/png image/webp"`
}

// NewProfileResponse maps a principal to its public view.
func NewProfileResponse(p *domain.Principal, photoURL string) ProfileResponse {
	return ProfileResponse{
		ID:           p.ID,
		Role:         string(p.Role),
		Name:         p.Name,
		Email:        p.Email,
		Username:     p.Profile.Username,
		Phone:        p.Profile.Phone,
		Address:      p.Profile.Address,
		Gender:       p.Profile.Gender,
		DateOfBirth:  p.Profile.DateOfBirth,
		BusinessName: p.Profile.BusinessName,
		PhotoKey:     p.Profile.PhotoKey,
		PhotoURL:     photoURL,
		Provider:     string(p.Provider),
		HasPassword:  p.HasPassword(),
		CreatedAt:    p.CreatedAt,
	}
}
