package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/quickbites/identity-service/internal/api/dto"
	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/service"
	apperrors "github.com/quickbites/identity-service/pkg/util"
)

// ProfileHandler serves the signed-in principal's own profile.
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler constructs handler.
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get handles GET /api/me.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	view, err := h.profiles.GetProfile(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "profile fetched",
		"profile": dto.NewProfileResponse(view.Principal, view.PhotoURL),
	})
}

// Update handles PUT /api/me.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	updated, err := h.profiles.UpdateProfile(c.UserContext(), principal, service.ProfileUpdate{
		Name:         req.Name,
		Username:     req.Username,
		Phone:        req.Phone,
		Address:      req.Address,
		Gender:       req.Gender,
		DateOfBirth:  req.DateOfBirth,
		PhotoKey:     req.PhotoKey,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "profile updated",
		"profile": dto.NewProfileResponse(updated, ""),
	})
}

// PhotoUploadURL handles POST /api/me/photo-upload-url.
func (h *ProfileHandler) PhotoUploadURL(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.PhotoUploadRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	upload, err := h.profiles.PhotoUploadURL(c.UserContext(), principal, req.ContentType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "upload url issued", "upload": upload})
}

// AdminHandler exposes account management to admins.
type AdminHandler struct {
	profiles *service.ProfileService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(profiles *service.ProfileService) *AdminHandler {
	return &AdminHandler{profiles: profiles}
}

// List handles GET /api/admin/users?role=user&page=1&page_size=50.
func (h *AdminHandler) List(c *fiber.Ctx) error {
	role, err := roleQuery(c)
	if err != nil {
		return err
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)

	list, err := h.profiles.ListPrincipals(c.UserContext(), role, page, pageSize)
	if err != nil {
		return err
	}
	resp := make([]dto.ProfileResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewProfileResponse(&list[i], ""))
	}
	return c.JSON(fiber.Map{"success": true, "message": "accounts fetched", "users": resp})
}

// Delete handles DELETE /api/admin/users/:id. Only user accounts can be removed.
func (h *AdminHandler) Delete(c *fiber.Ctx) error {
	role, err := roleQuery(c)
	if err != nil {
		return err
	}
	if err := h.profiles.DeletePrincipal(c.UserContext(), role, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "account deleted"})
}

func roleQuery(c *fiber.Ctx) (domain.Role, error) {
	raw := c.Query("role", "user")
	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", apperrors.NewValidationError("unknown role", map[string]any{"role": raw})
	}
	return role, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
