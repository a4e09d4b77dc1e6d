package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// UsersHandler exposes the caller's directory profile.
type UsersHandler struct {
	directory repository.DirectoryRepository
}

// NewUsersHandler constructs handler. A nil directory answers from the token alone.
func NewUsersHandler(directory repository.DirectoryRepository) *UsersHandler {
	return &UsersHandler{directory: directory}
}

// Me GET /me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	resp := dto.UserResponse{ID: actor.ID, Role: actor.Role, Executive: actor.Role.IsExecutive()}
	if h.directory != nil {
		user, err := h.directory.GetUser(c.UserContext(), actor.ID)
		switch {
		case err == nil:
			resp.Name = user.Name
			resp.Email = user.Email
		case !apperrors.IsNotFound(err):
			return apperrors.MapError(err)
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}
