package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and stores the caller as a domain.Actor.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.DirectoryRepository
}

// NewAuthMiddleware constructs middleware. When users is non-nil the subject
// must still exist in the directory and its current role wins over the token's.
func NewAuthMiddleware(tokens *TokenManager, users repository.DirectoryRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	actor := claims.Actor()

	if m.users != nil {
		user, err := m.users.GetUser(c.UserContext(), actor.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewUnauthorized("user not found")
			}
			return apperrors.MapError(err)
		}
		actor.Role = user.Role
	}

	c.Locals(actorKey, actor)
	return c.Next()
}

// ActorFromContext retrieves the authenticated caller.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}
