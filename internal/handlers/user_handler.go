package handlers

import (
	"time"

	"vitrine/internal/middleware"
	"vitrine/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// UserHandler handles HTTP requests for session management and account
// deletion.
type UserHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the user routes. The router is expected to
// carry the auth middleware.
func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/user")
	userRoutes.Get("/sessions", h.HandleListSessions)
	userRoutes.Delete("/sessions/:id", h.HandleRevokeSession)
	userRoutes.Delete("/sessions", h.HandleRevokeOtherSessions)
	userRoutes.Delete("/", h.HandleDeleteAccount)
}

// HandleListSessions returns the caller's active sessions.
func (h *UserHandler) HandleListSessions(c *fiber.Ctx) error {
	sessions, err := h.authService.Sessions(c.Context(), currentUserID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// HandleRevokeSession revokes a single session. The backing token is
// rejected from the next request on.
func (h *UserHandler) HandleRevokeSession(c *fiber.Ctx) error {
	if err := h.authService.RevokeSession(c.Context(), currentUserID(c), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Session revoked"})
}

// HandleRevokeOtherSessions revokes every session except the current
// one.
func (h *UserHandler) HandleRevokeOtherSessions(c *fiber.Ctx) error {
	revoked, err := h.authService.RevokeOtherSessions(c.Context(), currentUserID(c), currentTokenID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Other sessions revoked",
		"revoked": revoked,
	})
}

// DeleteAccountRequest re-confirms the password before deletion.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// HandleDeleteAccount anonymizes the caller's orders and deletes the
// account.
func (h *UserHandler) HandleDeleteAccount(c *fiber.Ctx) error {
	var req DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.DeleteAccount(c.Context(), currentUserID(c), req.Password); err != nil {
		return serviceError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AuthCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Account deleted"})
}
