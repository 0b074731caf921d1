package handlers

import (
	"strings"
	"time"
	"unicode"

	"vitrine/internal/middleware"
	"vitrine/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication and account
// credential flows.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	tokenTTL    time.Duration
}

// NewAuthHandler creates a new AuthHandler. tokenTTL bounds the auth
// cookie lifetime to the token's.
func NewAuthHandler(authService *services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
		tokenTTL:    tokenTTL,
	}
}

// RegisterRoutes registers the public authentication routes.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/signup", h.HandleSignup)
	authRoutes.Post("/signin", h.HandleSignin)
	authRoutes.Post("/forgot-password", h.HandleForgotPassword)
	authRoutes.Post("/verify-reset-code", h.HandleVerifyResetCode)
	authRoutes.Post("/reset-password", h.HandleResetPassword)
}

// RegisterProtectedRoutes registers the auth routes that require a
// valid token.
func (h *AuthHandler) RegisterProtectedRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/verify", h.HandleVerifyEmail)
	authRoutes.Put("/change-password", h.HandleChangePassword)
	authRoutes.Post("/change-email", h.HandleRequestEmailChange)
	authRoutes.Put("/change-email", h.HandleConfirmEmailChange)
}

// SignupRequest represents the request body for signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
}

// HandleSignup handles new user registration.
func (h *AuthHandler) HandleSignup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}
	if !strongPassword(req.Password) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Password must be at least 8 characters and contain a letter and a number",
		})
	}

	user, token, err := h.authService.Signup(c.Context(), req.Email, req.Password, req.Name, sessionMetaFrom(c))
	if err != nil {
		return serviceError(c, err)
	}

	h.setAuthCookie(c, token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created",
		"user":    user,
		"token":   token,
	})
}

// SigninRequest represents the request body for signin.
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleSignin handles user login and issues a bearer token.
func (h *AuthHandler) HandleSignin(c *fiber.Ctx) error {
	var req SigninRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	user, token, err := h.authService.Signin(c.Context(), req.Email, req.Password, sessionMetaFrom(c))
	if err != nil {
		return serviceError(c, err)
	}

	h.setAuthCookie(c, token)
	return c.JSON(fiber.Map{
		"message": "Signed in",
		"user":    user,
		"token":   token,
	})
}

// VerifyEmailRequest carries the emailed verification code.
type VerifyEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// HandleVerifyEmail consumes the verification code for the
// authenticated user.
func (h *AuthHandler) HandleVerifyEmail(c *fiber.Ctx) error {
	var req VerifyEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.VerifyEmail(c.Context(), currentUserID(c), req.Code); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Email verified"})
}

// ForgotPasswordRequest starts the reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleForgotPassword issues a reset code. The response is identical
// whether or not the address is registered.
func (h *AuthHandler) HandleForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "If the email is registered, a reset code has been sent",
	})
}

// VerifyResetCodeRequest checks a reset code without consuming it.
type VerifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// HandleVerifyResetCode validates a reset code ahead of the actual
// password reset.
func (h *AuthHandler) HandleVerifyResetCode(c *fiber.Ctx) error {
	var req VerifyResetCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.VerifyResetCode(c.Context(), req.Email, req.Code); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Reset code is valid"})
}

// ResetPasswordRequest completes the reset flow.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required"`
}

// HandleResetPassword consumes the reset code and sets the new password.
func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}
	if !strongPassword(req.NewPassword) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Password must be at least 8 characters and contain a letter and a number",
		})
	}

	if err := h.authService.ResetPassword(c.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

// ChangePasswordRequest replaces the password of a signed-in user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// HandleChangePassword replaces the password after re-checking the
// current one.
func (h *AuthHandler) HandleChangePassword(c *fiber.Ctx) error {
	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}
	if !strongPassword(req.NewPassword) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Password must be at least 8 characters and contain a letter and a number",
		})
	}

	err := h.authService.ChangePassword(c.Context(), currentUserID(c), req.CurrentPassword, req.NewPassword, currentTokenID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password changed"})
}

// ChangeEmailRequest starts the email change flow.
type ChangeEmailRequest struct {
	Password string `json:"password" validate:"required"`
	NewEmail string `json:"new_email" validate:"required,email"`
}

// HandleRequestEmailChange stores the pending address and mails it a
// confirmation code.
func (h *AuthHandler) HandleRequestEmailChange(c *fiber.Ctx) error {
	var req ChangeEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.RequestEmailChange(c.Context(), currentUserID(c), req.Password, req.NewEmail); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Confirmation code sent to the new address"})
}

// ConfirmEmailChangeRequest completes the email change flow.
type ConfirmEmailChangeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// HandleConfirmEmailChange consumes the code and swaps the address.
func (h *AuthHandler) HandleConfirmEmailChange(c *fiber.Ctx) error {
	var req ConfirmEmailChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.ConfirmEmailChange(c.Context(), currentUserID(c), req.Code); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Email address updated"})
}

func (h *AuthHandler) setAuthCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.AuthCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.tokenTTL),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func currentTokenID(c *fiber.Ctx) string {
	id, _ := c.Locals("token_id").(string)
	return id
}

// strongPassword requires at least 8 characters with a letter and a
// digit.
func strongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// sessionMetaFrom derives the session bookkeeping fields from the
// request. Coarse user-agent sniffing is enough for the sessions view.
func sessionMetaFrom(c *fiber.Ctx) services.SessionMeta {
	ua := c.Get("User-Agent")
	return services.SessionMeta{
		Device:    deviceFromUA(ua),
		Browser:   browserFromUA(ua),
		IPAddress: c.IP(),
	}
}

func deviceFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "android"), strings.Contains(lower, "iphone"):
		return "mobile"
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"):
		return "tablet"
	case ua == "":
		return "unknown"
	default:
		return "desktop"
	}
}

func browserFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "edg"):
		return "Edge"
	case strings.Contains(lower, "chrome"):
		return "Chrome"
	case strings.Contains(lower, "firefox"):
		return "Firefox"
	case strings.Contains(lower, "safari"):
		return "Safari"
	default:
		return "unknown"
	}
}
