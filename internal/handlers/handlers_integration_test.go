package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vitrine/internal/handlers"
	"vitrine/internal/mailer"
	"vitrine/internal/middleware"
	"vitrine/internal/models"
	"vitrine/internal/repositories"
	"vitrine/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	app       *fiber.App
	userRepo  *repositories.MockUserRepository
	orderRepo *repositories.MockOrderRepository
}

// setupApp wires the full route tree against in-memory backends, the
// same shape the server assembles at boot.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	userRepo := repositories.NewMockUserRepository()
	orderRepo := repositories.NewMockOrderRepository()
	blacklist := repositories.NewMockTokenBlacklist()
	tokenTTL := 24 * time.Hour

	authService := services.NewAuthService(userRepo, orderRepo, blacklist, mailer.Noop{}, zap.NewNop(), "integration_test_secret", tokenTTL)
	orderService := services.NewOrderService(orderRepo, userRepo, nil, zap.NewNop())

	authHandler := handlers.NewAuthHandler(authService, tokenTTL)
	orderHandler := handlers.NewOrderHandler(orderService)
	userHandler := handlers.NewUserHandler(authService)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService))
	authHandler.RegisterProtectedRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	userHandler.RegisterRoutes(protected)

	admin := apiV1.Group("", middleware.AuthRequired(authService), middleware.AdminRequired())
	orderHandler.RegisterAdminRoutes(admin)

	return &testEnv{app: app, userRepo: userRepo, orderRepo: orderRepo}
}

func (env *testEnv) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	return out
}

// signup registers a fresh account and returns its token.
func (env *testEnv) signup(t *testing.T, email, password string) (string, map[string]interface{}) {
	t.Helper()
	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signup", "", fiber.Map{
		"email": email, "password": password, "name": "Test User",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]interface{})
	require.NotNil(t, user)
	return token, user
}

// seedAdmin inserts an admin account directly and signs it in.
func (env *testEnv) seedAdmin(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("AdminPass1"), bcrypt.MinCost)
	require.NoError(t, err)
	admin := &models.User{
		Email:    "admin@example.com",
		Password: string(hash),
		Name:     "Admin",
		Role:     models.RoleAdmin,
	}
	require.NoError(t, env.userRepo.Create(context.Background(), admin))

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "admin@example.com", "password": "AdminPass1",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token, _ := decodeBody(t, resp)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func checkoutPayload() fiber.Map {
	return fiber.Map{
		"email": "buyer@example.com",
		"items": []fiber.Map{
			{"product_id": "prod-1", "name": "Ceramic Mug", "price": 12.50, "quantity": 2},
		},
		"shipping_address": fiber.Map{
			"street": "1 Main St", "city": "Springfield", "country": "US",
		},
		"payment_method": fiber.Map{"method": "card", "card_brand": "visa", "last4": "4242"},
		"subtotal":       25.0,
		"shipping_cost":  5.0,
		"tax":            2.5,
		"total":          32.5,
	}
}

func TestSignupFlow(t *testing.T) {
	env := setupApp(t)

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signup", "", fiber.Map{
		"email": "new@example.com", "password": "Secure123", "name": "New User",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == middleware.AuthCookie {
			cookie = c.Value
		}
	}
	assert.NotEmpty(t, cookie, "signup should set the auth cookie")

	body := decodeBody(t, resp)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "new@example.com", user["email"])
	assert.Equal(t, "customer", user["role"])
	// The hash must never leak into the response.
	_, exposed := user["password"]
	assert.False(t, exposed)

	// Same address again conflicts.
	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signup", "", fiber.Map{
		"email": "new@example.com", "password": "Secure123", "name": "Clone",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	env := setupApp(t)

	for _, password := range []string{"short1", "nodigitshere", "12345678"} {
		resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signup", "", fiber.Map{
			"email": "weak@example.com", "password": password, "name": "Weak",
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "password %q", password)
		resp.Body.Close()
	}
}

func TestSigninFlow(t *testing.T) {
	env := setupApp(t)
	env.signup(t, "signin@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "Signin@Example.com", "password": "Secure123",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])

	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "signin@example.com", "password": "WrongPass1",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupApp(t)

	resp := env.request(t, fiber.MethodGet, "/api/v1/orders/", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/", "garbage.token.here", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthCookieFallback(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "cookie@example.com", "Secure123")

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/user/sessions", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: token})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateOrder(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "buyer@example.com", "Secure123")

	// Empty items fail route validation before the service runs.
	payload := checkoutPayload()
	payload["items"] = []fiber.Map{}
	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", token, payload)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPost, "/api/v1/orders/", token, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	order := decodeBody(t, resp)
	assert.Equal(t, "pending", order["status"])
	orderNumber, _ := order["order_number"].(string)
	assert.Contains(t, orderNumber, "ORD-")

	// The order shows up under the buyer's list and by ID.
	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var orders []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	resp.Body.Close()
	require.Len(t, orders, 1)

	orderID := order["id"].(string)
	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestGetOrderOwnership(t *testing.T) {
	env := setupApp(t)
	ownerToken, _ := env.signup(t, "owner@example.com", "Secure123")
	strangerToken, _ := env.signup(t, "stranger@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", ownerToken, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := decodeBody(t, resp)["id"].(string)

	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/"+orderID, strangerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/"+orderID, env.seedAdmin(t), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelOrder(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "cancel@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", token, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := decodeBody(t, resp)["id"].(string)

	resp = env.request(t, fiber.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "cancelled", order["status"])
}

func TestCancelOrderAfterWindow(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "late@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", token, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := decodeBody(t, resp)["id"].(string)

	// Age the order past the window directly in the store.
	stored, err := env.orderRepo.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	stored.Status = models.StatusConfirmed
	stored.CreatedAt = time.Now().UTC().Add(-31 * time.Minute)
	require.NoError(t, env.orderRepo.Update(context.Background(), stored))

	resp = env.request(t, fiber.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), token, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Order cancellation window has expired (30 minutes)", body["message"])
}

func TestAdminStatusUpdates(t *testing.T) {
	env := setupApp(t)
	customerToken, _ := env.signup(t, "shopper@example.com", "Secure123")
	adminToken := env.seedAdmin(t)

	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", customerToken, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := decodeBody(t, resp)["id"].(string)
	statusPath := fmt.Sprintf("/api/v1/orders/%s/status", orderID)

	// Customers cannot touch the status endpoint.
	resp = env.request(t, fiber.MethodPatch, statusPath, customerToken, fiber.Map{"status": "confirmed"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPatch, statusPath, adminToken, fiber.Map{"status": "confirmed"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	order := decodeBody(t, resp)
	assert.Equal(t, "confirmed", order["status"])

	// Moving back to pending is off the transition table.
	resp = env.request(t, fiber.MethodPatch, statusPath, adminToken, fiber.Map{"status": "pending"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Admins see every order in the list view.
	resp = env.request(t, fiber.MethodGet, "/api/v1/orders/", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var orders []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	resp.Body.Close()
	assert.Len(t, orders, 1)
}

func TestSessionManagement(t *testing.T) {
	env := setupApp(t)
	firstToken, _ := env.signup(t, "sessions@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "sessions@example.com", "password": "Secure123",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	secondToken := decodeBody(t, resp)["token"].(string)

	resp = env.request(t, fiber.MethodGet, "/api/v1/user/sessions", secondToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sessions := decodeBody(t, resp)["sessions"].([]interface{})
	assert.Len(t, sessions, 2)

	// Revoke everything but the current session.
	resp = env.request(t, fiber.MethodDelete, "/api/v1/user/sessions", secondToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["revoked"])

	// The first token is dead, the current one still works.
	resp = env.request(t, fiber.MethodGet, "/api/v1/user/sessions", firstToken, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodGet, "/api/v1/user/sessions", secondToken, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRevokeSingleSession(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "revoke-one@example.com", "Secure123")

	resp := env.request(t, fiber.MethodGet, "/api/v1/user/sessions", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sessions := decodeBody(t, resp)["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	sessionID := sessions[0].(map[string]interface{})["id"].(string)

	resp = env.request(t, fiber.MethodDelete, "/api/v1/user/sessions/"+sessionID, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The session backed the caller's own token.
	resp = env.request(t, fiber.MethodGet, "/api/v1/user/sessions", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := setupApp(t)
	env.signup(t, "forgot@example.com", "OldPass123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/forgot-password", "", fiber.Map{
		"email": "forgot@example.com",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Unknown addresses get the same answer.
	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/forgot-password", "", fiber.Map{
		"email": "ghost@example.com",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := env.userRepo.GetByEmail(context.Background(), "forgot@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.ResetCode)
	code := stored.ResetCode.Code

	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/verify-reset-code", "", fiber.Map{
		"email": "forgot@example.com", "code": code,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/reset-password", "", fiber.Map{
		"email": "forgot@example.com", "code": code, "new_password": "NewPass456",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Only the new password signs in.
	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "forgot@example.com", "password": "OldPass123",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "forgot@example.com", "password": "NewPass456",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestChangePassword(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "change@example.com", "OldPass123")

	resp := env.request(t, fiber.MethodPut, "/api/v1/auth/change-password", token, fiber.Map{
		"current_password": "WrongPass1", "new_password": "NewPass456",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPut, "/api/v1/auth/change-password", token, fiber.Map{
		"current_password": "OldPass123", "new_password": "NewPass456",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The current session survives the change.
	resp = env.request(t, fiber.MethodGet, "/api/v1/user/sessions", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteAccount(t *testing.T) {
	env := setupApp(t)
	token, _ := env.signup(t, "leaving@example.com", "Secure123")

	resp := env.request(t, fiber.MethodPost, "/api/v1/orders/", token, checkoutPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	orderID := decodeBody(t, resp)["id"].(string)

	resp = env.request(t, fiber.MethodDelete, "/api/v1/user/", token, fiber.Map{
		"password": "WrongPass1",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodDelete, "/api/v1/user/", token, fiber.Map{
		"password": "Secure123",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The account is gone and its credentials dead.
	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "leaving@example.com", "password": "Secure123",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The order survives, detached and scrubbed.
	kept, err := env.orderRepo.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Empty(t, kept.UserID)
	assert.NotEqual(t, "leaving@example.com", kept.Email)
}

func TestEmailVerification(t *testing.T) {
	env := setupApp(t)
	token, user := env.signup(t, "verify-me@example.com", "Secure123")
	userID := user["id"].(string)

	stored, err := env.userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationCode)

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/verify", token, fiber.Map{
		"code": "000000",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/verify", token, fiber.Map{
		"code": stored.VerificationCode.Code,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err = env.userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
}

func TestEmailChange(t *testing.T) {
	env := setupApp(t)
	token, user := env.signup(t, "before@example.com", "Secure123")
	userID := user["id"].(string)

	resp := env.request(t, fiber.MethodPost, "/api/v1/auth/change-email", token, fiber.Map{
		"password": "Secure123", "new_email": "after@example.com",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := env.userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, stored.EmailChangeCode)

	resp = env.request(t, fiber.MethodPut, "/api/v1/auth/change-email", token, fiber.Map{
		"code": stored.EmailChangeCode.Code,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The new address signs in, verified.
	resp = env.request(t, fiber.MethodPost, "/api/v1/auth/signin", "", fiber.Map{
		"email": "after@example.com", "password": "Secure123",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err = env.userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
}
