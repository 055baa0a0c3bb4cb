package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/garagehub/internal/config"
	"github.com/geocoder89/garagehub/internal/domain/user"
	apphttp "github.com/geocoder89/garagehub/internal/http"
	"github.com/geocoder89/garagehub/internal/payments"
	"github.com/geocoder89/garagehub/internal/repo/memory"
	"github.com/geocoder89/garagehub/internal/security"
	"github.com/geocoder89/garagehub/internal/uploads"
)

const webhookTestSecret = "whsec_test"

func testConfig() config.Config {
	return config.Config{
		Env:                    "test",
		Port:                   0,
		JWTSecret:              "test-secret-key",
		JWTAccessTTLMinutes:    60,
		JWTRefreshTTLDays:      7,
		PaymentWebhookSecret:   webhookTestSecret,
		RegistrationPriceCents: 5000,
		MaxBodyBytes:           1 << 20,
		CORSAllowedOrigins:     []string{"http://localhost:3000"},
	}
}

type testEnv struct {
	router *gin.Engine
	users  *memory.UsersRepo
	tokens *memory.RefreshTokensRepo
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	users := memory.NewUsersRepo()
	tokens := memory.NewRefreshTokensRepo()

	uploader, err := uploads.NewDiskUploader(t.TempDir(), "/uploads")

	if err != nil {
		t.Fatalf("uploader setup: %v", err)
	}

	router := apphttp.NewRouter(apphttp.Deps{
		Cfg:      testConfig(),
		Log:      logger,
		Users:    users,
		Tokens:   tokens,
		Uploader: uploader,
		Registry: prometheus.NewRegistry(),
	})

	return &testEnv{router: router, users: users, tokens: tokens}
}

// helpers

// doRequest runs one request through the router; token sets the bearer header
// and cookies ride along untouched.
func doRequest(router http.Handler, method, path, body, token string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()

	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type authResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	User        struct {
		ID            string              `json:"id"`
		Role          string              `json:"role"`
		GarageProfile *user.GarageProfile `json:"garageProfile"`
	} `json:"user"`
}

type apiErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

func extractRefreshCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}

	t.Fatalf("refresh_token cookie not found in response")

	return nil
}

// signupGarageOwner registers a fresh garage owner and returns its token and id.
func signupGarageOwner(t *testing.T, env *testEnv, email string) (token, userID string) {
	t.Helper()

	body := fmt.Sprintf(`{
		"name": "Pat Mwangi",
		"email": %q,
		"password": "password123",
		"phone": "+254700000001",
		"role": "garage_owner",
		"licenseNumber": "LIC-2201",
		"garageName": "Pat Auto Works",
		"address": "12 Workshop Rd",
		"city": "Nairobi"
	}`, email)

	w, _ := doRequest(env.router, http.MethodPost, "/auth/signup", body, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("garage owner signup got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp authResponse
	mustReadJSON(t, w, &resp)

	if resp.User.ID == "" || resp.AccessToken == "" {
		t.Fatalf("signup response missing id or token: %s", w.Body.String())
	}

	return resp.AccessToken, resp.User.ID
}

func signupCarOwner(t *testing.T, env *testEnv, email string) (token, userID string) {
	t.Helper()

	body := fmt.Sprintf(`{
		"name": "Ava Njeri",
		"email": %q,
		"password": "password123",
		"phone": "+254700000002",
		"role": "car_owner"
	}`, email)

	w, _ := doRequest(env.router, http.MethodPost, "/auth/signup", body, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("car owner signup got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp authResponse
	mustReadJSON(t, w, &resp)

	return resp.AccessToken, resp.User.ID
}

// seedAdmin creates an admin account straight into the store; admin signup has
// no public endpoint.
func seedAdmin(t *testing.T, env *testEnv, email string) {
	t.Helper()

	hash, err := security.HashPassword("admin-password-123")

	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}

	_, err = env.users.Create(context.Background(), user.User{
		Name:         "Test Admin",
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		Active:       true,
	})

	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
}

// adminToken seeds the default admin account and logs it in.
func adminToken(t *testing.T, env *testEnv) string {
	t.Helper()

	seedAdmin(t, env, "admin@garagehub.test")

	w, _ := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"admin@garagehub.test","password":"admin-password-123"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("admin login got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp authResponse
	mustReadJSON(t, w, &resp)

	return resp.AccessToken
}

func webhookEventBody(eventType, userID string) string {
	return fmt.Sprintf(`{
		"id": "evt_%s",
		"type": %q,
		"data": {
			"object": {
				"id": "pi_test",
				"amount": 5000,
				"currency": "usd",
				"metadata": {"userId": %q}
			}
		}
	}`, userID, eventType, userID)
}

// deliverWebhook signs and posts a provider event the way the real provider
// would.
func deliverWebhook(t *testing.T, env *testEnv, eventType, userID string) *httptest.ResponseRecorder {
	t.Helper()

	payload := webhookEventBody(eventType, userID)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payments.SignatureHeader,
		payments.SignatureHeaderValue([]byte(payload), webhookTestSecret, time.Now().Unix()))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	return w
}

func payForGarage(t *testing.T, env *testEnv, userID string) {
	t.Helper()

	w := deliverWebhook(t, env, payments.EventPaymentSucceeded, userID)

	if w.Code != http.StatusOK {
		t.Fatalf("payment webhook got status %d, body=%s", w.Code, w.Body.String())
	}
}

func approveGarage(t *testing.T, env *testEnv, admin, userID string) {
	t.Helper()

	w, _ := doRequest(env.router, http.MethodPatch, "/admin/garages/"+userID+"/approval",
		`{"decision":"approved"}`, admin)

	if w.Code != http.StatusOK {
		t.Fatalf("approval got status %d, body=%s", w.Code, w.Body.String())
	}
}
