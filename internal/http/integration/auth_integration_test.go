package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestAuthIntegration_Signup_Login_Refresh_Logout(t *testing.T) {
	env := setupRouter(t)

	// sign up

	signupBody := `{
		"name": "Sam Doe",
		"email": "sam@example.com",
		"password": "password123",
		"phone": "+254711111111"
	}`

	w, response := doRequest(env.router, http.MethodPost, "/auth/signup", signupBody, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("signup got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var signedUp authResponse
	mustReadJSON(t, w, &signedUp)

	if strings.TrimSpace(signedUp.AccessToken) == "" {
		t.Fatalf("signup expected accessToken, got empty")
	}

	if signedUp.User.Role != "car_owner" {
		t.Fatalf("signup default role = %q, want car_owner", signedUp.User.Role)
	}

	signupRefresh := extractRefreshCookie(t, response)

	// REFRESH (happy path)

	w2, response2 := doRequest(env.router, http.MethodPost, "/auth/refresh", "", "", signupRefresh)

	if w2.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want %d, body=%s", w2.Code, http.StatusOK, w2.Body.String())
	}

	var refreshed authResponse
	mustReadJSON(t, w2, &refreshed)

	if strings.TrimSpace(refreshed.AccessToken) == "" {
		t.Fatalf("refresh expected access token, got empty")
	}

	rotatedRefresh := extractRefreshCookie(t, response2)

	// Refresh with OLD cookie should now fail (rotation)
	w3, _ := doRequest(env.router, http.MethodPost, "/auth/refresh", "", "", signupRefresh)

	if w3.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(old cookie) got status %d, want %d, body=%s", w3.Code, http.StatusUnauthorized, w3.Body.String())
	}

	// Reuse of a rotated token cuts every session, so the new cookie is dead too
	w4, _ := doRequest(env.router, http.MethodPost, "/auth/refresh", "", "", rotatedRefresh)

	if w4.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(after reuse) got status %d, want %d, body=%s", w4.Code, http.StatusUnauthorized, w4.Body.String())
	}

	// fresh login, then logout should revoke and clear the cookie

	w5, response5 := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"sam@example.com","password":"password123"}`, "")

	if w5.Code != http.StatusOK {
		t.Fatalf("login got status %d, body=%s", w5.Code, w5.Body.String())
	}

	loginRefresh := extractRefreshCookie(t, response5)

	w6, response6 := doRequest(env.router, http.MethodPost, "/auth/logout", "", "", loginRefresh)

	if w6.Code != http.StatusOK {
		t.Fatalf("logout got status %d, want %d, body=%s", w6.Code, http.StatusOK, w6.Body.String())
	}

	cleared := false

	for _, c := range response6.Cookies() {
		if c.Name == "refresh_token" && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}

	if !cleared {
		t.Fatalf("expected logout to clear refresh_token cookie")
	}

	// refresh after logout should fail
	w7, _ := doRequest(env.router, http.MethodPost, "/auth/refresh", "", "", loginRefresh)

	if w7.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(after logout) got status %d, want %d, body=%s", w7.Code, http.StatusUnauthorized, w7.Body.String())
	}
}

func TestAuthIntegration_Refresh_MissingCookie(t *testing.T) {
	env := setupRouter(t)

	w, _ := doRequest(env.router, http.MethodPost, "/auth/refresh", "", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(missing cookie) got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}

	var e apiErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)

	if e.Error.Code != "invalid_refresh" {
		t.Fatalf("expected invalid_refresh, got %s", e.Error.Code)
	}
}

func TestAuthIntegration_Login_InvalidCredentials(t *testing.T) {
	env := setupRouter(t)

	// no user created
	w, _ := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"nope@example.com","password":"wrong-password"}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login(invalid creds) got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}

	var e apiErrorResponse
	mustReadJSON(t, w, &e)

	if e.Error.Message != "Email or password is incorrect." {
		t.Fatalf("login error message = %q", e.Error.Message)
	}

	// wrong password against an existing account yields the same message
	signupCarOwner(t, env, "exists@example.com")

	w2, _ := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"exists@example.com","password":"wrong-password"}`, "")

	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("login(wrong password) got status %d, body=%s", w2.Code, w2.Body.String())
	}

	var e2 apiErrorResponse
	mustReadJSON(t, w2, &e2)

	if e2.Error.Message != e.Error.Message {
		t.Fatalf("error messages differ: %q vs %q, account existence leaks", e.Error.Message, e2.Error.Message)
	}
}

func TestAuthIntegration_Login_DeactivatedAccount(t *testing.T) {
	env := setupRouter(t)

	_, userID := signupCarOwner(t, env, "gone@example.com")

	if err := env.users.SoftDelete(context.Background(), userID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	w, _ := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"gone@example.com","password":"password123"}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login(deactivated) got status %d, body=%s", w.Code, w.Body.String())
	}

	var e apiErrorResponse
	mustReadJSON(t, w, &e)

	if e.Error.Code != "account_deactivated" {
		t.Fatalf("error code = %q, want account_deactivated", e.Error.Code)
	}

	if e.Error.Message != "Account is deactivated. Contact admin." {
		t.Fatalf("error message = %q", e.Error.Message)
	}
}

func TestAuthIntegration_Signup_DuplicateEmail(t *testing.T) {
	env := setupRouter(t)

	signupCarOwner(t, env, "dup@example.com")

	body := `{
		"name": "Second Sam",
		"email": "DUP@example.com",
		"password": "password123",
		"phone": "+254722222222"
	}`

	// email comparison is case-insensitive
	w, _ := doRequest(env.router, http.MethodPost, "/auth/signup", body, "")

	if w.Code != http.StatusConflict {
		t.Fatalf("signup(dup email) got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}

	var e apiErrorResponse
	mustReadJSON(t, w, &e)

	if e.Error.Code != "email_taken" {
		t.Fatalf("error code = %q, want email_taken", e.Error.Code)
	}
}

func TestAuthIntegration_Signup_GarageOwnerNeedsBusinessDetails(t *testing.T) {
	env := setupRouter(t)

	body := `{
		"name": "No Details",
		"email": "nodetails@example.com",
		"password": "password123",
		"phone": "+254733333333",
		"role": "garage_owner"
	}`

	w, _ := doRequest(env.router, http.MethodPost, "/auth/signup", body, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("signup(garage, no details) got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestAuthIntegration_Signup_AdminRoleNotSelfAssignable(t *testing.T) {
	env := setupRouter(t)

	body := `{
		"name": "Wannabe Admin",
		"email": "sneaky@example.com",
		"password": "password123",
		"phone": "+254744444444",
		"role": "admin"
	}`

	w, _ := doRequest(env.router, http.MethodPost, "/auth/signup", body, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("signup(role=admin) got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}
