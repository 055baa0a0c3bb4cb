package integration_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAccount_MeUpdateAndDelete(t *testing.T) {
	env := setupRouter(t)

	token, userID := signupCarOwner(t, env, "me@account.test")

	// read own profile
	w, _ := doRequest(env.router, http.MethodGet, "/users/me", "", token)

	if w.Code != http.StatusOK {
		t.Fatalf("me got status %d, body=%s", w.Code, w.Body.String())
	}

	var me authResponse
	mustReadJSON(t, w, &me)

	if me.User.ID != userID {
		t.Fatalf("me id = %q, want %q", me.User.ID, userID)
	}

	// the password hash never leaves the API
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("me response leaks password material: %s", w.Body.String())
	}

	// partial update: name only
	w2, _ := doRequest(env.router, http.MethodPut, "/users/me", `{"name":"Ava Renamed"}`, token)

	if w2.Code != http.StatusOK {
		t.Fatalf("update got status %d, body=%s", w2.Code, w2.Body.String())
	}

	var updated struct {
		User struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		} `json:"user"`
	}

	mustReadJSON(t, w2, &updated)

	if updated.User.Name != "Ava Renamed" {
		t.Fatalf("name = %q, want Ava Renamed", updated.User.Name)
	}

	if updated.User.Phone == "" {
		t.Fatalf("phone cleared by partial update")
	}

	// password change takes effect on the next login
	w3, _ := doRequest(env.router, http.MethodPut, "/users/me", `{"password":"new-password-456"}`, token)

	if w3.Code != http.StatusOK {
		t.Fatalf("password update got status %d, body=%s", w3.Code, w3.Body.String())
	}

	w4, _ := doRequest(env.router, http.MethodPost, "/auth/login",
		`{"email":"me@account.test","password":"new-password-456"}`, "")

	if w4.Code != http.StatusOK {
		t.Fatalf("login with new password got status %d, body=%s", w4.Code, w4.Body.String())
	}

	// delete own account
	w5, _ := doRequest(env.router, http.MethodDelete, "/users/me", "", token)

	if w5.Code != http.StatusOK {
		t.Fatalf("delete got status %d, body=%s", w5.Code, w5.Body.String())
	}

	// the account is gone from normal reads
	w6, _ := doRequest(env.router, http.MethodGet, "/users/me", "", token)

	if w6.Code != http.StatusNotFound {
		t.Fatalf("me(after delete) got status %d, want 404, body=%s", w6.Code, w6.Body.String())
	}

	// and its sessions are revoked
	if n := env.tokens.ActiveCount(userID); n != 0 {
		t.Fatalf("active tokens after delete = %d, want 0", n)
	}
}

func TestAccount_GarageProfileUpdate(t *testing.T) {
	env := setupRouter(t)

	token, _ := signupGarageOwner(t, env, "profile@account.test")

	w, _ := doRequest(env.router, http.MethodPut, "/garage/profile",
		`{"hourlyRate":75.5,"capacity":6,"description":"Open late"}`, token)

	if w.Code != http.StatusOK {
		t.Fatalf("profile update got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp authResponse
	mustReadJSON(t, w, &resp)

	p := resp.User.GarageProfile

	if p == nil || p.HourlyRate != 75.5 || p.Capacity != 6 || p.Description != "Open late" {
		t.Fatalf("profile = %+v", p)
	}

	// workflow fields are untouchable through this endpoint
	if p.PaymentStatus != "pending" || p.ApprovalStatus != "pending" {
		t.Fatalf("workflow fields moved: payment=%q approval=%q", p.PaymentStatus, p.ApprovalStatus)
	}

	// car owners have no garage profile to update
	carToken, _ := signupCarOwner(t, env, "nocar@account.test")

	w2, _ := doRequest(env.router, http.MethodPut, "/garage/profile", `{"capacity":1}`, carToken)

	if w2.Code != http.StatusForbidden {
		t.Fatalf("profile update(car owner) got status %d, want 403, body=%s", w2.Code, w2.Body.String())
	}
}

func uploadLicense(t *testing.T, env *testEnv, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("document", filename)

	if err != nil {
		t.Fatalf("create form file: %v", err)
	}

	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}

	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/garage/uploads/license", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	return w
}

func TestAccount_LicenseUpload(t *testing.T) {
	env := setupRouter(t)

	token, _ := signupGarageOwner(t, env, "license@account.test")

	w := uploadLicense(t, env, token, "license.pdf", []byte("%PDF-1.4 doc"))

	if w.Code != http.StatusOK {
		t.Fatalf("upload got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		LicenseDocument string `json:"licenseDocument"`
		User            struct {
			GarageProfile struct {
				LicenseDocument string `json:"licenseDocument"`
			} `json:"garageProfile"`
		} `json:"user"`
	}

	mustReadJSON(t, w, &resp)

	if !strings.HasPrefix(resp.LicenseDocument, "/uploads/") {
		t.Fatalf("licenseDocument = %q, want an /uploads/ url", resp.LicenseDocument)
	}

	if resp.User.GarageProfile.LicenseDocument != resp.LicenseDocument {
		t.Fatalf("profile url %q differs from returned url %q",
			resp.User.GarageProfile.LicenseDocument, resp.LicenseDocument)
	}

	// unsupported extension
	w2 := uploadLicense(t, env, token, "nope.exe", []byte("MZ"))

	if w2.Code != http.StatusBadRequest {
		t.Fatalf("upload(.exe) got status %d, want 400, body=%s", w2.Code, w2.Body.String())
	}

	// car owners cannot upload licenses
	carToken, _ := signupCarOwner(t, env, "nolicense@account.test")

	w3 := uploadLicense(t, env, carToken, "license.pdf", []byte("%PDF-1.4 doc"))

	if w3.Code != http.StatusForbidden {
		t.Fatalf("upload(car owner) got status %d, want 403, body=%s", w3.Code, w3.Body.String())
	}
}
