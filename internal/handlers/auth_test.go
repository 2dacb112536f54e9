package handlers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/internal/middleware"
	"github.com/chatrelay/backend/internal/services"
	"github.com/chatrelay/backend/internal/store"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testKey, _ = rsa.GenerateKey(rand.Reader, 2048)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.MinLoginLatencyMS = 1
	return cfg
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()

	cfg := testConfig()
	authority := services.NewTokenAuthorityWithKey(testKey, &cfg.JWT)
	authService := services.NewAuthService(store.NewMemoryStore(), authority, nil)
	handler := NewAuthHandler(authService, cfg)

	r := gin.New()
	auth := r.Group("/api/auth")
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)
	auth.POST("/refresh", handler.Refresh)
	auth.POST("/verify", handler.Verify)

	protected := r.Group("/api/auth", middleware.AuthRequired(authority))
	protected.POST("/logout", handler.Logout)
	protected.GET("/me", handler.GetCurrentUser)

	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func credentialsFrom(t *testing.T, w *httptest.ResponseRecorder) *services.Credentials {
	t.Helper()

	var resp struct {
		Data services.Credentials `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return &resp.Data
}

func TestRegisterEndpoint(t *testing.T) {
	r := newAuthRouter(t)

	w := postJSON(t, r, "/api/auth/register", gin.H{
		"username": "alice",
		"password": "correct-horse",
		"email":    "alice@example.com",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	creds := credentialsFrom(t, w)
	if creds.AccessToken == "" || creds.RefreshSecret == "" {
		t.Fatal("expected a credential pair")
	}

	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "chatrelay_refresh=") {
		t.Errorf("expected refresh cookie, got %q", cookie)
	}
	if !strings.Contains(cookie, "HttpOnly") || !strings.Contains(cookie, "SameSite=Strict") {
		t.Errorf("refresh cookie missing attributes: %q", cookie)
	}

	// Duplicate, case-insensitive.
	w = postJSON(t, r, "/api/auth/register", gin.H{
		"username": "ALICE",
		"password": "battery-staple",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	r := newAuthRouter(t)

	cases := []gin.H{
		{"username": "al", "password": "correct-horse"}, // too short
		{"username": "alice"},                           // no password
		{"username": "alice", "password": "short"},      // weak password
	}
	for _, body := range cases {
		w := postJSON(t, r, "/api/auth/register", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestLoginEndpoint(t *testing.T) {
	r := newAuthRouter(t)
	postJSON(t, r, "/api/auth/register", gin.H{"username": "alice", "password": "correct-horse"}, nil)

	w := postJSON(t, r, "/api/auth/login", gin.H{"username": "alice", "password": "correct-horse"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Wrong password and unknown user give the same status.
	w = postJSON(t, r, "/api/auth/login", gin.H{"username": "alice", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", w.Code)
	}
	w = postJSON(t, r, "/api/auth/login", gin.H{"username": "nobody", "password": "whatever"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", w.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	r := newAuthRouter(t)
	creds := credentialsFrom(t, postJSON(t, r, "/api/auth/register",
		gin.H{"username": "alice", "password": "correct-horse"}, nil))

	w := postJSON(t, r, "/api/auth/refresh", gin.H{
		"user_id":       creds.UserID,
		"refresh_token": creds.RefreshSecret,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rotated := credentialsFrom(t, w)
	if rotated.RefreshSecret == creds.RefreshSecret {
		t.Error("expected a rotated refresh secret")
	}

	// The spent secret is refused.
	w = postJSON(t, r, "/api/auth/refresh", gin.H{
		"user_id":       creds.UserID,
		"refresh_token": creds.RefreshSecret,
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("spent secret: expected 401, got %d", w.Code)
	}
}

func TestRefreshEndpoint_CookieFallback(t *testing.T) {
	r := newAuthRouter(t)
	reg := postJSON(t, r, "/api/auth/register",
		gin.H{"username": "alice", "password": "correct-horse"}, nil)
	creds := credentialsFrom(t, reg)

	data, _ := json.Marshal(gin.H{"user_id": creds.UserID})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/refresh", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range reg.Result().Cookies() {
		req.AddCookie(c)
	}
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("cookie refresh: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyEndpoint(t *testing.T) {
	r := newAuthRouter(t)
	creds := credentialsFrom(t, postJSON(t, r, "/api/auth/register",
		gin.H{"username": "alice", "password": "correct-horse"}, nil))

	w := postJSON(t, r, "/api/auth/verify", gin.H{"access_token": creds.AccessToken}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = postJSON(t, r, "/api/auth/verify", gin.H{"access_token": "garbage"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	r := newAuthRouter(t)
	creds := credentialsFrom(t, postJSON(t, r, "/api/auth/register",
		gin.H{"username": "alice", "password": "correct-horse"}, nil))
	bearer := map[string]string{"Authorization": "Bearer " + creds.AccessToken}

	w := postJSON(t, r, "/api/auth/logout", gin.H{}, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The refresh secret is revoked.
	w = postJSON(t, r, "/api/auth/refresh", gin.H{
		"user_id":       creds.UserID,
		"refresh_token": creds.RefreshSecret,
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked secret: expected 401, got %d", w.Code)
	}

	// Logging out twice is rejected, but the access token itself still
	// authenticates until expiry.
	w = postJSON(t, r, "/api/auth/logout", gin.H{}, bearer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("double logout: expected 400, got %d", w.Code)
	}
}

func TestMeEndpoint(t *testing.T) {
	r := newAuthRouter(t)
	creds := credentialsFrom(t, postJSON(t, r, "/api/auth/register",
		gin.H{"username": "alice", "password": "correct-horse"}, nil))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"username":"alice"`) {
		t.Errorf("expected user payload, got %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("password material leaked in user payload")
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/me", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
}
