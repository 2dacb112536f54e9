package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/internal/middleware"
	"github.com/chatrelay/backend/internal/services"
	"github.com/chatrelay/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// refreshCookie carries the refresh secret to browser clients. It is
// scoped to the auth endpoints and never readable from script.
const refreshCookie = "chatrelay_refresh"

type AuthHandler struct {
	authService *services.AuthService
	minLatency  time.Duration
	cookieTTL   time.Duration
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		minLatency:  time.Duration(cfg.Auth.MinLoginLatencyMS) * time.Millisecond,
		cookieTTL:   time.Duration(cfg.JWT.RefreshTokenDays) * 24 * time.Hour,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	UserID       uint   `json:"user_id" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// Register handles user registration
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := services.WithClientIP(c.Request.Context(), c.ClientIP())
	creds, err := h.authService.Register(ctx, req.Username, req.Password, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyExists):
			response.Conflict(c, "username already taken")
		case errors.Is(err, services.ErrTokenIssuance):
			response.ServerError(c, "registration succeeded but login is required")
		default:
			response.ServerError(c, "registration failed")
		}
		return
	}

	h.setRefreshCookie(c, creds.RefreshSecret)
	response.Created(c, creds)
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.padLatency(start)
		response.BadRequest(c, err.Error())
		return
	}

	ctx := services.WithClientIP(c.Request.Context(), c.ClientIP())
	creds, err := h.authService.Login(ctx, req.Username, req.Password)
	h.padLatency(start)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			response.Unauthorized(c, "invalid username or password")
		case errors.Is(err, services.ErrTokenIssuance):
			response.ServerError(c, "failed to issue tokens")
		default:
			response.ServerError(c, "login failed")
		}
		return
	}

	h.setRefreshCookie(c, creds.RefreshSecret)
	response.Success(c, creds)
}

// Refresh rotates the refresh secret and issues a new access token. The
// secret comes from the request body or, for browser clients, from the
// refresh cookie.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	secret := req.RefreshToken
	if secret == "" {
		if cookie, err := c.Cookie(refreshCookie); err == nil {
			secret = cookie
		}
	}
	if secret == "" {
		response.Unauthorized(c, "refresh token required")
		return
	}

	ctx := services.WithClientIP(c.Request.Context(), c.ClientIP())
	creds, err := h.authService.Refresh(ctx, req.UserID, secret)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			response.Unauthorized(c, "refresh denied")
			return
		}
		response.ServerError(c, "refresh failed")
		return
	}

	h.setRefreshCookie(c, creds.RefreshSecret)
	response.Success(c, creds)
}

// Verify checks an access token without side effects.
// POST /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	claims, err := h.authService.Verify(req.AccessToken)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	userID, _ := claims.UserID()
	response.Success(c, gin.H{
		"user_id":    userID,
		"username":   claims.Username,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

// Logout revokes the caller's refresh record. Already-issued access
// tokens stay valid until their own expiry.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.GetUserID(c)

	ctx := services.WithClientIP(c.Request.Context(), c.ClientIP())
	if err := h.authService.Revoke(ctx, userID); err != nil {
		if errors.Is(err, services.ErrInvalidOperation) {
			response.BadRequest(c, "no active session to revoke")
			return
		}
		response.ServerError(c, "logout failed")
		return
	}

	h.clearRefreshCookie(c)
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.Success(c, user)
}

// padLatency stretches login handling to the configured floor so the
// response time does not reveal whether the username exists.
func (h *AuthHandler) padLatency(start time.Time) {
	if h.minLatency <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed < h.minLatency {
		time.Sleep(h.minLatency - elapsed)
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, secret string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, secret, int(h.cookieTTL.Seconds()), "/api/auth", "", c.Request.TLS != nil, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, "", -1, "/api/auth", "", c.Request.TLS != nil, true)
}
