package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"robot-market/internal/auth"
	"robot-market/internal/middleware"
	"robot-market/internal/repositories"
)

// AuthService is the subset of auth.Service used over HTTP.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.Result, error)
	Login(ctx context.Context, email, password string) (auth.Result, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler serves sign-up, sign-in and session endpoints.
type AuthHandler struct {
	svc AuthService
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register creates an account and returns its first session.
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Register(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, auth.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
	}
}

// Login exchanges credentials for a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign in"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), c.GetString(middleware.TokenKey)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign out"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Session returns the identity behind the caller's token.
func (h *AuthHandler) Session(c *gin.Context) {
	principal, ok := c.Get(middleware.PrincipalKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, principal)
}
