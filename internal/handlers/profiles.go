package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"robot-market/internal/repositories"
)

// ProfileHandler serves public profiles.
type ProfileHandler struct {
	users repositories.UserRepository
}

// NewProfileHandler builds a ProfileHandler.
func NewProfileHandler(users repositories.UserRepository) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// GetProfile returns the public profile of a user.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := pathID(c, "profile not found")
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
