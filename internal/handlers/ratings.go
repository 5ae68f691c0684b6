package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"robot-market/internal/repositories"
	"robot-market/internal/telemetry"
)

// RatingHandler wraps the rating procedures.
type RatingHandler struct {
	ratings repositories.RatingRepository
	robots  repositories.RobotRepository
	audit   *telemetry.AuditEmitter
}

// NewRatingHandler builds a RatingHandler.
func NewRatingHandler(ratings repositories.RatingRepository, robots repositories.RobotRepository, emitter *telemetry.AuditEmitter) *RatingHandler {
	return &RatingHandler{ratings: ratings, robots: robots, audit: emitter}
}

// GetRating returns the average rating of a robot, 0 when unrated.
func (h *RatingHandler) GetRating(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	avg, err := h.ratings.AverageRating(c.Request.Context(), robotID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rating"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"robot_id": robotID, "average": avg})
}

// GetMyRating returns the caller's rating of a robot, or null.
func (h *RatingHandler) GetMyRating(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	rating, err := h.ratings.UserRating(c.Request.Context(), robotID, userIDFromContext(c))
	if err != nil {
		if errors.Is(err, repositories.ErrRatingNotFound) {
			c.JSON(http.StatusOK, gin.H{"rating": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rating"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": rating})
}

// PutRating creates or replaces the caller's rating and returns the new average.
func (h *RatingHandler) PutRating(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	var req struct {
		Rating  int    `json:"rating" binding:"required,min=1,max=5"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	if _, err := h.robots.GetRobot(c.Request.Context(), robotID); err != nil {
		if errors.Is(err, repositories.ErrRobotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load robot"})
		return
	}

	if err := h.ratings.UpsertRating(c.Request.Context(), robotID, userIDFromContext(c), req.Rating, strings.TrimSpace(req.Comment)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save rating"})
		return
	}
	audit(c, h.audit, "upsert", "rating", robotID)

	avg, err := h.ratings.AverageRating(c.Request.Context(), robotID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"robot_id": robotID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"robot_id": robotID, "average": avg})
}
