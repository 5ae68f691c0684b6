package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"robot-market/internal/marketplace"
	"robot-market/internal/models"
	"robot-market/internal/repositories"
	"robot-market/internal/storage"
	"robot-market/internal/telemetry"
)

// RobotHandler serves the catalog and the seller listing endpoints.
type RobotHandler struct {
	robots        repositories.RobotRepository
	users         repositories.UserRepository
	uploader      storage.Uploader
	audit         *telemetry.AuditEmitter
	maxImageBytes int64
}

// NewRobotHandler builds a RobotHandler.
func NewRobotHandler(robots repositories.RobotRepository, users repositories.UserRepository, uploader storage.Uploader, emitter *telemetry.AuditEmitter, maxImageBytes int64) *RobotHandler {
	if uploader == nil {
		uploader = storage.NoopUploader{}
	}
	return &RobotHandler{
		robots:        robots,
		users:         users,
		uploader:      uploader,
		audit:         emitter,
		maxImageBytes: maxImageBytes,
	}
}

// ListRobots returns active listings as catalog cards, filtered and sorted by
// the query parameters q, min_price, max_price, tags, min_rating and sort.
func (h *RobotHandler) ListRobots(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	robots, err := h.robots.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load robots"})
		return
	}

	cards := make([]models.RobotCard, 0, len(robots))
	for _, robot := range robots {
		cards = append(cards, robot.Card())
	}
	c.JSON(http.StatusOK, gin.H{
		"robots":   marketplace.Apply(cards, filter),
		"all_tags": marketplace.AllTags(cards),
	})
}

// GetRobot returns a listing with its seller's public profile.
func (h *RobotHandler) GetRobot(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	robot, err := h.robots.GetRobot(c.Request.Context(), robotID)
	if err != nil {
		if errors.Is(err, repositories.ErrRobotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load robot"})
		return
	}

	var seller *models.Profile
	if profile, err := h.users.GetProfile(c.Request.Context(), robot.SellerID); err == nil {
		seller = &profile
	}
	c.JSON(http.StatusOK, gin.H{"robot": robot, "seller": seller})
}

// MyRobots lists every listing of the calling seller, newest first.
func (h *RobotHandler) MyRobots(c *gin.Context) {
	robots, err := h.robots.ListBySeller(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load robots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"robots": robots})
}

// CreateRobot publishes a new listing for the calling seller.
func (h *RobotHandler) CreateRobot(c *gin.Context) {
	in, ok := bindRobotInput(c)
	if !ok {
		return
	}

	robot, err := h.robots.CreateRobot(c.Request.Context(), userIDFromContext(c), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create robot"})
		return
	}
	audit(c, h.audit, "create", "robot", robot.ID)
	c.JSON(http.StatusCreated, robot)
}

// UpdateRobot replaces the editable fields of one of the caller's listings.
func (h *RobotHandler) UpdateRobot(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	in, ok := bindRobotInput(c)
	if !ok {
		return
	}

	robot, err := h.robots.UpdateRobot(c.Request.Context(), robotID, userIDFromContext(c), in)
	if err != nil {
		respondRobotWriteError(c, err)
		return
	}
	audit(c, h.audit, "update", "robot", robot.ID)
	c.JSON(http.StatusOK, robot)
}

// SetActive shows or hides a listing. Without a body the flag is toggled.
func (h *RobotHandler) SetActive(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	sellerID := userIDFromContext(c)

	var req struct {
		Active *bool `json:"active"`
	}
	// Chunked bodies report no length, so decode whatever is there and treat an empty stream as a toggle.
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.Active == nil {
		current, err := h.robots.GetRobot(c.Request.Context(), robotID)
		if err != nil || current.SellerID != sellerID {
			respondRobotWriteError(c, repositories.ErrRobotNotFound)
			return
		}
		flipped := !current.Active
		req.Active = &flipped
	}

	robot, err := h.robots.SetActive(c.Request.Context(), robotID, sellerID, *req.Active)
	if err != nil {
		respondRobotWriteError(c, err)
		return
	}
	audit(c, h.audit, "set_active", "robot", robot.ID)
	c.JSON(http.StatusOK, robot)
}

// DeleteRobot removes one of the caller's listings.
func (h *RobotHandler) DeleteRobot(c *gin.Context) {
	robotID, ok := pathID(c, "robot not found")
	if !ok {
		return
	}
	if err := h.robots.DeleteRobot(c.Request.Context(), robotID, userIDFromContext(c)); err != nil {
		respondRobotWriteError(c, err)
		return
	}
	audit(c, h.audit, "delete", "robot", robotID)
	c.Status(http.StatusNoContent)
}

// UploadImage stores a listing image and returns its public URL.
func (h *RobotHandler) UploadImage(c *gin.Context) {
	if h.maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+1<<10)
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if h.maxImageBytes > 0 && file.Size > h.maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	key, err := storage.ImageKey(userIDFromContext(c), contentType)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	}

	body, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	defer body.Close()

	url, err := h.uploader.Upload(c.Request.Context(), key, body, file.Size, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage unavailable"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not store image"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func bindRobotInput(c *gin.Context) (models.RobotInput, bool) {
	var in models.RobotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.RobotInput{}, false
	}
	in, err := in.Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.RobotInput{}, false
	}
	return in, true
}

func respondRobotWriteError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrRobotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update robot"})
}

func parseFilter(c *gin.Context) (marketplace.Filter, error) {
	f := marketplace.DefaultFilter()
	f.Query = c.Query("q")
	f.Sort = marketplace.ParseSort(c.Query("sort"))

	var err error
	if f.MinPrice, err = floatQuery(c, "min_price", f.MinPrice); err != nil {
		return f, err
	}
	if f.MaxPrice, err = floatQuery(c, "max_price", f.MaxPrice); err != nil {
		return f, err
	}
	if f.MinRating, err = floatQuery(c, "min_rating", 0); err != nil {
		return f, err
	}
	for _, raw := range c.QueryArray("tags") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	return f, nil
}

func floatQuery(c *gin.Context, key string, fallback float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
