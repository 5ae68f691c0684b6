package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"robot-market/internal/middleware"
	"robot-market/internal/observability"
	"robot-market/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// pathID reads the :id route parameter. Identifiers are UUIDs, so anything
// else cannot name a row and answers 404 with notFound.
func pathID(c *gin.Context, notFound string) (string, bool) {
	id, ok := canonicalID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return "", false
	}
	return id, true
}

func canonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, resource, id string) {
	emitter.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
		Action:   action,
		Resource: resource,
		ID:       id,
	})
}
