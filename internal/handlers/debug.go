package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"robot-market/internal/telemetry"
)

// RealtimeStats reports live subscribers per topic.
type RealtimeStats interface {
	Stats() map[string][2]int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, realtime RealtimeStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
			Action: "test", Resource: "debug", Text: "audit test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/realtime", func(c *gin.Context) {
		type topicStats struct {
			Sockets     int `json:"sockets"`
			Subscribers int `json:"subscribers"`
		}
		out := map[string]topicStats{}
		for topic, s := range realtime.Stats() {
			out[topic] = topicStats{Sockets: s[0], Subscribers: s[1]}
		}
		c.JSON(http.StatusOK, gin.H{"topics": out})
	})
}
