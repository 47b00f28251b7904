package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const realtimeHeartbeatInterval = 25 * time.Second

type realtimeEventPayload struct {
	EventType    string   `json:"event_type"`
	ResourceKind string   `json:"resource_kind"`
	ResourceIDs  []string `json:"resource_ids"`
	UserID       string   `json:"user_id"`
	TimestampMs  int64    `json:"timestamp_ms"`
}

// handleEvents streams resource-change notifications over server-sent
// events. Admins receive every event; everyone else only their own.
func (h *httpHandler) handleEvents(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}

	subscriptionKey := identity.UserID
	if identity.IsAdmin() {
		subscriptionKey = realtimeAllKey
	}

	stream, cancel := h.realtime.Subscribe(c.Request.Context(), subscriptionKey)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				EventType:    message.EventType,
				ResourceKind: message.ResourceKind,
				ResourceIDs:  message.ResourceIDs,
				UserID:       message.UserID,
				TimestampMs:  message.Timestamp.UnixMilli(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp_ms": time.Now().UnixMilli()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
