package handler

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/service"
	"github.com/classpulse/classpulse-api/pkg/response"
)

// WatchHandler streams dashboard snapshots over server-sent events.
type WatchHandler struct {
	service *service.WatchService
}

// NewWatchHandler constructs a watch handler.
func NewWatchHandler(svc *service.WatchService) *WatchHandler {
	return &WatchHandler{service: svc}
}

// Stream godoc
// @Summary Live dashboard snapshot stream
// @Description Emits a full snapshot immediately and again after every data change.
// @Tags Watch
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Router /watch [get]
func (h *WatchHandler) Stream(c *gin.Context) {
	snapshots, cancel, err := h.service.Subscribe(c.Request.Context(), teacherID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return false
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return false
			}
			c.SSEvent("snapshot", string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
