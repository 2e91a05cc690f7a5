package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/feedsync/internal/realtime"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into WebSocket state streams.
type RealtimeHandler struct {
	hub   *realtime.Hub
	known map[string]struct{}
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	known := make(map[string]struct{})
	if hub != nil {
		for _, stream := range hub.Streams() {
			known[stream] = struct{}{}
		}
	}

	return &RealtimeHandler{hub: hub, known: known}
}

// GET /api/events
//
// Subscribes the caller to the requested streams; with no streams named the
// connection follows everything the hub publishes.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, apperrors.New(apperrors.KindServer, "realtime hub unavailable", http.StatusServiceUnavailable))
		return
	}

	streams := gatherStreams(c)
	for _, stream := range streams {
		if _, ok := h.known[stream]; !ok {
			response.Error(c, apperrors.New(apperrors.KindValidation, fmt.Sprintf("unknown stream %q", stream), http.StatusNotFound))
			return
		}
	}

	h.hub.Serve(streams, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}

	raw := c.Query("streams")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
