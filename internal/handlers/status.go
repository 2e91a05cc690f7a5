package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/feedsync/internal/app/syncer"
	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/state"
	"github.com/charlesng35/feedsync/pkg/response"
)

// StatusHandler reports the agent's connectivity, session, and sync state.
type StatusHandler struct {
	checker   connectivity.Checker
	state     *state.Container
	sync      *syncer.Syncer
	startedAt time.Time
}

func NewStatusHandler(checker connectivity.Checker, container *state.Container, sync *syncer.Syncer) *StatusHandler {
	return &StatusHandler{
		checker:   checker,
		state:     container,
		sync:      sync,
		startedAt: time.Now(),
	}
}

type feedSummary struct {
	Phase      string `json:"phase"`
	Items      int    `json:"items"`
	HasMore    bool   `json:"hasMore"`
	NextOffset int    `json:"nextOffset"`
}

// GET /api/status
func (h *StatusHandler) Status(c *gin.Context) {
	online := false
	if h.checker != nil {
		online = h.checker.IsConnected(requestContext(c))
	}

	feed := h.state.FeedSnapshot()
	payload := gin.H{
		"online":  online,
		"session": h.state.SessionSnapshot(),
		"feed": feedSummary{
			Phase:      string(feed.Phase),
			Items:      len(feed.Items),
			HasMore:    feed.HasMore,
			NextOffset: feed.NextOffset,
		},
		"startedAt": h.startedAt,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.sync != nil {
		payload["sync"] = h.sync.Status()
	}

	response.Success(c, http.StatusOK, payload)
}

// POST /api/sync
//
// Triggers a sync pass immediately. The run outcome lands in the returned
// status; skipped and failed runs still answer 200 so callers can inspect it.
func (h *StatusHandler) Sync(c *gin.Context) {
	if h.sync == nil {
		response.Success(c, http.StatusOK, gin.H{"enabled": false})
		return
	}

	_ = h.sync.RunOnce(requestContext(c))
	response.Success(c, http.StatusOK, h.sync.Status())
}
