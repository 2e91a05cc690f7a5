package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/feedsync/internal/app/syncer"
	"github.com/charlesng35/feedsync/internal/connectivity"
)

func TestStatusHandlerReportsState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	container := newTestContainer(t, &stubSessionOps{}, &stubFeedOps{})
	checker := connectivity.Func(func(context.Context) bool { return true })
	handler := NewStatusHandler(checker, container, nil)

	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/status", nil)

	handler.Status(ctx)

	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Online  bool `json:"online"`
		Session struct {
			Phase string `json:"phase"`
		} `json:"session"`
		Feed struct {
			Phase string `json:"phase"`
			Items int    `json:"items"`
		} `json:"feed"`
		Uptime string          `json:"uptime"`
		Sync   json.RawMessage `json:"sync"`
	}
	require.NoError(t, unmarshalData(decodeEnvelope(t, rec), &data))
	require.True(t, data.Online)
	require.Equal(t, "initial", data.Session.Phase)
	require.Equal(t, "initial", data.Feed.Phase)
	require.NotEmpty(t, data.Uptime)
	require.Nil(t, data.Sync)
}

func TestStatusHandlerSyncRunsImmediately(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := &stubSessionOps{}
	container := newTestContainer(t, sessions, &stubFeedOps{})

	// Offline checker: the triggered run is skipped rather than failed.
	checker := connectivity.Func(func(context.Context) bool { return false })
	sync, err := syncer.New(container, sessions, checker)
	require.NoError(t, err)

	handler := NewStatusHandler(checker, container, sync)

	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/sync", nil)

	handler.Sync(ctx)

	require.Equal(t, http.StatusOK, rec.Code)

	var status syncer.Status
	require.NoError(t, unmarshalData(decodeEnvelope(t, rec), &status))
	require.Equal(t, syncer.ResultSkipped, status.LastResult)
	require.EqualValues(t, 1, status.TotalRuns)
}
