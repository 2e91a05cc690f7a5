package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/repository"
	"github.com/charlesng35/feedsync/internal/state"
)

type stubSessionOps struct {
	session       *entity.Session
	user          *entity.User
	loginErr      error
	currentErr    error
	logoutErr     error
	authenticated bool

	loginCalls  int
	logoutCalls int
	lastLogin   [2]string
}

func (s *stubSessionOps) Login(ctx context.Context, username, password string) (*entity.Session, error) {
	s.loginCalls++
	s.lastLogin = [2]string{username, password}
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	s.authenticated = true
	return s.session, nil
}

func (s *stubSessionOps) CurrentUser(ctx context.Context) (*entity.User, error) {
	if s.currentErr != nil {
		return nil, s.currentErr
	}
	return s.user, nil
}

func (s *stubSessionOps) RefreshProfile(ctx context.Context) (*entity.User, error) {
	return s.CurrentUser(ctx)
}

func (s *stubSessionOps) Logout(ctx context.Context) error {
	s.logoutCalls++
	if s.logoutErr != nil {
		return s.logoutErr
	}
	s.authenticated = false
	return nil
}

func (s *stubSessionOps) IsAuthenticated(ctx context.Context) bool {
	return s.authenticated
}

type stubFeedOps struct {
	page      repository.FeedPage
	pageErr   error
	searched  []entity.Post
	searchErr error
	created   *entity.Post
	createErr error
	deleteErr error

	lastTerm   string
	lastDraft  gateway.PostDraft
	lastDelete int64
}

func (s *stubFeedOps) LoadFirstPage(ctx context.Context) (repository.FeedPage, error) {
	if s.pageErr != nil {
		return repository.FeedPage{}, s.pageErr
	}
	return s.page, nil
}

func (s *stubFeedOps) Refresh(ctx context.Context) (repository.FeedPage, error) {
	return s.LoadFirstPage(ctx)
}

func (s *stubFeedOps) LoadMore(ctx context.Context) (repository.FeedPage, error) {
	return s.LoadFirstPage(ctx)
}

func (s *stubFeedOps) Search(ctx context.Context, term string) ([]entity.Post, error) {
	s.lastTerm = term
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searched, nil
}

func (s *stubFeedOps) CreatePost(ctx context.Context, draft gateway.PostDraft) (*entity.Post, error) {
	s.lastDraft = draft
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *stubFeedOps) DeletePost(ctx context.Context, id int64) error {
	s.lastDelete = id
	return s.deleteErr
}

func (s *stubFeedOps) Snapshot() repository.FeedPage {
	return s.page
}

func newTestContainer(t *testing.T, sessions state.SessionOps, feed state.FeedOps) *state.Container {
	t.Helper()

	container, err := state.NewContainer(sessions, feed)
	require.NoError(t, err)

	go container.Run()
	t.Cleanup(container.Stop)
	return container
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		NextOffset int  `json:"nextOffset"`
		HasMore    bool `json:"hasMore"`
		Count      int  `json:"count"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()

	var envelope apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func unmarshalData(envelope apiEnvelope, dest any) error {
	return json.Unmarshal(envelope.Data, dest)
}

func newJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
