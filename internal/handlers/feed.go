package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/state"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/response"
)

// FeedHandler exposes the paginated post feed.
type FeedHandler struct {
	state *state.Container
}

func NewFeedHandler(container *state.Container) *FeedHandler {
	return &FeedHandler{state: container}
}

// GET /api/feed
//
// Returns the loaded feed, fetching the first page only when nothing has
// been loaded yet.
func (h *FeedHandler) Feed(c *gin.Context) {
	feed, err := h.state.LoadFeed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeFeedPage(c, feed)
}

// POST /api/feed/refresh
func (h *FeedHandler) Refresh(c *gin.Context) {
	feed, err := h.state.RefreshFeed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeFeedPage(c, feed)
}

// POST /api/feed/more
func (h *FeedHandler) More(c *gin.Context) {
	feed, err := h.state.LoadMoreFeed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeFeedPage(c, feed)
}

// GET /api/feed/search
func (h *FeedHandler) Search(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))

	posts, err := h.state.SearchFeed(requestContext(c), term)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, posts)
}

type createPostRequest struct {
	Title  string   `json:"title" validate:"required"`
	Body   string   `json:"body"`
	UserID int64    `json:"userId"`
	Tags   []string `json:"tags"`
}

// POST /api/posts
func (h *FeedHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bindAndValidate(c, &req) {
		return
	}

	// Attribute the post to the logged-in profile when the caller omits it.
	if req.UserID == 0 {
		if session := h.state.SessionSnapshot(); session.User != nil {
			req.UserID = session.User.ID
		}
	}

	post, err := h.state.CreatePost(requestContext(c), gateway.PostDraft{
		Title:  req.Title,
		Body:   req.Body,
		UserID: req.UserID,
		Tags:   req.Tags,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, post)
}

// DELETE /api/posts/:id
func (h *FeedHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperrors.NewValidation("post id must be a positive integer"))
		return
	}

	if err := h.state.DeletePost(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func writeFeedPage(c *gin.Context, feed state.FeedState) {
	response.SuccessWithMeta(c, http.StatusOK, feed.Items, &response.Meta{
		NextOffset: feed.NextOffset,
		HasMore:    feed.HasMore,
		Count:      len(feed.Items),
	})
}
