package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charlesng35/feedsync/internal/entity"
)

// FeedGateway wraps the remote post endpoints. One instance serves exactly
// one entity type; it performs one network round trip per operation.
type FeedGateway struct {
	client *Client
}

// NewFeedGateway constructs a FeedGateway over client.
func NewFeedGateway(client *Client) (*FeedGateway, error) {
	if client == nil {
		return nil, errors.New("gateway: feed gateway requires a client")
	}
	return &FeedGateway{client: client}, nil
}

type pagePayload struct {
	Posts []entity.Post `json:"posts"`
	Total int           `json:"total"`
	Skip  int           `json:"skip"`
	Limit int           `json:"limit"`
}

// ListPage fetches one page window of the feed.
func (g *FeedGateway) ListPage(ctx context.Context, limit, offset int) ([]entity.Post, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("gateway: list page: limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("gateway: list page: offset must not be negative, got %d", offset)
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(offset))

	var payload pagePayload
	if err := g.client.do(ctx, "list posts", http.MethodGet, "/posts", query, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Posts, nil
}

// Search returns posts matching query, unpaginated.
func (g *FeedGateway) Search(ctx context.Context, term string) ([]entity.Post, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("gateway: search: query is required")
	}

	query := url.Values{}
	query.Set("q", term)

	var payload pagePayload
	if err := g.client.do(ctx, "search posts", http.MethodGet, "/posts/search", query, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Posts, nil
}

// PostDraft is the caller-supplied content for a new post.
type PostDraft struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	UserID int64    `json:"userId"`
	Tags   []string `json:"tags,omitempty"`
}

// Create submits a new post and returns the stored entity.
func (g *FeedGateway) Create(ctx context.Context, draft PostDraft) (*entity.Post, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return nil, errors.New("gateway: create post: title is required")
	}

	var post entity.Post
	if err := g.client.do(ctx, "create post", http.MethodPost, "/posts/add", nil, draft, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Delete removes a post by ID.
func (g *FeedGateway) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("gateway: delete post: invalid id %d", id)
	}
	return g.client.do(ctx, "delete post", http.MethodDelete, "/posts/"+strconv.FormatInt(id, 10), nil, nil, nil)
}
