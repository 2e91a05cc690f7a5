package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/store"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/logger"
	"github.com/charlesng35/feedsync/pkg/metrics"
)

// DefaultPageSize is the feed window requested from the remote API.
const DefaultPageSize = 30

// FeedPage is one observable snapshot of the loaded feed.
type FeedPage struct {
	Items      []entity.Post `json:"items"`
	HasMore    bool          `json:"hasMore"`
	NextOffset int           `json:"nextOffset"`
}

// FeedRepository pages the remote feed and mirrors the first page into the
// local cache so reads survive going offline. Pages beyond the first live
// only in memory: the mirror is "last known first page", not a full log.
//
// The pagination cursor is repository-private. nextOffset only advances by a
// full window on success, so a failed LoadMore retries the same window.
type FeedRepository struct {
	checker  connectivity.Checker
	posts    *store.Typed[entity.Post]
	remote   PostGateway
	pageSize int

	mu          sync.Mutex
	loaded      []entity.Post
	nextOffset  int
	hasMore     bool
	loadingMore bool
}

// NewFeedRepository constructs a FeedRepository. A pageSize of zero or less
// selects DefaultPageSize.
func NewFeedRepository(checker connectivity.Checker, posts *store.Typed[entity.Post], remote PostGateway, pageSize int) (*FeedRepository, error) {
	if checker == nil {
		return nil, errors.New("feed repository: connectivity checker is required")
	}
	if posts == nil {
		return nil, errors.New("feed repository: post cache is required")
	}
	if remote == nil {
		return nil, errors.New("feed repository: feed gateway is required")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &FeedRepository{
		checker:  checker,
		posts:    posts,
		remote:   remote,
		pageSize: pageSize,
	}, nil
}

func postKey(post entity.Post) string {
	return strconv.FormatInt(post.ID, 10)
}

// LoadFirstPage fetches the first feed window, falling back to the cached
// mirror when offline or when the remote call fails.
func (r *FeedRepository) LoadFirstPage(ctx context.Context) (FeedPage, error) {
	return r.loadWindowZero(ctx, "first")
}

// Refresh re-fetches the first window and replaces the cached mirror, same
// fallback rules as LoadFirstPage.
func (r *FeedRepository) Refresh(ctx context.Context) (FeedPage, error) {
	return r.loadWindowZero(ctx, "refresh")
}

func (r *FeedRepository) loadWindowZero(ctx context.Context, trigger string) (FeedPage, error) {
	ctx = ensureContext(ctx)

	if !r.checker.IsConnected(ctx) {
		return r.serveCached(ctx, apperrors.ErrOffline)
	}

	items, err := r.remote.ListPage(ctx, r.pageSize, 0)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("list_posts", "failure").Inc()
		// A readable mirror supersedes the remote failure.
		return r.serveCached(ctx, translate(err))
	}
	metrics.GatewayRequests.WithLabelValues("list_posts", "success").Inc()
	metrics.FeedPagesLoaded.WithLabelValues(trigger).Inc()

	if err := r.posts.ReplaceAll(ctx, items, postKey); err != nil {
		// The fetched page is authoritative; a stale mirror only affects the
		// next offline fallback.
		logger.ErrorWithStack("feed cache replace failed", err,
			zap.String("collection", r.posts.Collection()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append([]entity.Post(nil), items...)
	r.nextOffset = r.pageSize
	r.hasMore = len(items) >= r.pageSize
	r.loadingMore = false
	return r.snapshotLocked(), nil
}

// serveCached answers a first-page read from the local mirror. cause is
// surfaced only when the mirror is empty or unreadable. Served cache reports
// no further pages until a remote fetch succeeds again.
func (r *FeedRepository) serveCached(ctx context.Context, cause *apperrors.Failure) (FeedPage, error) {
	collection := r.posts.Collection()

	cached, err := r.posts.List(ctx)
	if err != nil {
		metrics.CacheReads.WithLabelValues(collection, "error").Inc()
		logger.ErrorWithStack("feed cache read failed", err, zap.String("collection", collection))
		return FeedPage{}, cause
	}
	if len(cached) == 0 {
		metrics.CacheReads.WithLabelValues(collection, "miss").Inc()
		return FeedPage{}, cause
	}
	metrics.CacheReads.WithLabelValues(collection, "hit").Inc()
	metrics.OfflineFallbacks.WithLabelValues(collection).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = cached
	r.nextOffset = 0
	r.hasMore = false
	r.loadingMore = false
	return r.snapshotLocked(), nil
}

// LoadMore fetches the next window and appends it in fetch order. It is a
// no-op returning the current snapshot when no more pages are known or when
// another LoadMore is already in flight. The cache is not touched: only the
// first page is mirrored.
func (r *FeedRepository) LoadMore(ctx context.Context) (FeedPage, error) {
	ctx = ensureContext(ctx)

	r.mu.Lock()
	if r.loadingMore || !r.hasMore {
		page := r.snapshotLocked()
		r.mu.Unlock()
		return page, nil
	}
	r.loadingMore = true
	offset := r.nextOffset
	r.mu.Unlock()

	if !r.checker.IsConnected(ctx) {
		r.clearLoadingFlag()
		return FeedPage{}, apperrors.ErrOffline
	}

	items, err := r.remote.ListPage(ctx, r.pageSize, offset)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("list_posts", "failure").Inc()
		r.clearLoadingFlag()
		return FeedPage{}, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("list_posts", "success").Inc()
	metrics.FeedPagesLoaded.WithLabelValues("more").Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, items...)
	r.nextOffset += r.pageSize
	r.hasMore = len(items) >= r.pageSize
	r.loadingMore = false
	return r.snapshotLocked(), nil
}

// Search queries the remote feed without touching the loaded list or cache.
func (r *FeedRepository) Search(ctx context.Context, term string) ([]entity.Post, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(term) == "" {
		return nil, apperrors.NewValidation("search query is required")
	}
	if !r.checker.IsConnected(ctx) {
		return nil, apperrors.ErrOffline
	}

	items, err := r.remote.Search(ctx, term)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("search_posts", "failure").Inc()
		return nil, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("search_posts", "success").Inc()
	return items, nil
}

// CreatePost submits a new post and prepends it to the loaded list. The
// cursor and the cached mirror are left untouched.
func (r *FeedRepository) CreatePost(ctx context.Context, draft gateway.PostDraft) (*entity.Post, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(draft.Title) == "" {
		return nil, apperrors.NewValidation("post title is required")
	}
	if !r.checker.IsConnected(ctx) {
		return nil, apperrors.ErrOffline
	}

	post, err := r.remote.Create(ctx, draft)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("create_post", "failure").Inc()
		return nil, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("create_post", "success").Inc()

	r.mu.Lock()
	r.loaded = append([]entity.Post{*post}, r.loaded...)
	r.mu.Unlock()
	return post, nil
}

// DeletePost removes a post remotely and drops it from the loaded list. The
// cursor is left untouched.
func (r *FeedRepository) DeletePost(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)

	if id <= 0 {
		return apperrors.NewValidation("post id must be positive")
	}
	if !r.checker.IsConnected(ctx) {
		return apperrors.ErrOffline
	}

	if err := r.remote.Delete(ctx, id); err != nil {
		metrics.GatewayRequests.WithLabelValues("delete_post", "failure").Inc()
		return translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("delete_post", "success").Inc()

	r.mu.Lock()
	for i := range r.loaded {
		if r.loaded[i].ID == id {
			r.loaded = append(r.loaded[:i], r.loaded[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

// Snapshot returns the currently loaded feed without network or cache I/O.
func (r *FeedRepository) Snapshot() FeedPage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *FeedRepository) snapshotLocked() FeedPage {
	return FeedPage{
		Items:      append([]entity.Post(nil), r.loaded...),
		HasMore:    r.hasMore,
		NextOffset: r.nextOffset,
	}
}

func (r *FeedRepository) clearLoadingFlag() {
	r.mu.Lock()
	r.loadingMore = false
	r.mu.Unlock()
}
