package state

import (
	"context"
	"errors"
	"sync"

	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/repository"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
)

const (
	commandBuffer    = 16
	subscriberBuffer = 16
)

// ErrStopped reports an operation dispatched after the container shut down.
var ErrStopped = errors.New("state: container stopped")

// SessionOps is the session surface the container drives.
type SessionOps interface {
	Login(ctx context.Context, username, password string) (*entity.Session, error)
	CurrentUser(ctx context.Context) (*entity.User, error)
	RefreshProfile(ctx context.Context) (*entity.User, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
}

// FeedOps is the feed surface the container drives.
type FeedOps interface {
	LoadFirstPage(ctx context.Context) (repository.FeedPage, error)
	Refresh(ctx context.Context) (repository.FeedPage, error)
	LoadMore(ctx context.Context) (repository.FeedPage, error)
	Search(ctx context.Context, term string) ([]entity.Post, error)
	CreatePost(ctx context.Context, draft gateway.PostDraft) (*entity.Post, error)
	DeletePost(ctx context.Context, id int64) error
	Snapshot() repository.FeedPage
}

// Container serializes every repository operation through one worker
// goroutine and publishes a snapshot after each transition. Callers block
// until their command ran; if their context expires while waiting the
// command still runs and its result is simply not observed. A context that
// is already done never dispatches.
type Container struct {
	sessions SessionOps
	feed     FeedOps

	commands chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.RWMutex
	session     SessionState
	feedState   FeedState
	subscribers map[int64]chan Event
	nextSubID   int64
}

// NewContainer constructs a Container over the two repositories. Run must be
// started on its own goroutine before dispatching operations.
func NewContainer(sessions SessionOps, feed FeedOps) (*Container, error) {
	if sessions == nil {
		return nil, errors.New("state: session repository is required")
	}
	if feed == nil {
		return nil, errors.New("state: feed repository is required")
	}

	return &Container{
		sessions:    sessions,
		feed:        feed,
		commands:    make(chan func(), commandBuffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		session:     SessionState{Phase: PhaseInitial},
		feedState:   FeedState{Phase: PhaseInitial},
		subscribers: make(map[int64]chan Event),
	}, nil
}

// Run consumes commands until Stop is called.
func (c *Container) Run() {
	defer close(c.done)
	for {
		select {
		case cmd := <-c.commands:
			cmd()
		case <-c.quit:
			return
		}
	}
}

// Stop terminates the worker and waits for it to exit. Operations dispatched
// afterwards fail with ErrStopped.
func (c *Container) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Container) dispatch(ctx context.Context, apply func()) error {
	// A caller that already gave up never enqueues work.
	if err := ctx.Err(); err != nil {
		return err
	}

	executed := make(chan struct{})
	wrapped := func() {
		defer close(executed)
		apply()
	}

	select {
	case c.commands <- wrapped:
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-executed:
		return nil
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a listener and immediately replays the current session
// and feed snapshots. The returned cancel func is idempotent.
func (c *Container) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	c.subscribers[id] = ch

	session := c.session
	feed := c.feedState
	ch <- Event{Stream: StreamSession, Session: &session}
	ch <- Event{Stream: StreamFeed, Feed: &feed}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// SessionSnapshot returns the current session state.
func (c *Container) SessionSnapshot() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// FeedSnapshot returns the current feed state.
func (c *Container) FeedSnapshot() FeedState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedState
}

// Login runs the login flow and publishes the resulting session state.
func (c *Container) Login(ctx context.Context, username, password string) (SessionState, error) {
	ctx = ensureContext(ctx)

	var (
		out   SessionState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		c.setSession(SessionState{Phase: PhaseLoading})

		session, err := c.sessions.Login(ctx, username, password)
		if err != nil {
			failure := apperrors.FromError(err)
			out = SessionState{Phase: PhaseError, Message: failure.Message}
			opErr = failure
		} else {
			user := session.User
			out = SessionState{Phase: PhaseLoaded, User: &user, Authenticated: true}
		}
		c.setSession(out)
	})
	if err != nil {
		return SessionState{}, err
	}
	return out, opErr
}

// Logout clears the session and publishes the initial state.
func (c *Container) Logout(ctx context.Context) (SessionState, error) {
	ctx = ensureContext(ctx)

	var (
		out   SessionState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		if err := c.sessions.Logout(ctx); err != nil {
			failure := apperrors.FromError(err)
			out = SessionState{Phase: PhaseError, Message: failure.Message}
			opErr = failure
		} else {
			out = SessionState{Phase: PhaseInitial}
		}
		c.setSession(out)
	})
	if err != nil {
		return SessionState{}, err
	}
	return out, opErr
}

// Session resolves the current profile (cache first) and publishes it.
func (c *Container) Session(ctx context.Context) (SessionState, error) {
	ctx = ensureContext(ctx)

	var (
		out   SessionState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		authenticated := c.sessions.IsAuthenticated(ctx)

		user, err := c.sessions.CurrentUser(ctx)
		if err != nil {
			failure := apperrors.FromError(err)
			out = SessionState{Phase: PhaseError, Authenticated: authenticated, Message: failure.Message}
			opErr = failure
		} else {
			out = SessionState{Phase: PhaseLoaded, User: user, Authenticated: authenticated}
		}
		c.setSession(out)
	})
	if err != nil {
		return SessionState{}, err
	}
	return out, opErr
}

// RefreshProfile re-fetches the profile for the background sync loop. A
// failure is returned but not published: background noise must not flip the
// presentation into an error phase.
func (c *Container) RefreshProfile(ctx context.Context) (SessionState, error) {
	ctx = ensureContext(ctx)

	var (
		out   SessionState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		user, err := c.sessions.RefreshProfile(ctx)
		if err != nil {
			out = c.SessionSnapshot()
			opErr = apperrors.FromError(err)
			return
		}
		out = SessionState{Phase: PhaseLoaded, User: user, Authenticated: c.sessions.IsAuthenticated(ctx)}
		c.setSession(out)
	})
	if err != nil {
		return SessionState{}, err
	}
	return out, opErr
}

// LoadFeed returns the loaded feed, fetching the first page only when no
// load happened yet.
func (c *Container) LoadFeed(ctx context.Context) (FeedState, error) {
	ctx = ensureContext(ctx)

	var (
		out   FeedState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		current := c.FeedSnapshot()
		if current.Phase == PhaseLoaded {
			out = current
			return
		}

		c.setFeed(FeedState{Phase: PhaseLoading})
		out, opErr = c.applyFeedResult(c.feed.LoadFirstPage(ctx))
	})
	if err != nil {
		return FeedState{}, err
	}
	return out, opErr
}

// RefreshFeed re-fetches the first page. Loaded items survive a failure; the
// state then carries the failure message.
func (c *Container) RefreshFeed(ctx context.Context) (FeedState, error) {
	ctx = ensureContext(ctx)

	var (
		out   FeedState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		loading := c.FeedSnapshot()
		loading.Phase = PhaseLoading
		loading.Message = ""
		c.setFeed(loading)

		out, opErr = c.applyFeedResult(c.feed.Refresh(ctx))
	})
	if err != nil {
		return FeedState{}, err
	}
	return out, opErr
}

// LoadMoreFeed appends the next page to the loaded feed.
func (c *Container) LoadMoreFeed(ctx context.Context) (FeedState, error) {
	ctx = ensureContext(ctx)

	var (
		out   FeedState
		opErr error
	)
	err := c.dispatch(ctx, func() {
		loading := c.FeedSnapshot()
		loading.IsLoadingMore = true
		loading.Message = ""
		c.setFeed(loading)

		out, opErr = c.applyFeedResult(c.feed.LoadMore(ctx))
	})
	if err != nil {
		return FeedState{}, err
	}
	return out, opErr
}

// SearchFeed queries the remote feed. Search results are returned to the
// caller only; the published feed state is untouched.
func (c *Container) SearchFeed(ctx context.Context, term string) ([]entity.Post, error) {
	ctx = ensureContext(ctx)

	var (
		posts []entity.Post
		opErr error
	)
	err := c.dispatch(ctx, func() {
		found, err := c.feed.Search(ctx, term)
		if err != nil {
			opErr = apperrors.FromError(err)
			return
		}
		posts = found
	})
	if err != nil {
		return nil, err
	}
	return posts, opErr
}

// CreatePost submits a post and publishes the feed with it prepended.
func (c *Container) CreatePost(ctx context.Context, draft gateway.PostDraft) (*entity.Post, error) {
	ctx = ensureContext(ctx)

	var (
		post  *entity.Post
		opErr error
	)
	err := c.dispatch(ctx, func() {
		created, err := c.feed.CreatePost(ctx, draft)
		if err != nil {
			opErr = apperrors.FromError(err)
			return
		}
		post = created
		c.setFeed(feedStateFromPage(c.feed.Snapshot()))
	})
	if err != nil {
		return nil, err
	}
	return post, opErr
}

// DeletePost removes a post and publishes the feed without it.
func (c *Container) DeletePost(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)

	var opErr error
	err := c.dispatch(ctx, func() {
		if err := c.feed.DeletePost(ctx, id); err != nil {
			opErr = apperrors.FromError(err)
			return
		}
		c.setFeed(feedStateFromPage(c.feed.Snapshot()))
	})
	if err != nil {
		return err
	}
	return opErr
}

// applyFeedResult folds a repository page result into the published state.
func (c *Container) applyFeedResult(page repository.FeedPage, err error) (FeedState, error) {
	if err != nil {
		failure := apperrors.FromError(err)
		next := c.FeedSnapshot()
		next.Phase = PhaseError
		next.IsLoadingMore = false
		next.Message = failure.Message
		c.setFeed(next)
		return next, failure
	}

	next := feedStateFromPage(page)
	c.setFeed(next)
	return next, nil
}

func feedStateFromPage(page repository.FeedPage) FeedState {
	return FeedState{
		Phase:      PhaseLoaded,
		Items:      page.Items,
		HasMore:    page.HasMore,
		NextOffset: page.NextOffset,
	}
}

func (c *Container) setSession(next SessionState) {
	c.mu.Lock()
	c.session = next
	c.publishLocked(Event{Stream: StreamSession, Session: &next})
	c.mu.Unlock()
}

func (c *Container) setFeed(next FeedState) {
	c.mu.Lock()
	c.feedState = next
	c.publishLocked(Event{Stream: StreamFeed, Feed: &next})
	c.mu.Unlock()
}

// publishLocked fans the event out. A subscriber that cannot keep up is
// dropped and its channel closed rather than blocking the worker.
func (c *Container) publishLocked(event Event) {
	for id, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
