package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/credentials"
	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
)

// callLog records collaborator side effects in invocation order.
type callLog struct {
	mu     sync.Mutex
	events []string
}

func (l *callLog) add(event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func onlineChecker(online *bool) connectivity.Checker {
	return connectivity.Func(func(context.Context) bool { return *online })
}

// memStore is an in-memory store.Store preserving insertion order.
type memStore struct {
	mu      sync.Mutex
	order   []string
	records map[string][]byte
	getErr  error
	listErr error
	putErr  error
	log     *callLog
}

func newMemStore() *memStore {
	return &memStore{records: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.records[collection+"/"+key]
	return body, ok, nil
}

func (s *memStore) Put(_ context.Context, collection, key string, body []byte) error {
	s.log.add("cache put")
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	full := collection + "/" + key
	if _, ok := s.records[full]; !ok {
		s.order = append(s.order, full)
	}
	s.records[full] = append([]byte(nil), body...)
	return nil
}

func (s *memStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := collection + "/" + key
	delete(s.records, full)
	for i, existing := range s.order {
		if existing == full {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memStore) ClearAll(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := collection + "/"
	kept := s.order[:0]
	for _, full := range s.order {
		if len(full) >= len(prefix) && full[:len(prefix)] == prefix {
			delete(s.records, full)
			continue
		}
		kept = append(kept, full)
	}
	s.order = kept
	return nil
}

func (s *memStore) ListAll(_ context.Context, collection string) ([][]byte, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := collection + "/"
	var bodies [][]byte
	for _, full := range s.order {
		if len(full) >= len(prefix) && full[:len(prefix)] == prefix {
			bodies = append(bodies, s.records[full])
		}
	}
	return bodies, nil
}

// fakeCreds is an in-memory credentials.Store.
type fakeCreds struct {
	mu       sync.Mutex
	pair     *credentials.TokenPair
	saveErr  error
	clearErr error
	log      *callLog
}

func (f *fakeCreds) Tokens(_ context.Context) (*credentials.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pair == nil {
		return nil, nil
	}
	copied := *f.pair
	return &copied, nil
}

func (f *fakeCreds) Save(_ context.Context, pair credentials.TokenPair) error {
	f.log.add("tokens saved")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pair = &pair
	return nil
}

func (f *fakeCreds) Clear(_ context.Context) error {
	f.log.add("tokens cleared")
	if f.clearErr != nil {
		return f.clearErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pair = nil
	return nil
}

// fakeSessionGateway scripts the remote auth endpoints.
type fakeSessionGateway struct {
	session  *entity.Session
	user     *entity.User
	loginErr error
	fetchErr error

	loginCalls int
	fetchCalls int
	log        *callLog
}

func (f *fakeSessionGateway) Login(_ context.Context, _, _ string) (*entity.Session, error) {
	f.loginCalls++
	f.log.add("gateway login")
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	copied := *f.session
	return &copied, nil
}

func (f *fakeSessionGateway) CurrentUser(_ context.Context) (*entity.User, error) {
	f.fetchCalls++
	f.log.add("profile fetched")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	copied := *f.user
	return &copied, nil
}

// fakePostGateway scripts the remote feed endpoints. Pages are keyed by the
// requested offset.
type fakePostGateway struct {
	mu      sync.Mutex
	pages   map[int][]entity.Post
	listErr error

	created   *entity.Post
	createErr error
	deleteErr error
	searched  []entity.Post
	searchErr error

	listCalls   []int // offsets in request order
	createCalls int
	deleteCalls int
	searchCalls int

	// When set, ListPage signals listStarted and then blocks on listRelease.
	listStarted chan struct{}
	listRelease chan struct{}
}

func (f *fakePostGateway) ListPage(_ context.Context, _, offset int) ([]entity.Post, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, offset)
	f.mu.Unlock()

	if f.listStarted != nil {
		f.listStarted <- struct{}{}
	}
	if f.listRelease != nil {
		<-f.listRelease
	}

	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[offset]
	if !ok {
		return nil, errors.New("no page scripted for offset")
	}
	return append([]entity.Post(nil), page...), nil
}

func (f *fakePostGateway) listOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.listCalls...)
}

func (f *fakePostGateway) Search(_ context.Context, _ string) ([]entity.Post, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]entity.Post(nil), f.searched...), nil
}

func (f *fakePostGateway) Create(_ context.Context, _ gateway.PostDraft) (*entity.Post, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	copied := *f.created
	return &copied, nil
}

func (f *fakePostGateway) Delete(_ context.Context, _ int64) error {
	f.deleteCalls++
	return f.deleteErr
}

func makePosts(ids ...int64) []entity.Post {
	posts := make([]entity.Post, 0, len(ids))
	for _, id := range ids {
		posts = append(posts, entity.Post{ID: id, Title: "post", UserID: 1})
	}
	return posts
}

// seqPosts builds n posts with consecutive IDs starting at first.
func seqPosts(first int64, n int) []entity.Post {
	posts := make([]entity.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, entity.Post{ID: first + int64(i), Title: "post", UserID: 1})
	}
	return posts
}
