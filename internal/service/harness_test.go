package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"murmur/internal/featureflags"
	"murmur/internal/kv"
	"murmur/internal/repository"
)

// testClock hands out strictly increasing times so creation order is
// observable in the feed.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() (string, error) {
	var (
		mu sync.Mutex
		n  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n), nil
	}
}

type harness struct {
	clock    *testClock
	store    *kv.MemoryStore
	posts    *PostService
	comments *CommentService
	feed     *FeedService
}

func newHarness(t *testing.T, flags string, cfg PostConfig) *harness {
	t.Helper()

	clock := newTestClock()
	store := kv.NewMemoryStore(kv.WithClock(clock.Peek))
	t.Cleanup(func() { _ = store.Close() })

	postRepo := repository.NewPostRepository(store, repository.WithClock(clock.Peek))
	commentRepo := repository.NewCommentRepository(store)

	posts := NewPostService(postRepo, commentRepo, featureflags.NewManager(flags), cfg)
	posts.now = clock.Now
	posts.newID = sequentialIDs("p")
	posts.newHandle = func() string { return "quiet-otter-0042" }

	comments := NewCommentService(commentRepo, postRepo)
	comments.now = clock.Now
	comments.newID = sequentialIDs("c")

	return &harness{
		clock:    clock,
		store:    store,
		posts:    posts,
		comments: comments,
		feed:     NewFeedService(postRepo, commentRepo),
	}
}
