package kv

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"
)

var errStoreClosed = errors.New("kv: store closed")

type memoryEntry struct {
	value        []byte
	versionstamp string
	expiresAt    time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. It is used by tests and by the
// "memory" driver in development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	seq     uint64
	now     func() time.Time
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used for expiration.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the live entry for key. Callers must hold s.mu.
func (s *MemoryStore) lookup(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, errStoreClosed
	}

	e, ok := s.lookup(key.String(), s.now())
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Key: key, Value: cloneBytes(e.value), Versionstamp: e.versionstamp}, nil
}

func (s *MemoryStore) Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error {
	return commitUnconditional(ctx, s.Atomic().Set(key, value, opts...))
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	return commitUnconditional(ctx, s.Atomic().Delete(key))
}

// List snapshots the matching entries under the lock and then yields them
// without holding it, so writers are never blocked by a slow consumer.
func (s *MemoryStore) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		snapshot, err := s.snapshot(prefix.prefixString())
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) snapshot(prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, ok := s.lookup(k, now)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: ParseKey(k), Value: cloneBytes(e.value), Versionstamp: e.versionstamp})
	}
	return out, nil
}

func (s *MemoryStore) Atomic() AtomicOp {
	return newAtomicOp(s.commit)
}

func (s *MemoryStore) commit(_ context.Context, checks []check, mutations []mutation) (CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CommitResult{}, errStoreClosed
	}

	now := s.now()
	for _, c := range checks {
		current := ""
		if e, ok := s.lookup(c.key.String(), now); ok {
			current = e.versionstamp
		}
		if current != c.versionstamp {
			return CommitResult{}, nil
		}
	}

	s.seq++
	vs := formatVersionstamp(s.seq)
	for _, m := range mutations {
		k := m.key.String()
		if m.delete {
			delete(s.entries, k)
			continue
		}
		e := memoryEntry{value: m.value, versionstamp: vs}
		if m.ttl > 0 {
			e.expiresAt = now.Add(m.ttl)
		}
		s.entries[k] = e
	}
	return CommitResult{OK: true, Versionstamp: vs}, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
