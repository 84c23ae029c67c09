// Package kv defines the ordered key-value store the repositories persist
// through, together with memory, Redis and SQL implementations.
//
// A store offers versioned point reads, unconditional writes and ordered
// prefix scans. AtomicOp checks compare versionstamps at commit time.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Separator joins key parts when a key is flattened for storage.
const Separator = ":"

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// ErrCommitted is returned when Commit is called twice on the same AtomicOp.
var ErrCommitted = errors.New("kv: atomic operation already committed")

// ErrConflict is returned by the unconditional Set and Delete helpers when a
// backend rejects the write as conflicting with a concurrent transaction.
var ErrConflict = errors.New("kv: write conflicted with a concurrent transaction")

// Key is an ordered tuple of parts, e.g. Key{"posts", id}.
type Key []string

// String flattens the key into its storage form.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// prefixString returns the storage prefix matching every key below k.
func (k Key) prefixString() string {
	if len(k) == 0 {
		return ""
	}
	return k.String() + Separator
}

// ParseKey splits a flattened key back into its parts.
func ParseKey(s string) Key {
	if s == "" {
		return Key{}
	}
	return Key(strings.Split(s, Separator))
}

// Entry is a stored value together with the versionstamp of its last write.
type Entry struct {
	Key          Key
	Value        []byte
	Versionstamp string
}

// CommitResult reports the outcome of an atomic commit. OK is false when a
// check failed; in that case nothing was written.
type CommitResult struct {
	OK           bool
	Versionstamp string
}

// Store is the ordered key-value store contract.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error
	Delete(ctx context.Context, key Key) error
	// List yields every live entry below prefix in ascending key order. The
	// sequence is lazy and meant to be traversed once.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Atomic() AtomicOp
	Ping(ctx context.Context) error
	Close() error
}

// AtomicOp accumulates checks and mutations that commit as one unit.
type AtomicOp interface {
	// Check requires key to be at versionstamp when the op commits. An empty
	// versionstamp requires the key to be absent.
	Check(key Key, versionstamp string) AtomicOp
	Set(key Key, value []byte, opts ...SetOption) AtomicOp
	Delete(key Key) AtomicOp
	Commit(ctx context.Context) (CommitResult, error)
}

// SetOption configures a write.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL makes the written entry expire after d. Zero or negative means
// the entry never expires.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
	}
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type check struct {
	key          Key
	versionstamp string
}

type mutation struct {
	key    Key
	value  []byte
	ttl    time.Duration
	delete bool
}

type commitFunc func(ctx context.Context, checks []check, mutations []mutation) (CommitResult, error)

// atomicOp is the AtomicOp shared by every backend; only the commit step
// differs between them.
type atomicOp struct {
	checks    []check
	mutations []mutation
	commit    commitFunc
	committed bool
}

func newAtomicOp(commit commitFunc) *atomicOp {
	return &atomicOp{commit: commit}
}

func (op *atomicOp) Check(key Key, versionstamp string) AtomicOp {
	op.checks = append(op.checks, check{key: key, versionstamp: versionstamp})
	return op
}

func (op *atomicOp) Set(key Key, value []byte, opts ...SetOption) AtomicOp {
	o := applySetOptions(opts)
	stored := make([]byte, len(value))
	copy(stored, value)
	op.mutations = append(op.mutations, mutation{key: key, value: stored, ttl: o.ttl})
	return op
}

func (op *atomicOp) Delete(key Key) AtomicOp {
	op.mutations = append(op.mutations, mutation{key: key, delete: true})
	return op
}

func (op *atomicOp) Commit(ctx context.Context) (CommitResult, error) {
	if op.committed {
		return CommitResult{}, ErrCommitted
	}
	op.committed = true
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	return op.commit(ctx, op.checks, op.mutations)
}

// commitUnconditional runs a check-free op and turns a rejected commit into
// ErrConflict, which is how Set and Delete report it.
func commitUnconditional(ctx context.Context, op AtomicOp) error {
	res, err := op.Commit(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		return ErrConflict
	}
	return nil
}

func formatVersionstamp(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
