package kv

import (
	"context"
	"errors"
	"iter"

	"go.opentelemetry.io/otel/attribute"

	"murmur/internal/observability"
)

// instrumentedStore records latency, errors and spans for every call on the
// wrapped store.
type instrumentedStore struct {
	next    Store
	backend string
	metrics *observability.StoreMetrics
}

// Instrument wraps store so its calls are measured under the backend label.
func Instrument(store Store, backend string) Store {
	return &instrumentedStore{
		next:    store,
		backend: backend,
		metrics: observability.NewStoreMetrics(backend),
	}
}

// observe finishes a span and records metrics. A missing key is an expected
// outcome, not a store error.
func (s *instrumentedStore) observe(span *observability.Span, done func(error), err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	span.SetError(err)
	span.End()
	done(err)
}

func (s *instrumentedStore) Get(ctx context.Context, key Key) (Entry, error) {
	span, ctx := observability.TraceStoreOperation(ctx, s.backend, "get")
	span.AddAttributes(attribute.String("kv.key", key.String()))
	done := s.metrics.Track("get")
	e, err := s.next.Get(ctx, key)
	s.observe(span, done, err)
	return e, err
}

func (s *instrumentedStore) Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error {
	span, ctx := observability.TraceStoreOperation(ctx, s.backend, "set")
	span.AddAttributes(attribute.String("kv.key", key.String()))
	done := s.metrics.Track("set")
	err := s.next.Set(ctx, key, value, opts...)
	s.observe(span, done, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, key Key) error {
	span, ctx := observability.TraceStoreOperation(ctx, s.backend, "delete")
	span.AddAttributes(attribute.String("kv.key", key.String()))
	done := s.metrics.Track("delete")
	err := s.next.Delete(ctx, key)
	s.observe(span, done, err)
	return err
}

// List measures the whole traversal, from the first pull to the last.
func (s *instrumentedStore) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		span, ctx := observability.TraceStoreOperation(ctx, s.backend, "list")
		span.AddAttributes(attribute.String("kv.prefix", prefix.String()))
		done := s.metrics.Track("list")

		var (
			scanErr error
			n       int
		)
		for e, err := range s.next.List(ctx, prefix) {
			if err != nil {
				scanErr = err
			} else {
				n++
			}
			if !yield(e, err) {
				break
			}
		}
		span.AddAttributes(attribute.Int("kv.entries", n))
		s.observe(span, done, scanErr)
	}
}

func (s *instrumentedStore) Atomic() AtomicOp {
	return &instrumentedOp{next: s.next.Atomic(), store: s}
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	done := s.metrics.Track("ping")
	err := s.next.Ping(ctx)
	done(err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

type instrumentedOp struct {
	next      AtomicOp
	store     *instrumentedStore
	checks    int
	mutations int
}

func (op *instrumentedOp) Check(key Key, versionstamp string) AtomicOp {
	op.next.Check(key, versionstamp)
	op.checks++
	return op
}

func (op *instrumentedOp) Set(key Key, value []byte, opts ...SetOption) AtomicOp {
	op.next.Set(key, value, opts...)
	op.mutations++
	return op
}

func (op *instrumentedOp) Delete(key Key) AtomicOp {
	op.next.Delete(key)
	op.mutations++
	return op
}

func (op *instrumentedOp) Commit(ctx context.Context) (CommitResult, error) {
	span, ctx := observability.TraceStoreOperation(ctx, op.store.backend, "commit")
	span.AddAttributes(
		attribute.Int("kv.checks", op.checks),
		attribute.Int("kv.mutations", op.mutations),
	)
	done := op.store.metrics.Track("commit")
	res, err := op.next.Commit(ctx)
	if err == nil && !res.OK {
		op.store.metrics.RecordRejection()
		span.AddAttributes(attribute.Bool("kv.rejected", true))
	}
	op.store.observe(span, done, err)
	return res, err
}

var _ Store = (*instrumentedStore)(nil)
