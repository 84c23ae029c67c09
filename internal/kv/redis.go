package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisNamespace = "murmur"
	defaultRedisPageSize  = 200

	redisValueField        = "v"
	redisVersionstampField = "vs"
)

var errCheckFailed = errors.New("kv: check failed")

// RedisStore keeps every entry in a hash (value and versionstamp fields) and
// mirrors the key into a lexicographically ordered sorted set so prefix scans
// come back in key order. Expired hashes leave stale index members behind;
// scans prune them as they go.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
	pageSize  int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithNamespace prefixes every Redis key the store touches.
func WithNamespace(ns string) RedisOption {
	return func(s *RedisStore) {
		s.namespace = ns
	}
}

// WithPageSize sets how many index members a scan fetches per round trip.
func WithPageSize(n int64) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewRedisStore wraps an existing client. The caller owns the client and is
// responsible for closing it.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		namespace: defaultRedisNamespace,
		pageSize:  defaultRedisPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) dataKey(key string) string {
	return s.namespace + ":kv:" + key
}

func (s *RedisStore) indexKey() string {
	return s.namespace + ":kv:index"
}

func (s *RedisStore) counterKey() string {
	return s.namespace + ":kv:versionstamp"
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	vals, err := s.rdb.HMGet(ctx, s.dataKey(key.String()), redisValueField, redisVersionstampField).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	e, ok := decodeRedisHash(key, vals)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func decodeRedisHash(key Key, vals []interface{}) (Entry, bool) {
	if len(vals) != 2 || vals[0] == nil {
		return Entry{}, false
	}
	value, ok := vals[0].(string)
	if !ok {
		return Entry{}, false
	}
	vs, _ := vals[1].(string)
	return Entry{Key: key, Value: []byte(value), Versionstamp: vs}, true
}

func (s *RedisStore) Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error {
	return commitUnconditional(ctx, s.Atomic().Set(key, value, opts...))
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return commitUnconditional(ctx, s.Atomic().Delete(key))
}

// List pages through the sorted-set index with ZRANGEBYLEX, resuming each
// page strictly after the last member seen.
func (s *RedisStore) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefix.prefixString()
	// 0xff never occurs in UTF-8, so it bounds every key that starts with p.
	upper := "(" + p + "\xff"

	return func(yield func(Entry, error) bool) {
		lower := "[" + p
		for {
			members, err := s.rdb.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
				Min:   lower,
				Max:   upper,
				Count: s.pageSize,
			}).Result()
			if err != nil {
				yield(Entry{}, fmt.Errorf("redis scan %s: %w", prefix, err))
				return
			}
			if len(members) == 0 {
				return
			}

			cmds := make([]*redis.SliceCmd, len(members))
			_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, m := range members {
					cmds[i] = pipe.HMGet(ctx, s.dataKey(m), redisValueField, redisVersionstampField)
				}
				return nil
			})
			if err != nil {
				yield(Entry{}, fmt.Errorf("redis scan %s: %w", prefix, err))
				return
			}

			var stale []interface{}
			for i, m := range members {
				e, ok := decodeRedisHash(ParseKey(m), cmds[i].Val())
				if !ok {
					stale = append(stale, m)
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
			if len(stale) > 0 {
				_ = s.rdb.ZRem(ctx, s.indexKey(), stale...).Err()
			}

			if int64(len(members)) < s.pageSize {
				return
			}
			lower = "(" + members[len(members)-1]
		}
	}
}

func (s *RedisStore) Atomic() AtomicOp {
	return newAtomicOp(s.commit)
}

// commit watches every checked key, verifies versionstamps, then applies the
// mutations in one MULTI/EXEC. A watched key changing underneath aborts EXEC
// and is reported the same way as a failed check.
func (s *RedisStore) commit(ctx context.Context, checks []check, mutations []mutation) (CommitResult, error) {
	watched := make([]string, 0, len(checks))
	for _, c := range checks {
		watched = append(watched, s.dataKey(c.key.String()))
	}

	var result CommitResult
	txf := func(tx *redis.Tx) error {
		for _, c := range checks {
			current, err := tx.HGet(ctx, s.dataKey(c.key.String()), redisVersionstampField).Result()
			if errors.Is(err, redis.Nil) {
				current = ""
			} else if err != nil {
				return err
			}
			if current != c.versionstamp {
				return errCheckFailed
			}
		}

		seq, err := tx.Incr(ctx, s.counterKey()).Result()
		if err != nil {
			return err
		}
		vs := formatVersionstamp(uint64(seq))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range mutations {
				k := m.key.String()
				dk := s.dataKey(k)
				if m.delete {
					pipe.Del(ctx, dk)
					pipe.ZRem(ctx, s.indexKey(), k)
					continue
				}
				pipe.HSet(ctx, dk, redisValueField, m.value, redisVersionstampField, vs)
				if m.ttl > 0 {
					pipe.PExpire(ctx, dk, m.ttl)
				} else {
					pipe.Persist(ctx, dk)
				}
				pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: k})
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = CommitResult{OK: true, Versionstamp: vs}
		return nil
	}

	err := s.rdb.Watch(ctx, txf, watched...)
	switch {
	case errors.Is(err, errCheckFailed), errors.Is(err, redis.TxFailedErr):
		return CommitResult{}, nil
	case err != nil:
		return CommitResult{}, fmt.Errorf("redis commit: %w", err)
	}
	return result, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

// String describes the store for logs.
func (s *RedisStore) String() string {
	return strings.Join([]string{"redis", s.rdb.Options().Addr, s.namespace}, "/")
}

var _ Store = (*RedisStore)(nil)
