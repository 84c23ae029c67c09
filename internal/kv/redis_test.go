package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Layout(t *testing.T) {
	s, mr := newTestRedisStore(t, WithNamespace("test"))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, Key{"posts", "a"}, []byte("hello")))

	assert.Equal(t, "hello", mr.HGet("test:kv:posts:a", "v"))
	assert.Equal(t, formatVersionstamp(1), mr.HGet("test:kv:posts:a", "vs"))
	members, err := mr.ZMembers("test:kv:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts:a"}, members)

	require.NoError(t, s.Delete(ctx, Key{"posts", "a"}))
	assert.False(t, mr.Exists("test:kv:posts:a"))
	assert.False(t, mr.Exists("test:kv:index"))
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, Key{"posts", "anon"}, []byte("a"), WithTTL(time.Hour)))
	require.NoError(t, s.Set(ctx, Key{"posts", "named"}, []byte("n")))
	assert.Equal(t, time.Hour, mr.TTL("murmur:kv:posts:anon"))

	mr.FastForward(2 * time.Hour)

	_, err := s.Get(ctx, Key{"posts", "anon"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"posts:named"}, keysOf(collect(t, s, Key{"posts"})))

	members, err := mr.ZMembers("murmur:kv:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts:named"}, members, "scan prunes index members of expired keys")
}

func TestRedisStore_RewriteWithoutTTLPersists(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{"posts", "a"}

	require.NoError(t, s.Set(ctx, key, []byte("a"), WithTTL(time.Minute)))
	require.NoError(t, s.Set(ctx, key, []byte("b")))
	assert.Zero(t, mr.TTL("murmur:kv:posts:a"))
}

func TestRedisStore_StaleVersionstampAfterOtherWriter(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{"posts", "a"}
	require.NoError(t, s.Set(ctx, key, []byte("a")))
	e, err := s.Get(ctx, key)
	require.NoError(t, err)

	// A second store over the same client stands in for another process.
	other := NewRedisStore(s.rdb)
	require.NoError(t, other.Set(ctx, key, []byte("b")))

	res, err := s.Atomic().Check(key, e.Versionstamp).Set(key, []byte("c")).Commit(ctx)
	require.NoError(t, err)
	assert.False(t, res.OK)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got.Value)
}

func TestRedisStore_ErrorsAreWrapped(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	mr.SetError("ERR injected failure")

	_, err := s.Get(ctx, Key{"posts", "a"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "redis get posts:a")

	for _, err := range s.List(ctx, Key{"posts"}) {
		assert.Error(t, err)
	}

	_, err = s.Atomic().Set(Key{"posts", "a"}, []byte("a")).Commit(ctx)
	assert.Error(t, err)
}

func TestRedisStore_String(t *testing.T) {
	s, mr := newTestRedisStore(t)
	assert.Equal(t, "redis/"+mr.Addr()+"/murmur", s.String())
}
