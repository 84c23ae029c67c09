package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GlobalLogger
	SetGlobalLogger(NewLogger(&buf, false))
	t.Cleanup(func() { GlobalLogger = prev })
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, ExtractCorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "req-1")
	assert.Equal(t, "req-1", ExtractCorrelationID(ctx))
}

func TestRepoLogger(t *testing.T) {
	buf := captureLogs(t)
	ctx := WithCorrelationID(context.Background(), "req-9")
	l := NewRepoLogger("posts")

	l.LogCreate(ctx, map[string]any{"id": "p1"})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "repository create", entries[0]["msg"])
	assert.Equal(t, "posts", entries[0]["space"])
	assert.Equal(t, "req-9", entries[0]["correlation_id"])
	assert.Equal(t, "p1", entries[0]["id"])
}

func TestRepoLogger_Disabled(t *testing.T) {
	buf := captureLogs(t)
	Config.EnableRepoLogging = false
	t.Cleanup(func() { Config.EnableRepoLogging = true })

	l := NewRepoLogger("comments")
	l.LogRead(context.Background(), nil)
	l.LogDelete(context.Background(), nil)
	assert.Empty(t, buf.String())

	l.LogError(context.Background(), errors.New("boom"), "delete")
	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestLogServiceCall(t *testing.T) {
	buf := captureLogs(t)

	LogServiceCall(context.Background(), "PostService", "CreatePost", map[string]any{"author": "alice"})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "PostService", entries[0]["service"])
	assert.Equal(t, "alice", entries[0]["author"])
}

func TestStoreMetrics_Track(t *testing.T) {
	m := NewStoreMetrics("obs-test")

	m.Track("get")(nil)
	m.Track("get")(errors.New("down"))
	m.RecordRejection()

	assert.Equal(t, 1.0, testutil.ToFloat64(StoreErrors.WithLabelValues("obs-test", "get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StoreCommitRejections.WithLabelValues("obs-test")))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "murmur-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	span, ctx := TraceServiceCall(context.Background(), "PostService", "GetPost")
	span.SetError(errors.New("ignored"))
	span.End()
	assert.NotNil(t, ctx)
}
