package dbclean

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/retry"
)

type fakeTarget struct {
	name     string
	cleanErr error
	pingErrs []error
	pings    int
	cleaned  bool
	closed   bool
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Ping(context.Context) error {
	f.pings++
	if len(f.pingErrs) == 0 {
		return nil
	}
	err := f.pingErrs[0]
	f.pingErrs = f.pingErrs[1:]
	return err
}

func (f *fakeTarget) Clean(context.Context) error {
	f.cleaned = true
	return f.cleanErr
}

func (f *fakeTarget) Close(context.Context) error {
	f.closed = true
	return nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestCleaner_CleansEveryTarget(t *testing.T) {
	boom := errors.New("relation locked")
	pg := &fakeTarget{name: "postgres", cleanErr: boom}
	neo := &fakeTarget{name: "neo4j"}

	c := NewCleaner(nil, pg, neo)
	err := c.Clean(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "postgres")
	assert.True(t, pg.cleaned)
	assert.True(t, neo.cleaned, "a failing target does not stop the next one")

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, pg.closed)
	assert.True(t, neo.closed)
}

func TestCleaner_WaitReadyRetries(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:5432: connection refused")
	pg := &fakeTarget{name: "postgres", pingErrs: []error{refused, refused}}
	neo := &fakeTarget{name: "neo4j"}

	c := NewCleaner(zap.NewNop(), pg, neo)
	require.NoError(t, c.WaitReady(context.Background(), fastRetry()))
	assert.Equal(t, 3, pg.pings)
	assert.Equal(t, 1, neo.pings)
}

func TestCleaner_WaitReadyStopsOnAuthError(t *testing.T) {
	authErr := &pq.Error{Code: "28P01", Message: "password authentication failed"}
	pg := &fakeTarget{name: "postgres", pingErrs: []error{authErr, nil}}

	err := NewCleaner(nil, pg).WaitReady(context.Background(), fastRetry())
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, pg.pings)
}

func TestCleaner_WaitReadyExhausted(t *testing.T) {
	refused := errors.New("connection refused")
	pg := &fakeTarget{name: "postgres", pingErrs: []error{refused, refused, refused}}

	cfg := fastRetry()
	cfg.MaxRetries = 1
	err := NewCleaner(nil, pg).WaitReady(context.Background(), cfg)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 2, pg.pings)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&pq.Error{Code: "28000"}))
	assert.False(t, IsAuthError(&pq.Error{Code: "57P03"}))
	assert.False(t, IsAuthError(errors.New("connection refused")))
}

func TestDroppableIndex(t *testing.T) {
	assert.False(t, droppableIndex(map[string]any{"name": "index_343aff4e", "type": "LOOKUP"}))
	assert.False(t, droppableIndex(map[string]any{"name": "person_id", "type": "RANGE", "owningConstraint": "person_id"}))
	assert.True(t, droppableIndex(map[string]any{"name": "person_name", "type": "RANGE", "owningConstraint": nil}))
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "`person_id`", quoteName("person_id"))
	assert.Equal(t, "`odd``name`", quoteName("odd`name"))
}

func TestCacheReporter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	samples := []MemorySnapshot{
		{Cached: 900 << 20, Buffers: 100 << 20},
		{Cached: 50 << 20, Buffers: 50 << 20},
	}
	r := NewCacheReporter(zap.New(core))
	r.read = func(context.Context) (MemorySnapshot, error) {
		s := samples[0]
		samples = samples[1:]
		return s, nil
	}

	r.Report(context.Background(), "before")
	r.Report(context.Background(), "after")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "before", entries[0].ContextMap()["stage"])
	assert.Equal(t, uint64(900), entries[1].ContextMap()["released_mb"])
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("BENCHCTL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: BENCHCTL_TEST_POSTGRES_DSN not set")
	}

	pg, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer pg.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, pg.Ping(ctx))
	require.NoError(t, pg.Clean(ctx))

	inv, err := pg.Inspect(ctx)
	require.NoError(t, err)
	for _, c := range inv.Counts {
		assert.Zero(t, c.Value, c.Name)
	}
}

func TestNeo4jIntegration(t *testing.T) {
	uri := os.Getenv("BENCHCTL_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("Skipping Neo4j integration test: BENCHCTL_TEST_NEO4J_URI not set")
	}

	neo, err := NewNeo4j(uri, os.Getenv("BENCHCTL_TEST_NEO4J_USER"), os.Getenv("BENCHCTL_TEST_NEO4J_PASSWORD"), nil)
	require.NoError(t, err)
	defer neo.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, neo.Ping(ctx))
	require.NoError(t, neo.Clean(ctx))

	inv, err := neo.Inspect(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(inv.Counts), 2)
	assert.Equal(t, Count{Group: GroupTotal, Name: "nodes", Value: 0}, inv.Counts[0])
	assert.Equal(t, Count{Group: GroupTotal, Name: "relationships", Value: 0}, inv.Counts[1])
}
