package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPostgresStore starts a disposable Postgres container, runs
// migrations against it, and returns a ready PostgresStore.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewPostgres(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestPostgresSaveLoadRoundTrip(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "doc1", "block1", []byte(`{"hello":"world"}`)))

	data, ok, err := store.Load(ctx, "doc1", "block1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"hello":"world"}`, string(data))
}

func TestPostgresSaveUpserts(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "doc1", "block1", []byte(`{"v":1}`)))
	require.NoError(t, store.Save(ctx, "doc1", "block1", []byte(`{"v":2}`)))

	data, ok, err := store.Load(ctx, "doc1", "block1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestPostgresLoadMissingReturnsFalse(t *testing.T) {
	store := newTestPostgresStore(t)
	_, ok, err := store.Load(context.Background(), "doc1", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresDeleteDocumentRemovesAllBlocks(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "doc1", "block1", []byte(`{}`)))
	require.NoError(t, store.Save(ctx, "doc1", "block2", []byte(`{}`)))

	require.NoError(t, store.DeleteDocument(ctx, "doc1"))

	_, ok1, _ := store.Load(ctx, "doc1", "block1")
	_, ok2, _ := store.Load(ctx, "doc1", "block2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}
