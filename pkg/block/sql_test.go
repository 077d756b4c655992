package block

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

type fakeSQLDriver struct {
	result SQLResult
	err    error
}

func (d *fakeSQLDriver) Query(ctx context.Context, query string, args ...any) (SQLResult, error) {
	return d.result, d.err
}

func newExecCtx(t *testing.T, handler document.Handler) *execctx.Context {
	t.Helper()
	handle, cancel := lifecycle.NewHandle(context.Background(), "h1", "b1", "")
	return execctx.New("b1", "doc1", "", "chan1", resolver.New(), handle, cancel, noopSink{}, nil, nil, nil, nil, nil)
}

func TestSQLHandlerReturnsRowCount(t *testing.T) {
	driver := &fakeSQLDriver{result: SQLResult{Columns: []string{"id", "name"}, Rows: [][]string{{"1", "a"}, {"2", "b"}}}}
	factory := NewSQLFactory(driver)
	h, err := factory(document.Node{ID: "b1", Type: "sql", Props: map[string]any{"query": "select 1"}})
	require.NoError(t, err)

	ec := newExecCtx(t, h)
	handle := h.Execute(ec)
	require.NotNil(t, handle)

	status := handle.WaitForCompletion(context.Background())
	assert.Equal(t, lifecycle.StatusSuccess, status)
}

func TestSQLHandlerFailsWithNoDriver(t *testing.T) {
	factory := NewSQLFactory(nil)
	h, err := factory(document.Node{ID: "b1", Type: "sql", Props: map[string]any{"query": "select 1"}})
	require.NoError(t, err)

	ec := newExecCtx(t, h)
	handle := h.Execute(ec)
	require.NotNil(t, handle)

	require.Eventually(t, func() bool {
		return handle.Status() == lifecycle.StatusFailed
	}, time.Second, time.Millisecond)
}
