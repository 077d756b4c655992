package block

import (
	"context"
	"strconv"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// SQLResult is one query's result set, as returned by a SQLDriver.
type SQLResult struct {
	Columns []string
	Rows    [][]string
}

// SQLDriver is the out-of-scope collaborator a sql block delegates to: this
// package specifies only that a query runs and produces a result set, not
// any particular database wire protocol.
type SQLDriver interface {
	Query(ctx context.Context, query string, args ...any) (SQLResult, error)
}

// SQLProps is a `sql` block's static configuration.
type SQLProps struct {
	Query string `json:"query"`
	Args  []any  `json:"args,omitempty"`
}

type sqlHandler struct {
	id     string
	props  SQLProps
	driver SQLDriver
}

// NewSQLFactory builds the document.Factory for the "sql" block type.
// driver may be nil, in which case every sql block fails at execution time
// — a deployment with no configured SQL driver simply can't run them.
func NewSQLFactory(driver SQLDriver) document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props SQLProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &sqlHandler{id: n.ID, props: props, driver: driver}, nil
	}
}

func (h *sqlHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *sqlHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	go func() {
		ec.BlockStarted()

		if h.driver == nil {
			ec.BlockFailed("sql: no driver configured")
			return
		}

		query, err := ec.ContextResolver().ResolveTemplate(h.props.Query)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		result, err := h.driver.Query(ec.CancellationToken(), query, h.props.Args...)

		select {
		case <-ec.CancellationToken().Done():
			ec.BlockCancelled()
			return
		default:
		}

		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		out := blockcontext.ExecutionOutput{
			Fields: map[string]string{
				"row_count": strconv.Itoa(len(result.Rows)),
				"columns":   joinCSV(result.Columns),
			},
		}
		if setErr := ec.SetBlockOutput(out); setErr != nil {
			ec.BlockFailed(setErr.Error())
			return
		}
		ec.BlockFinished(nil, true)
	}()

	return ec.Handle()
}

func joinCSV(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}
