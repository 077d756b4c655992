package execctx

import "context"

// stackKey is the context.Context key carrying the chain of runbook IDs
// currently executing in this sub_runbook nesting.
type stackKey struct{}

// WithExecutionStack returns a context derived from parent carrying stack,
// installed by the document actor around every block's cancellation token
// so a sub_runbook handler can read its ancestry without either package
// depending on the other's concrete types.
func WithExecutionStack(parent context.Context, stack []string) context.Context {
	return context.WithValue(parent, stackKey{}, stack)
}

// ExecutionStack returns the chain of runbook IDs installed by
// WithExecutionStack on ctx (or an ancestor of it), or nil if none was set
// (a top-level document executing outside any sub_runbook nesting).
func ExecutionStack(ctx context.Context) []string {
	stack, _ := ctx.Value(stackKey{}).([]string)
	return stack
}
