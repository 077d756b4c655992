package resolver

import (
	"testing"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVar(name, value string) *blockcontext.Context {
	c := blockcontext.New()
	vs := blockcontext.Vars{}
	vs.Upsert(blockcontext.Var{Name: name, Value: value})
	c.Insert(blockcontext.TagVars, vs)
	return c
}

func TestLastWinsTieBreak(t *testing.T) {
	r := New()
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "a", Passive: withVar("X", "1")}))
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b", Passive: withVar("X", "2")}))

	rendered, err := r.ResolveTemplate("{{ var.X }}")
	require.NoError(t, err)
	assert.Equal(t, "2", rendered)
}

func TestVarValueIsRenderedAgainstPriorState(t *testing.T) {
	r := New()
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "a", Passive: withVar("who", "world")}))
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b", Passive: withVar("greeting", "hello {{ var.who }}")}))

	rendered, err := r.ResolveTemplate("{{ var.greeting }}")
	require.NoError(t, err)
	assert.Equal(t, "hello world", rendered)
}

func TestActiveWinsOverPassiveWithinOneBlock(t *testing.T) {
	r := New()
	passive := withVar("X", "passive")
	active := withVar("X", "active")
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "a", Passive: passive, Active: active}))

	rendered, err := r.ResolveTemplate("{{ var.X }}")
	require.NoError(t, err)
	assert.Equal(t, "active", rendered)
}

func TestCwdReplacesEntirely(t *testing.T) {
	r := New()
	c1 := blockcontext.New()
	c1.Insert(blockcontext.TagCwd, blockcontext.Cwd("/a"))
	c2 := blockcontext.New()
	c2.Insert(blockcontext.TagCwd, blockcontext.Cwd("/b"))

	require.NoError(t, r.PushBlock(BlockWithContext{ID: "a", Passive: c1}))
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b", Passive: c2}))
	assert.Equal(t, "/b", r.Cwd())
}

func TestMissingKeyPropagatesTemplateError(t *testing.T) {
	r := New()
	_, err := r.ResolveTemplate("{{ var.ghost }}")
	require.Error(t, err)
}

func TestExtraNamespaceLookup(t *testing.T) {
	r := New()
	r.SetExtraNamespace("workspace", map[string]string{"root": "/srv/app"})
	rendered, err := r.ResolveTemplate("{{ workspace.root }}")
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", rendered)
}

func TestBlocksAboveAndNamedOutput(t *testing.T) {
	r := New()
	exit := 0
	stdout := "baz"
	outCtx := blockcontext.New()
	outCtx.Insert(blockcontext.TagExecutionOutput, blockcontext.ExecutionOutput{ExitCode: &exit, Stdout: &stdout})

	require.NoError(t, r.PushBlock(BlockWithContext{ID: "block-123", Name: "build", Passive: outCtx}))

	byID, err := r.ResolveTemplate("{{ doc.blocks_above[block-123].output.stdout }}")
	require.NoError(t, err)
	assert.Equal(t, "baz", byID)

	byName, err := r.ResolveTemplate("{{ doc.above.build.output.stdout }}")
	require.NoError(t, err)
	assert.Equal(t, "baz", byName)
}

func TestFromParentInheritsByCopy(t *testing.T) {
	parent := New()
	require.NoError(t, parent.PushBlock(BlockWithContext{ID: "a", Passive: withVar("X", "1")}))

	child := FromParent(parent)
	require.NoError(t, child.PushBlock(BlockWithContext{ID: "b", Passive: withVar("X", "2")}))

	parentVal, _ := parent.ResolveTemplate("{{ var.X }}")
	childVal, _ := child.ResolveTemplate("{{ var.X }}")
	assert.Equal(t, "1", parentVal)
	assert.Equal(t, "2", childVal)
}

func TestSnapshotIsIndependentOfLaterMutation(t *testing.T) {
	r := New()
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "a", Passive: withVar("X", "1")}))
	snap := r.Snapshot()

	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b", Passive: withVar("X", "2")}))

	assert.Equal(t, "1", snap.Variables["X"])
}

func TestDocumentStateParity(t *testing.T) {
	r := New()
	stdout := "ok"
	outCtx := blockcontext.New()
	outCtx.Insert(blockcontext.TagExecutionOutput, blockcontext.ExecutionOutput{Stdout: &stdout})
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b1", Name: "deploy", Passive: outCtx}))

	state := r.DocumentState()
	view, ok := state.Above["deploy"]
	require.True(t, ok)
	assert.Equal(t, "ok", view.Output["stdout"])
}

func TestBareOutputRendersWholeObject(t *testing.T) {
	r := New()
	exit := 0
	stdout := "baz"
	outCtx := blockcontext.New()
	outCtx.Insert(blockcontext.TagExecutionOutput, blockcontext.ExecutionOutput{ExitCode: &exit, Stdout: &stdout})
	require.NoError(t, r.PushBlock(BlockWithContext{ID: "b1", Name: "build", Passive: outCtx}))

	rendered, err := r.ResolveTemplate("{{ doc.named.build.output }}")
	require.NoError(t, err)
	assert.JSONEq(t, `{"exit_code": "0", "stdout": "baz"}`, rendered)

	// The by-id spelling renders identically.
	byID, err := r.ResolveTemplate("{{ doc.blocks_above[b1].output }}")
	require.NoError(t, err)
	assert.Equal(t, rendered, byID)
}
