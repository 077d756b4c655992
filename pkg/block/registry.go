package block

import "github.com/opsrunbook/engine/pkg/document"

// RegistryDeps bundles the out-of-scope collaborators a full registry needs
// beyond what each block type's own Props supply: the ai_chat block's shared
// session dependencies, and the sql/http blocks' swappable driver/client.
type RegistryDeps struct {
	AIChat AIChatDeps
	SQL    SQLDriver
	HTTP   HTTPClient
}

// NewRegistry builds the document.Registry for every block type this
// package implements, for reuse by both the top-level driver (cmd/
// runbookctl, pkg/api) and sub_runbook's nested documents. A sub_runbook
// block can reference another sub_runbook in turn: the closure
// NewSubRunbookFactory receives already sees every entry this function
// adds, including "sub_runbook" itself, because a map is a reference type
// and registry is mutated in place after the closure is created.
func NewRegistry(deps RegistryDeps) document.Registry {
	registry := document.Registry{
		"var":       NewVarFactory(),
		"env":       NewEnvFactory(),
		"directory": NewDirectoryFactory(),
		"script":    NewScriptFactory(),
		"pause":     NewPauseFactory(),
		"terminal":  NewTerminalFactory(),
		"sql":       NewSQLFactory(deps.SQL),
		"http":      NewHTTPFactory(deps.HTTP),
		"ai_chat":   NewAIChatFactory(deps.AIChat),
	}
	registry["sub_runbook"] = NewSubRunbookFactory(registry)
	return registry
}
