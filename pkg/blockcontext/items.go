// Package blockcontext implements the per-block typed heterogeneous context
// bag: a mapping from a type tag to exactly one value of that type, with
// round-trip serialization via a tag registry; list-typed items merge by
// concatenation with last-write-wins per name.
package blockcontext

import "strconv"

// Tag identifies a context item's type for storage and serialization.
type Tag string

// Canonical context item tags.
const (
	TagVars            Tag = "vars"
	TagEnvVars         Tag = "env_vars"
	TagCwd             Tag = "cwd"
	TagSSHHost         Tag = "ssh_host"
	TagExecutionOutput Tag = "execution_output"
	TagBlockState      Tag = "block_state"
)

// Var is a single named value with provenance, e.g. a `var` block's
// declaration or a script's output-variable assignment.
type Var struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"` // block id that produced this binding
}

// Vars is an ordered set of Var, last write wins on Name.
type Vars struct {
	Items []Var `json:"items"`
}

// Upsert inserts v, replacing any existing entry with the same Name.
func (vs *Vars) Upsert(v Var) {
	for i := range vs.Items {
		if vs.Items[i].Name == v.Name {
			vs.Items[i] = v
			return
		}
	}
	vs.Items = append(vs.Items, v)
}

// Get returns the value for name and whether it was present.
func (vs *Vars) Get(name string) (Var, bool) {
	for _, v := range vs.Items {
		if v.Name == name {
			return v, true
		}
	}
	return Var{}, false
}

// EnvVar is a single environment variable assignment.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EnvVars is an ordered set of EnvVar, last write wins on Name.
type EnvVars struct {
	Items []EnvVar `json:"items"`
}

// Upsert inserts e, replacing any existing entry with the same Name.
func (es *EnvVars) Upsert(e EnvVar) {
	for i := range es.Items {
		if es.Items[i].Name == e.Name {
			es.Items[i] = e
			return
		}
	}
	es.Items = append(es.Items, e)
}

// Cwd replaces the working directory entirely (not merged with prior).
type Cwd string

// SSHHost names the remote host a block (and its descendants, until
// overridden) executes against. Empty string means "local".
type SSHHost struct {
	Host string `json:"host"`
	Set  bool   `json:"set"`
}

// ExecutionOutput is the block-type-specific result of running a block,
// exposed to templates through a uniform key interface. Domain fields
// (stdout, stderr, exit_code, HTTP status, SQL rowcount, ...) are carried
// in Fields so any block type can populate it without a shared struct.
type ExecutionOutput struct {
	ExitCode *int              `json:"exit_code,omitempty"`
	Stdout   *string           `json:"stdout,omitempty"`
	Stderr   *string           `json:"stderr,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"` // domain-specific extras
}

// Get implements the template "key" interface used by the resolver when
// exposing doc.above.<name>.output.<key> and doc.blocks_above[<id>].<key>.
func (o ExecutionOutput) Get(key string) (string, bool) {
	switch key {
	case "exit_code":
		if o.ExitCode == nil {
			return "", false
		}
		return strconv.Itoa(*o.ExitCode), true
	case "stdout":
		if o.Stdout == nil {
			return "", false
		}
		return *o.Stdout, true
	case "stderr":
		if o.Stderr == nil {
			return "", false
		}
		return *o.Stderr, true
	default:
		v, ok := o.Fields[key]
		return v, ok
	}
}

// Keys enumerates every template key this output exposes.
func (o ExecutionOutput) Keys() []string {
	keys := make([]string, 0, len(o.Fields)+3)
	if o.ExitCode != nil {
		keys = append(keys, "exit_code")
	}
	if o.Stdout != nil {
		keys = append(keys, "stdout")
	}
	if o.Stderr != nil {
		keys = append(keys, "stderr")
	}
	for k := range o.Fields {
		keys = append(keys, k)
	}
	return keys
}

// BlockState is arbitrary serializable state surfaced to the front-end
// (progress counters, status enums, AI session snapshots). The engine
// treats it as opaque JSON.
type BlockState struct {
	Value map[string]any `json:"value"`
}
