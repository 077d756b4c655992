// Package resolver implements the context resolver: the running fold of
// passive+active block context over a document prefix, and template
// rendering against that fold plus caller-provided namespaces.
package resolver

import (
	"sort"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/template"
)

// NamedOutput is the execution output of a prior block, keyed both by its
// UUID (doc.blocks_above[<id>]) and, if named, by its human name
// (doc.above.<name>).
type NamedOutput struct {
	BlockID string
	Name    string // "" if the block has no output-facing name
	Output  blockcontext.ExecutionOutput
}

// Resolver holds the accumulated fold state for a prefix of blocks.
type Resolver struct {
	vars       map[string]string
	varSources map[string]string
	env        map[string]string
	cwd        string
	sshHost    string
	sshHostSet bool
	extras     map[string]map[string]string

	// byBlockID / byName hold the *rendered* ExecutionOutput of every block
	// processed so far, for the doc.blocks_above / doc.above namespaces.
	byBlockID map[string]blockcontext.ExecutionOutput
	byName    map[string]blockcontext.ExecutionOutput
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{
		vars:       map[string]string{},
		varSources: map[string]string{},
		env:        map[string]string{},
		extras:     map[string]map[string]string{},
		byBlockID:  map[string]blockcontext.ExecutionOutput{},
		byName:     map[string]blockcontext.ExecutionOutput{},
	}
}

// FromParent returns a new Resolver that inherits every field from parent by
// value copy. Used when building a sub-runbook's resolver.
func FromParent(parent *Resolver) *Resolver {
	r := New()
	if parent == nil {
		return r
	}
	for k, v := range parent.vars {
		r.vars[k] = v
	}
	for k, v := range parent.varSources {
		r.varSources[k] = v
	}
	for k, v := range parent.env {
		r.env[k] = v
	}
	r.cwd = parent.cwd
	r.sshHost = parent.sshHost
	r.sshHostSet = parent.sshHostSet
	for ns, vals := range parent.extras {
		cp := make(map[string]string, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		r.extras[ns] = cp
	}
	for k, v := range parent.byBlockID {
		r.byBlockID[k] = v
	}
	for k, v := range parent.byName {
		r.byName[k] = v
	}
	return r
}

// Clone returns an independent copy of r (used by GetResolvedContext
// snapshots and between rebuild steps so mutation of the running fold never
// aliases a previously-sent snapshot).
func (r *Resolver) Clone() *Resolver {
	return FromParent(r)
}

// SetExtraNamespace installs a caller-provided namespace (e.g.
// "workspace" -> {"root": "/srv/app"}, "runbook" -> {"id": "..."}).
func (r *Resolver) SetExtraNamespace(namespace string, values map[string]string) {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.extras[namespace] = cp
}

// Cwd returns the current working directory, defaulting to "" (caller
// decides the actual default, e.g. the process cwd).
func (r *Resolver) Cwd() string { return r.cwd }

// SSHHost returns the current SSH host and whether one is set.
func (r *Resolver) SSHHost() (string, bool) { return r.sshHost, r.sshHostSet }

// Vars returns a snapshot copy of the accumulated variables.
func (r *Resolver) Vars() map[string]string {
	return cloneMap(r.vars)
}

// VarSources returns a snapshot copy of each variable's producing block id.
func (r *Resolver) VarSources() map[string]string {
	return cloneMap(r.varSources)
}

// EnvVars returns a snapshot copy of the accumulated environment.
func (r *Resolver) EnvVars() map[string]string {
	return cloneMap(r.env)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BlockWithContext is the minimal view push_block needs: a block's id,
// optional name, and its passive+active context bags.
type BlockWithContext struct {
	ID      string
	Name    string // "" if unnamed
	Passive *blockcontext.Context
	Active  *blockcontext.Context
}

// PushBlock folds one block's passive then active context into the
// resolver. Active wins over passive on conflicts within
// this one block; across blocks, later always wins because each call mutates
// the running state in place.
func (r *Resolver) PushBlock(b BlockWithContext) error {
	for _, layer := range []*blockcontext.Context{b.Passive, b.Active} {
		if layer == nil {
			continue
		}
		if err := r.applyLayer(b.ID, layer); err != nil {
			return err
		}
	}

	// Expose this block's execution output (if any) under doc.blocks_above
	// and doc.above, using whichever layer's output is most authoritative —
	// active supersedes passive, matching the "active wins" tie-break.
	var eo blockcontext.ExecutionOutput
	var haveOutput bool
	if b.Passive != nil {
		if v, present := b.Passive.ExecutionOutput(); present {
			eo, haveOutput = v, true
		}
	}
	if b.Active != nil {
		if v, present := b.Active.ExecutionOutput(); present {
			eo, haveOutput = v, true
		}
	}
	if haveOutput {
		r.byBlockID[b.ID] = eo
		if b.Name != "" {
			r.byName[b.Name] = eo
		}
	}
	return nil
}

// applyLayer renders and applies one context layer's items to the running
// fold: vars, then env vars, then cwd, then ssh host, then execution
// output.
func (r *Resolver) applyLayer(blockID string, layer *blockcontext.Context) error {
	// 1. Var/Vars: render value against current resolver, then insert.
	for _, v := range layer.Vars().Items {
		rendered, err := r.ResolveTemplate(v.Value)
		if err != nil {
			return err
		}
		r.vars[v.Name] = rendered
		source := v.Source
		if source == "" {
			source = blockID
		}
		r.varSources[v.Name] = source
	}

	// 2. EnvVar: same treatment.
	for _, e := range layer.EnvVars().Items {
		rendered, err := r.ResolveTemplate(e.Value)
		if err != nil {
			return err
		}
		r.env[e.Name] = rendered
	}

	// 3. Cwd replaces entirely.
	if cwd, ok := layer.Cwd(); ok {
		r.cwd = string(cwd)
	}

	// 4. SshHost replaces entirely.
	if host, ok := layer.SSHHost(); ok {
		r.sshHost = host.Host
		r.sshHostSet = host.Set
	}

	return nil
}

// GetTemplateValue implements template.Environment: it resolves a dotted
// key path against var.*, env.*, doc.named.<name>.output(.*),
// doc.blocks_above[<id>](.*), doc.above.<name>(.*), and every extra
// namespace installed via SetExtraNamespace.
func (r *Resolver) GetTemplateValue(key string) (string, bool) {
	return lookup(key, r.vars, r.env, r.byBlockID, r.byName, r.extras)
}

// ResolveTemplate renders s against the resolver's current state plus all
// extras. Failures propagate as *template.Error.
func (r *Resolver) ResolveTemplate(s string) (string, error) {
	if !template.HasPlaceholder(s) {
		return s, nil
	}
	return template.Render(s, r)
}

// Snapshot materializes the resolver's state as a ResolvedContext — the
// immutable value handed to a handler for one block execution.
func (r *Resolver) Snapshot() ResolvedContext {
	extras := make(map[string]map[string]string, len(r.extras))
	for ns, vals := range r.extras {
		extras[ns] = cloneMap(vals)
	}
	var sshHost *string
	if r.sshHostSet {
		h := r.sshHost
		sshHost = &h
	}
	return ResolvedContext{
		Variables:       r.Vars(),
		VariableSources: r.VarSources(),
		EnvVars:         r.EnvVars(),
		Cwd:             r.cwd,
		SSHHost:         sshHost,
		ExtraNamespaces: extras,
	}
}

// ResolvedContext is the immutable snapshot passed to handlers and returned
// by GetResolvedContext.
type ResolvedContext struct {
	Variables       map[string]string            `json:"variables"`
	VariableSources map[string]string            `json:"variable_sources"`
	EnvVars         map[string]string            `json:"env_vars"`
	Cwd             string                        `json:"cwd"`
	SSHHost         *string                       `json:"ssh_host,omitempty"`
	ExtraNamespaces map[string]map[string]string `json:"extra_namespaces"`
}

// SortedVariableNames returns variable names in sorted order, used by
// anything that needs deterministic iteration.
func (rc ResolvedContext) SortedVariableNames() []string {
	names := make([]string, 0, len(rc.Variables))
	for k := range rc.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
