package blockcontext

import (
	"encoding/json"
	"fmt"
)

// Context is the typed heterogeneous bag held by each block (one for the
// passive layer, one for the active layer). It holds at most one value per
// Tag; Insert replaces whatever was there.
type Context struct {
	items map[Tag]any
}

// New returns an empty Context.
func New() *Context {
	return &Context{items: make(map[Tag]any)}
}

// Insert stores value under tag, replacing any existing entry.
func (c *Context) Insert(tag Tag, value any) {
	if c.items == nil {
		c.items = make(map[Tag]any)
	}
	c.items[tag] = value
}

// Get returns the value stored under tag and whether it is present.
func (c *Context) Get(tag Tag) (any, bool) {
	if c.items == nil {
		return nil, false
	}
	v, ok := c.items[tag]
	return v, ok
}

// Vars returns the Vars item, or a zero value if absent.
func (c *Context) Vars() Vars {
	if v, ok := c.Get(TagVars); ok {
		return v.(Vars)
	}
	return Vars{}
}

// EnvVars returns the EnvVars item, or a zero value if absent.
func (c *Context) EnvVars() EnvVars {
	if v, ok := c.Get(TagEnvVars); ok {
		return v.(EnvVars)
	}
	return EnvVars{}
}

// Cwd returns the Cwd item and whether it is set.
func (c *Context) Cwd() (Cwd, bool) {
	if v, ok := c.Get(TagCwd); ok {
		return v.(Cwd), true
	}
	return "", false
}

// SSHHost returns the SSHHost item and whether it is set.
func (c *Context) SSHHost() (SSHHost, bool) {
	if v, ok := c.Get(TagSSHHost); ok {
		return v.(SSHHost), true
	}
	return SSHHost{}, false
}

// ExecutionOutput returns the ExecutionOutput item and whether it is set.
func (c *Context) ExecutionOutput() (ExecutionOutput, bool) {
	if v, ok := c.Get(TagExecutionOutput); ok {
		return v.(ExecutionOutput), true
	}
	return ExecutionOutput{}, false
}

// BlockState returns the BlockState item and whether it is set.
func (c *Context) BlockState() (BlockState, bool) {
	if v, ok := c.Get(TagBlockState); ok {
		return v.(BlockState), true
	}
	return BlockState{}, false
}

// IsEmpty reports whether the bag has no items.
func (c *Context) IsEmpty() bool {
	return len(c.items) == 0
}

// Clone returns a deep-enough copy for the resolver's fold: list-typed items
// get their own backing slice so later mutation of one layer never leaks
// into another.
func (c *Context) Clone() *Context {
	out := New()
	for tag, v := range c.items {
		switch val := v.(type) {
		case Vars:
			items := make([]Var, len(val.Items))
			copy(items, val.Items)
			out.items[tag] = Vars{Items: items}
		case EnvVars:
			items := make([]EnvVar, len(val.Items))
			copy(items, val.Items)
			out.items[tag] = EnvVars{Items: items}
		default:
			out.items[tag] = v
		}
	}
	return out
}

// Merge folds other into c: for each tag, other wins. Vars and EnvVars are
// concatenated with last-wins semantics per Name rather than wholesale
// replacement — every other tag is replaced outright.
func (c *Context) Merge(other *Context) {
	if other == nil {
		return
	}
	for tag, v := range other.items {
		switch tag {
		case TagVars:
			vs := c.Vars()
			for _, item := range v.(Vars).Items {
				vs.Upsert(item)
			}
			c.Insert(TagVars, vs)
		case TagEnvVars:
			es := c.EnvVars()
			for _, item := range v.(EnvVars).Items {
				es.Upsert(item)
			}
			c.Insert(TagEnvVars, es)
		default:
			c.Insert(tag, v)
		}
	}
}

// wireFormat is the on-disk/wire representation: a tag plus its raw JSON
// payload, so a registry can reconstruct the correctly-typed Go value.
type wireFormat struct {
	Tag     Tag             `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON serializes every item via the package-level registry so a
// round trip preserves concrete types.
func (c *Context) MarshalJSON() ([]byte, error) {
	out := make([]wireFormat, 0, len(c.items))
	for tag, v := range c.items {
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("blockcontext: marshal %s: %w", tag, err)
		}
		out = append(out, wireFormat{Tag: tag, Payload: payload})
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs a Context using the registry to resolve each
// tag's concrete Go type.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw []wireFormat
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("blockcontext: unmarshal envelope: %w", err)
	}
	c.items = make(map[Tag]any, len(raw))
	for _, item := range raw {
		factory, ok := registry[item.Tag]
		if !ok {
			return fmt.Errorf("blockcontext: unregistered tag %q", item.Tag)
		}
		value, err := factory(item.Payload)
		if err != nil {
			return fmt.Errorf("blockcontext: unmarshal %s: %w", item.Tag, err)
		}
		c.items[item.Tag] = value
	}
	return nil
}

// factory decodes a tag's raw JSON payload into its typed Go value.
type factory func(json.RawMessage) (any, error)

var registry = map[Tag]factory{}

// RegisterContextItem registers a Tag's JSON decoding factory. Called at
// package init for every canonical item; front-end extension namespaces
// registering their own tags must call this before any Context is
// deserialized.
func RegisterContextItem[T any](tag Tag) {
	registry[tag] = func(raw json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func init() {
	RegisterContextItem[Vars](TagVars)
	RegisterContextItem[EnvVars](TagEnvVars)
	RegisterContextItem[Cwd](TagCwd)
	RegisterContextItem[SSHHost](TagSSHHost)
	RegisterContextItem[ExecutionOutput](TagExecutionOutput)
	RegisterContextItem[BlockState](TagBlockState)
}
