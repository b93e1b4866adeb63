package agent

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
)

var (
	ErrToolNotAllowed = errors.New("tool is not available to this role")
)

// Tool is a capability the agent may call. Args is the JSON object produced by the model.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments object.
	Schema() Schema
	Call(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Schema is a JSON schema for an object of named properties.
type Schema struct {
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"schema"`
}

type funcTool struct {
	name        string
	description string
	schema      Schema
	fn          func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// NewTool wraps fn as a Tool.
func NewTool(name, description string, schema Schema, fn func(ctx context.Context, args json.RawMessage) (interface{}, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) Schema() Schema      { return t.schema }

func (t *funcTool) Call(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return t.fn(ctx, args)
}

// Registry holds every tool known to the server.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Toolset returns the tools of role. Every tool the role names must be registered.
func (r *Registry) Toolset(role Role) (*Toolset, error) {
	ts := &Toolset{allowed: make(map[string]Tool, len(role.Tools))}
	for _, name := range role.Tools {
		t, ok := r.tools[name]
		if !ok {
			return nil, errors.Errorf("role %s: unknown tool %q", role.Name, name)
		}
		if _, dup := ts.allowed[name]; dup {
			continue
		}
		ts.allowed[name] = t
		ts.order = append(ts.order, t)
	}
	return ts, nil
}

// Toolset is the scope of tools a role may call.
type Toolset struct {
	order   []Tool
	allowed map[string]Tool
}

func (ts *Toolset) Has(name string) bool {
	if ts == nil {
		return false
	}
	_, ok := ts.allowed[name]
	return ok
}

// Definitions returns the tool definitions in role order.
func (ts *Toolset) Definitions() []Definition {
	if ts == nil {
		return nil
	}
	defs := make([]Definition, 0, len(ts.order))
	for _, t := range ts.order {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return defs
}

// Call runs the named tool and returns its JSON encoded result.
// Tools outside the set are refused with ErrToolNotAllowed.
func (ts *Toolset) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if !ts.Has(name) {
		return nil, errors.Wrap(ErrToolNotAllowed, name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	out, err := ts.allowed[name].Call(ctx, args)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s result", name)
	}
	return data, nil
}

// ErrorResult renders err as the JSON payload returned to the model for a failed call.
func ErrorResult(err error) json.RawMessage {
	payload := map[string]interface{}{"error": err.Error()}
	if verr, ok := errors.Cause(err).(*core.ValidationError); ok && len(verr.Fields) > 0 {
		fields := make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			fields[f.Field] = f.Error
		}
		payload["fields"] = fields
	}
	data, _ := json.Marshal(payload)
	return data
}

// decodeArgs unmarshals the arguments object into v.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "arguments", Error: "invalid JSON object: " + err.Error()})
	}
	return nil
}
