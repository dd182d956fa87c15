// Package registry holds the immutable set of tools the server
// exposes, each with its JSON Schema, category, permissions, and
// resilience knobs. The set is fixed at startup and only ever read
// concurrently afterward.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

// Handler executes a tool call's business logic. args is the raw,
// already schema-validated JSON-decoded argument map; result must be
// JSON-marshalable. The tenant scope and correlation id travel on ctx
// (see internal/scope and internal/reqcontext).
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registration is a tool's immutable, startup-time declaration.
type Registration struct {
	Name        string
	Description string
	Category    string
	Permissions []string
	InputSchema map[string]any
	OutputShape map[string]any // optional, documentation only
	Retryable   bool
	Timeout     time.Duration
	Handler     Handler

	schema *gojsonschema.Schema
}

// Registry is the immutable, concurrency-safe set of registered tools.
// It is built once at startup via NewRegistry and never mutated after.
type Registry struct {
	tools map[string]*Registration
	names []string
}

// NewRegistry compiles every registration's JSON Schema and returns an
// immutable registry. A schema that fails to compile is a startup
// error, not a runtime one.
func NewRegistry(regs []Registration) (*Registry, error) {
	tools := make(map[string]*Registration, len(regs))
	names := make([]string, 0, len(regs))
	for i := range regs {
		r := regs[i]
		if r.Name == "" {
			return nil, fmt.Errorf("registry: tool at index %d has no name", i)
		}
		if _, exists := tools[r.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate tool name %q", r.Name)
		}
		if r.Handler == nil {
			return nil, fmt.Errorf("registry: tool %q has no handler", r.Name)
		}
		loader := gojsonschema.NewGoLoader(r.InputSchema)
		schema, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return nil, fmt.Errorf("registry: tool %q has invalid input schema: %w", r.Name, err)
		}
		r.schema = schema
		tools[r.Name] = &r
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return &Registry{tools: tools, names: names}, nil
}

// Get resolves a tool by name.
func (reg *Registry) Get(name string) (*Registration, bool) {
	r, ok := reg.tools[name]
	return r, ok
}

// List returns every registered tool name, sorted, for tools/list.
func (reg *Registry) List() []string {
	out := make([]string, len(reg.names))
	copy(out, reg.names)
	return out
}

// Registrations returns every registration, sorted by name.
func (reg *Registry) Registrations() []*Registration {
	out := make([]*Registration, 0, len(reg.names))
	for _, n := range reg.names {
		out = append(out, reg.tools[n])
	}
	return out
}

// ValidateArgs validates args against the tool's compiled input schema.
func (r *Registration) ValidateArgs(args map[string]any) error {
	loader := gojsonschema.NewGoLoader(args)
	result, err := r.schema.Validate(loader)
	if err != nil {
		return apierr.Wrap(apierr.KindSchemaInvalid, "schema validation failed", err)
	}
	if !result.Valid() {
		details := map[string]any{}
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		details["violations"] = msgs
		return apierr.New(apierr.KindSchemaInvalid, "arguments do not match input schema").WithDetails(details)
	}
	return nil
}

// HasPermission reports whether grantedPermissions satisfies the
// tool's required permission set.
func (r *Registration) HasPermission(grantedPermissions []string) bool {
	if len(r.Permissions) == 0 {
		return true
	}
	granted := make(map[string]struct{}, len(grantedPermissions))
	for _, p := range grantedPermissions {
		granted[p] = struct{}{}
	}
	for _, p := range r.Permissions {
		if _, ok := granted[p]; !ok {
			return false
		}
	}
	return true
}
