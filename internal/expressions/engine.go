// Package expressions evaluates user supplied queries over flow records: jq for
// reshaping status payloads, expr for list filters, CEL for typed predicates.
package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/unitconsole/pkg/schema"
)

// Engine evaluates one expression language.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// RecordFields are the top-level names a flow record exposes to filter expressions.
var RecordFields = []string{
	"instanceId",
	"name",
	"status",
	"telemetry",
	"unitId",
	"createdTime",
	"lastUpdatedTime",
	"customStatus",
	"input",
	"output",
}

// Registry routes an expression to an engine by its "jq:", "cel:" or "expr:"
// prefix. Unprefixed expressions use the default engine.
type Registry struct {
	engines  map[string]Engine
	fallback Engine
}

// NewRegistry builds a registry with all three engines; expr is the default.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprEngine := NewExprEngine()
	return NewRegistryWith(exprEngine, NewGoJQEngine(), exprEngine, celEngine), nil
}

// NewRegistryWith builds a registry from explicit engines.
func NewRegistryWith(fallback Engine, engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines)), fallback: fallback}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	return r
}

// Engine returns the engine registered under name.
func (r *Registry) Engine(name string) (Engine, bool) {
	e, ok := r.engines[name]
	return e, ok
}

// Resolve splits expression into its engine and body.
func (r *Registry) Resolve(expression string) (Engine, string, error) {
	expression = strings.TrimSpace(expression)
	if name, body, ok := strings.Cut(expression, ":"); ok {
		if e, found := r.engines[strings.TrimSpace(name)]; found {
			return e, strings.TrimSpace(body), nil
		}
	}
	if r.fallback == nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeValidation, "no engine for expression %q", expression)
	}
	return r.fallback, expression, nil
}

// Evaluate runs expression on data with the engine its prefix selects.
func (r *Registry) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	e, body, err := r.Resolve(expression)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, body, data)
}

// Match evaluates expression as a predicate. Booleans are used as is; a jq or
// expr result that is null or false does not match; anything else does.
func (r *Registry) Match(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := r.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case []any:
		for _, item := range v {
			if b, ok := item.(bool); ok && !b || item == nil {
				return false, nil
			}
		}
		return len(v) > 0, nil
	default:
		return true, nil
	}
}

// String returns the engines a registry knows, for help text.
func (r *Registry) String() string {
	names := make([]string, 0, len(r.engines))
	for _, n := range []string{"expr", "jq", "cel"} {
		if _, ok := r.engines[n]; ok {
			names = append(names, n)
		}
	}
	def := ""
	if r.fallback != nil {
		def = r.fallback.Name()
	}
	return fmt.Sprintf("engines=%s default=%s", strings.Join(names, ","), def)
}
