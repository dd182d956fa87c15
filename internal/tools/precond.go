package tools

import (
	"context"
	"fmt"
	"reflect"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// Precondition is one typed constraint on a subject vertex, expressed in
// ontology terms (CURIE, absolute IRI, or local name).
type Precondition struct {
	Predicate string `json:"predicate"`
	Op        string `json:"op"` // eq, neq, exists, not_exists
	Expected  any    `json:"expected,omitempty"`
}

// Violation explains one failed precondition.
type Violation struct {
	Predicate string `json:"predicate"`
	Reason    string `json:"reason"`
}

// PreconditionResult is the structured outcome of evaluation.
type PreconditionResult struct {
	IsSatisfied bool        `json:"isSatisfied"`
	Violations  []Violation `json:"violations"`
}

// EffectMode selects how an effect mutates the graph.
type EffectMode string

const (
	EffectSet EffectMode = "set"
)

// Effect is one typed mutation: a property upsert or a directed edge
// upsert, in ontology terms.
type Effect struct {
	Predicate  string     `json:"predicate,omitempty"`
	Value      any        `json:"value,omitempty"`
	EdgeTarget string     `json:"edgeTarget,omitempty"`
	EdgeLabel  string     `json:"edgeLabel,omitempty"`
	Mode       EffectMode `json:"mode,omitempty"`
}

// EvaluatePreconditions resolves each predicate through the mapper and
// evaluates it against the subject vertex. Unmapped predicates fail
// closed. A missing subject fails every precondition with
// subject-missing.
func (h *GraphHandlers) EvaluatePreconditions(ctx context.Context, sc scope.Scope, ontologyClass, subjectID string, preconditions []Precondition) (PreconditionResult, error) {
	vertex, found, err := h.store.GetVertex(ctx, sc.TenantID, subjectID)
	if err != nil {
		return PreconditionResult{}, apierr.Wrap(apierr.KindUpstreamError, "graph vertex read failed", err)
	}
	if !found {
		violations := make([]Violation, 0, len(preconditions))
		for _, p := range preconditions {
			violations = append(violations, Violation{Predicate: p.Predicate, Reason: "subject-missing"})
		}
		return PreconditionResult{IsSatisfied: false, Violations: violations}, nil
	}

	var violations []Violation
	for _, p := range preconditions {
		key, ok := h.mapper.Resolve(sc, ontologyClass, p.Predicate)
		if !ok {
			// Fail closed: an unmappable precondition can never hold.
			h.warn(fmt.Sprintf("precondition predicate %q is not mapped in the ontology", p.Predicate))
			violations = append(violations, Violation{Predicate: p.Predicate, Reason: "unmapped-predicate"})
			continue
		}
		value, exists := vertex.Properties[key.LocalName]
		if reason, ok := evaluateOp(p.Op, value, exists, p.Expected); !ok {
			violations = append(violations, Violation{Predicate: p.Predicate, Reason: reason})
		}
	}

	if violations == nil {
		violations = []Violation{}
	}
	return PreconditionResult{IsSatisfied: len(violations) == 0, Violations: violations}, nil
}

func evaluateOp(op string, value any, exists bool, expected any) (string, bool) {
	switch op {
	case "exists":
		if !exists {
			return "property does not exist", false
		}
	case "not_exists":
		if exists {
			return "property exists", false
		}
	case "eq":
		if !exists {
			return "property does not exist", false
		}
		if !looselyEqual(value, expected) {
			return fmt.Sprintf("expected %v, found %v", expected, value), false
		}
	case "neq":
		if exists && looselyEqual(value, expected) {
			return fmt.Sprintf("value equals %v", expected), false
		}
	default:
		return fmt.Sprintf("unknown operator %q", op), false
	}
	return "", true
}

// looselyEqual compares values across JSON's number erasure: 2 == 2.0.
func looselyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CommitEffects applies effects in order. Property effects upsert the
// vertex property; edge effects upsert the directed edge. Effects on
// unmapped predicates are skipped with a warning. The first failure
// aborts the remainder and surfaces effect-failed; there is no
// automatic rollback.
func (h *GraphHandlers) CommitEffects(ctx context.Context, sc scope.Scope, ontologyClass, subjectID string, effects []Effect) error {
	for i, e := range effects {
		if e.EdgeTarget != "" {
			if err := h.store.UpsertEdge(ctx, sc.TenantID, subjectID, e.EdgeTarget, e.EdgeLabel); err != nil {
				return apierr.Wrap(apierr.KindEffectFailed,
					fmt.Sprintf("effect %d: edge %s upsert failed", i, e.EdgeLabel), err).
					WithDetails(map[string]any{"predicate": e.EdgeLabel, "index": i})
			}
			continue
		}

		key, ok := h.mapper.Resolve(sc, ontologyClass, e.Predicate)
		if !ok {
			h.warn(fmt.Sprintf("effect predicate %q is not mapped in the ontology, skipping", e.Predicate))
			continue
		}
		if err := h.store.UpsertVertexProperty(ctx, sc.TenantID, subjectID, key.LocalName, e.Value); err != nil {
			return apierr.Wrap(apierr.KindEffectFailed,
				fmt.Sprintf("effect %d: property %s upsert failed", i, key.LocalName), err).
				WithDetails(map[string]any{"predicate": e.Predicate, "index": i})
		}
	}
	return nil
}
