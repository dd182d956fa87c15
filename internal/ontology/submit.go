package ontology

import (
	"context"
	"time"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// Candidate is the governance input for a definition submitted through
// a tool (e.g. a graph write that proposes a new property), as opposed
// to one hand-authored and already carrying a Status. Gate decides
// whether it lands Published, Proposed, or Rejected.
type Candidate struct {
	Confidence float64
	Complexity int
	Depth      int
	Provenance string
}

func (rt *Runtime) gate(c Candidate) Governance {
	now := time.Now().UTC()
	return Governance{
		Confidence: c.Confidence,
		Complexity: c.Complexity,
		Depth:      c.Depth,
		Status:     rt.governance.Gate(c.Confidence, c.Complexity, c.Depth),
		Version:    1,
		Provenance: c.Provenance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SubmitEntity gates cand through the configured governance thresholds,
// persists the resulting definition through the repository, and
// reloads the scope's catalog so the write is immediately visible to
// subsequent reads. Rejected definitions are still persisted (for
// audit) but callers should treat a Rejected result as "not usable yet".
func (rt *Runtime) SubmitEntity(ctx context.Context, s scope.Scope, def EntityDef, cand Candidate) (EntityDef, error) {
	def.Governance = rt.gate(cand)
	if err := rt.repo.UpsertEntity(ctx, s, def); err != nil {
		return EntityDef{}, apierr.Wrap(apierr.KindUpstreamError, "failed to persist entity", err)
	}
	if err := rt.Load(ctx, s); err != nil {
		return EntityDef{}, err
	}
	return def, nil
}

// SubmitProperty gates and persists a property definition, as SubmitEntity does.
func (rt *Runtime) SubmitProperty(ctx context.Context, s scope.Scope, def PropertyDef, cand Candidate) (PropertyDef, error) {
	def.Governance = rt.gate(cand)
	if err := rt.repo.UpsertProperty(ctx, s, def); err != nil {
		return PropertyDef{}, apierr.Wrap(apierr.KindUpstreamError, "failed to persist property", err)
	}
	if err := rt.Load(ctx, s); err != nil {
		return PropertyDef{}, err
	}
	return def, nil
}

// SubmitRelation gates and persists a relation definition, as SubmitEntity does.
func (rt *Runtime) SubmitRelation(ctx context.Context, s scope.Scope, def RelationDef, cand Candidate) (RelationDef, error) {
	def.Governance = rt.gate(cand)
	if err := rt.repo.UpsertRelation(ctx, s, def); err != nil {
		return RelationDef{}, apierr.Wrap(apierr.KindUpstreamError, "failed to persist relation", err)
	}
	if err := rt.Load(ctx, s); err != nil {
		return RelationDef{}, err
	}
	return def, nil
}
