package ontology

import "context"

import "github.com/limbodancer-labs/limbodancer-mcp/internal/scope"

// Repository is the narrow, scoped, per-kind persistence contract the
// ontology runtime loads from. It is an external collaborator: this
// package only ever talks to it through this interface, never assuming
// a particular backing store.
type Repository interface {
	ListEntities(ctx context.Context, s scope.Scope) ([]EntityDef, error)
	ListProperties(ctx context.Context, s scope.Scope) ([]PropertyDef, error)
	ListRelations(ctx context.Context, s scope.Scope) ([]RelationDef, error)
	ListEnums(ctx context.Context, s scope.Scope) ([]EnumDef, error)
	ListAliases(ctx context.Context, s scope.Scope) ([]AliasDef, error)
	ListShapes(ctx context.Context, s scope.Scope) ([]ShapeDef, error)

	UpsertEntity(ctx context.Context, s scope.Scope, def EntityDef) error
	UpsertProperty(ctx context.Context, s scope.Scope, def PropertyDef) error
	UpsertRelation(ctx context.Context, s scope.Scope, def RelationDef) error
	UpsertEnum(ctx context.Context, s scope.Scope, def EnumDef) error
	UpsertAlias(ctx context.Context, s scope.Scope, def AliasDef) error
	UpsertShape(ctx context.Context, s scope.Scope, def ShapeDef) error

	DeleteEntity(ctx context.Context, s scope.Scope, localName string) error
}
