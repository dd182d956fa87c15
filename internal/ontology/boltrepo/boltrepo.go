// Package boltrepo is the reference implementation of
// ontology.Repository, persisting definitions to a local bbolt database
// file: one bucket per definition kind, keyed by scope and local name,
// values JSON-encoded.
package boltrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

const (
	bucketEntities   = "entities"
	bucketProperties = "properties"
	bucketRelations  = "relations"
	bucketEnums      = "enums"
	bucketAliases    = "aliases"
	bucketShapes     = "shapes"
)

var allBuckets = []string{
	bucketEntities, bucketProperties, bucketRelations, bucketEnums, bucketAliases, bucketShapes,
}

// Store is a bbolt-backed ontology.Repository.
type Store struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if absent) a bbolt database at path and ensures
// every definition-kind bucket exists.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ontology db %s: %w", path, err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func scopePrefix(sc scope.Scope) []byte {
	return []byte(sc.String() + "\x00")
}

func entityKey(sc scope.Scope, localName string) []byte {
	return append(scopePrefix(sc), []byte(localName)...)
}

func propertyKey(sc scope.Scope, owner, localName string) []byte {
	return append(scopePrefix(sc), []byte(owner+"."+localName)...)
}

func listScoped[T any](db *bbolt.DB, bucket string, sc scope.Scope) ([]T, error) {
	prefix := scopePrefix(sc)
	var out []T
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s missing", bucket)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var def T
			if err := json.Unmarshal(v, &def); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
			out = append(out, def)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func put(db *bbolt.DB, bucket string, key []byte, def any) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucket, err)
	}
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s missing", bucket)
		}
		return b.Put(key, data)
	})
}

func (s *Store) ListEntities(_ context.Context, sc scope.Scope) ([]ontology.EntityDef, error) {
	defs, err := listScoped[ontology.EntityDef](s.db, bucketEntities, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list entities", err)
	}
	return sortedEntities(defs), nil
}

func (s *Store) ListProperties(_ context.Context, sc scope.Scope) ([]ontology.PropertyDef, error) {
	defs, err := listScoped[ontology.PropertyDef](s.db, bucketProperties, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list properties", err)
	}
	return defs, nil
}

func (s *Store) ListRelations(_ context.Context, sc scope.Scope) ([]ontology.RelationDef, error) {
	defs, err := listScoped[ontology.RelationDef](s.db, bucketRelations, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list relations", err)
	}
	return defs, nil
}

func (s *Store) ListEnums(_ context.Context, sc scope.Scope) ([]ontology.EnumDef, error) {
	defs, err := listScoped[ontology.EnumDef](s.db, bucketEnums, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list enums", err)
	}
	return defs, nil
}

func (s *Store) ListAliases(_ context.Context, sc scope.Scope) ([]ontology.AliasDef, error) {
	defs, err := listScoped[ontology.AliasDef](s.db, bucketAliases, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list aliases", err)
	}
	return defs, nil
}

func (s *Store) ListShapes(_ context.Context, sc scope.Scope) ([]ontology.ShapeDef, error) {
	defs, err := listScoped[ontology.ShapeDef](s.db, bucketShapes, sc)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "list shapes", err)
	}
	return defs, nil
}

func (s *Store) UpsertEntity(_ context.Context, sc scope.Scope, def ontology.EntityDef) error {
	if err := put(s.db, bucketEntities, entityKey(sc, def.LocalName), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert entity", err)
	}
	return nil
}

func (s *Store) UpsertProperty(_ context.Context, sc scope.Scope, def ontology.PropertyDef) error {
	if err := put(s.db, bucketProperties, propertyKey(sc, def.Owner, def.LocalName), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert property", err)
	}
	return nil
}

func (s *Store) UpsertRelation(_ context.Context, sc scope.Scope, def ontology.RelationDef) error {
	if err := put(s.db, bucketRelations, entityKey(sc, def.LocalName), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert relation", err)
	}
	return nil
}

func (s *Store) UpsertEnum(_ context.Context, sc scope.Scope, def ontology.EnumDef) error {
	if err := put(s.db, bucketEnums, entityKey(sc, def.LocalName), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert enum", err)
	}
	return nil
}

func (s *Store) UpsertAlias(_ context.Context, sc scope.Scope, def ontology.AliasDef) error {
	if err := put(s.db, bucketAliases, entityKey(sc, def.Canonical), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert alias", err)
	}
	return nil
}

func (s *Store) UpsertShape(_ context.Context, sc scope.Scope, def ontology.ShapeDef) error {
	if err := put(s.db, bucketShapes, entityKey(sc, def.AppliesToEntity), def); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "upsert shape", err)
	}
	return nil
}

func (s *Store) DeleteEntity(_ context.Context, sc scope.Scope, localName string) error {
	key := entityKey(sc, localName)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketEntities))
		if b == nil {
			return fmt.Errorf("bucket %s missing", bucketEntities)
		}
		return b.Delete(key)
	})
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "delete entity", err)
	}
	return nil
}

func sortedEntities(defs []ontology.EntityDef) []ontology.EntityDef {
	sort.Slice(defs, func(i, j int) bool { return defs[i].LocalName < defs[j].LocalName })
	return defs
}
