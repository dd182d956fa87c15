// Package historystore is the bbolt-backed reference adapter for the
// history store collaborator: tenant-scoped, transactional session and
// message persistence behind the narrow tools.HistoryStore interface.
package historystore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
)

const (
	sessionsBucket = "sessions"
	messagesBucket = "messages"
)

// Store wraps bolt database operations for chat history.
type Store struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// Open opens (or creates) the history database at path and ensures the
// schema buckets exist.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema buckets. Invoked by `db migrate` and on
// open; idempotent.
func (s *Store) Migrate(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{sessionsBucket, messagesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// sessionKey scopes every record by tenant first, so a scan for one
// tenant can never walk into another tenant's rows.
func sessionKey(tenantID, sessionID string) []byte {
	return []byte(tenantID + "::" + sessionID)
}

type sessionRecord struct {
	SessionID string    `json:"sessionId"`
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateSession registers a session for the tenant. Idempotent.
func (s *Store) CreateSession(_ context.Context, tenantID, sessionID string) error {
	rec := sessionRecord{SessionID: sessionID, TenantID: tenantID, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sessionsBucket))
		if existing := b.Get(sessionKey(tenantID, sessionID)); existing != nil {
			return nil
		}
		return b.Put(sessionKey(tenantID, sessionID), data)
	})
}

// SessionExists reports whether the session exists for this tenant.
// A session owned by another tenant is indistinguishable from a missing
// one.
func (s *Store) SessionExists(_ context.Context, tenantID, sessionID string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(sessionsBucket)).Get(sessionKey(tenantID, sessionID)) != nil
		return nil
	})
	return exists, err
}

// AppendMessage appends one message under a monotonically increasing
// per-session sequence number, which is what makes ListMessages
// ascending by insertion (and therefore by timestamp).
func (s *Store) AppendMessage(_ context.Context, tenantID string, msg tools.StoredMessage) (tools.StoredMessage, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(sessionsBucket)).Get(sessionKey(tenantID, msg.SessionID)) == nil {
			return apierr.New(apierr.KindNotFound, "session not found")
		}
		parent := tx.Bucket([]byte(messagesBucket))
		b, err := parent.CreateBucketIfNotExists(sessionKey(tenantID, msg.SessionID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return tools.StoredMessage{}, err
	}
	return msg, nil
}

// ListMessages returns up to limit messages for the tenant's session,
// ascending by timestamp. before, when non-zero, excludes messages at
// or after that instant. An unknown (or other-tenant) session returns
// not-found; the handler maps that to an empty list.
func (s *Store) ListMessages(_ context.Context, tenantID, sessionID string, limit int, before time.Time) ([]tools.StoredMessage, error) {
	var out []tools.StoredMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(sessionsBucket)).Get(sessionKey(tenantID, sessionID)) == nil {
			return apierr.New(apierr.KindNotFound, "session not found")
		}
		b := tx.Bucket([]byte(messagesBucket)).Bucket(sessionKey(tenantID, sessionID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var msg tools.StoredMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				s.logger.Warnw("skipping undecodable history record", "session", sessionID, "error", err)
				continue
			}
			if !before.IsZero() && !msg.Timestamp.Before(before) {
				continue
			}
			msg.TenantID = tenantID
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
