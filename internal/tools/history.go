package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

const (
	minLimit     = 1
	maxLimit     = 1000
	defaultLimit = 100
)

// clampLimit forces limit into [1,1000], defaulting when unset.
func clampLimit(limit int) int {
	if limit == 0 {
		return defaultLimit
	}
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// HistoryHandlers serves history_get and history_append.
type HistoryHandlers struct {
	store HistoryStore
}

// NewHistoryHandlers builds the handler set over store.
func NewHistoryHandlers(store HistoryStore) *HistoryHandlers {
	return &HistoryHandlers{store: store}
}

type historyGetResult struct {
	SessionID string          `json:"sessionId"`
	Messages  []StoredMessage `json:"messages"`
}

// Get implements history.get. Messages outside the caller's tenant are
// invisible: a session owned by another tenant comes back as an empty
// list, never as an error — isolation is silent from the caller's side.
func (h *HistoryHandlers) Get(ctx context.Context, args map[string]any) (any, error) {
	sc, ok := scope.FromContext(ctx)
	if !ok {
		return nil, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request")
	}

	sessionID, _ := args["sessionId"].(string)
	limit := clampLimit(intArg(args, "limit"))

	var before time.Time
	if raw, ok := args["before"].(string); ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, apierr.New(apierr.KindSchemaInvalid, "before must be an RFC 3339 timestamp")
		}
		before = t
	}

	messages, err := h.store.ListMessages(ctx, sc.TenantID, sessionID, limit, before)
	if err != nil {
		if apierr.As(err, apierr.KindNotFound) {
			return historyGetResult{SessionID: sessionID, Messages: []StoredMessage{}}, nil
		}
		return nil, apierr.Wrap(apierr.KindUpstreamError, "history store read failed", err)
	}
	if messages == nil {
		messages = []StoredMessage{}
	}
	return historyGetResult{SessionID: sessionID, Messages: messages}, nil
}

type historyAppendResult struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Append implements history.append. The session must exist and belong
// to the caller's tenant; otherwise not-found. Not retryable: the
// registration marks it so, since a blind retry could double-append.
func (h *HistoryHandlers) Append(ctx context.Context, args map[string]any) (any, error) {
	sc, ok := scope.FromContext(ctx)
	if !ok {
		return nil, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request")
	}

	sessionID, _ := args["sessionId"].(string)
	sender, _ := args["sender"].(string)
	text, _ := args["text"].(string)
	metadata, _ := args["metadata"].(map[string]any)

	exists, err := h.store.SessionExists(ctx, sc.TenantID, sessionID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "history store read failed", err)
	}
	if !exists {
		return nil, apierr.New(apierr.KindNotFound, "session not found")
	}

	msg, err := h.store.AppendMessage(ctx, sc.TenantID, StoredMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TenantID:  sc.TenantID,
		Sender:    sender,
		Text:      text,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "history store write failed", err)
	}

	return historyAppendResult{ID: msg.ID, SessionID: msg.SessionID, Timestamp: msg.Timestamp}, nil
}

// intArg reads an integer argument that JSON decoding may have produced
// as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
