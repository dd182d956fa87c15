package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/reqcontext"
)

// Hooks receives orchestrator lifecycle signals for metrics; a nil-safe
// no-op implementation is used when none is supplied.
type Hooks interface {
	SessionOpened()
	SessionClosed()
	EventDropped(eventType string)
	EventEmitted(eventType string)
}

type noopHooks struct{}

func (noopHooks) SessionOpened()      {}
func (noopHooks) SessionClosed()      {}
func (noopHooks) EventDropped(string) {}
func (noopHooks) EventEmitted(string) {}

const tokenChunkSize = 8

// sessionKey keys sessions by (tenantId, sessionId) so cross-tenant
// access is impossible by construction.
type sessionKey struct {
	tenantID  string
	sessionID string
}

// Orchestrator owns all sessions. A single global lock guards session
// create/destroy; each session carries its own lock for everything else.
type Orchestrator struct {
	capacity  int
	heartbeat time.Duration
	logger    *zap.SugaredLogger
	hooks     Hooks
	now       func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	cancels  map[string]context.CancelFunc // correlationId -> producer cancel
}

// New builds an orchestrator with the given per-session channel capacity
// and subscriber heartbeat interval.
func New(capacity int, heartbeat time.Duration, logger *zap.SugaredLogger, hooks Hooks) *Orchestrator {
	if hooks == nil {
		hooks = noopHooks{}
	}
	if capacity < 1 {
		capacity = 256
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Orchestrator{
		capacity:  capacity,
		heartbeat: heartbeat,
		logger:    logger,
		hooks:     hooks,
		now:       time.Now,
		sessions:  make(map[sessionKey]*Session),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// CreateSession registers a new session for the tenant and returns it.
func (o *Orchestrator) CreateSession(tenantID, systemPrompt string) *Session {
	s := newSession(uuid.New().String(), tenantID, systemPrompt, o.now())
	o.mu.Lock()
	o.sessions[sessionKey{tenantID, s.ID}] = s
	o.mu.Unlock()
	o.hooks.SessionOpened()
	return s
}

// Session looks up a session by tenant and id.
func (o *Orchestrator) Session(tenantID, sessionID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionKey{tenantID, sessionID}]
	return s, ok
}

// DeleteSession removes a session and detaches its subscribers.
func (o *Orchestrator) DeleteSession(tenantID, sessionID string) bool {
	o.mu.Lock()
	s, ok := o.sessions[sessionKey{tenantID, sessionID}]
	delete(o.sessions, sessionKey{tenantID, sessionID})
	o.mu.Unlock()
	if !ok {
		return false
	}
	s.closeSubscribers()
	o.hooks.SessionClosed()
	return true
}

// Enqueue ingests a user message: the user message is appended to
// history before processing starts, then a producer task emits token
// events followed by exactly one terminal event for the returned
// correlation id. Multiple enqueues may process in parallel; each
// producer is sequential, which is what guarantees per-correlation
// ordering.
func (o *Orchestrator) Enqueue(ctx context.Context, tenantID, sessionID, content string) (string, error) {
	s, ok := o.Session(tenantID, sessionID)
	if !ok {
		return "", apierr.New(apierr.KindNotFound, "unknown session")
	}

	correlationID := reqcontext.NewCorrelationID()
	s.append(Message{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		TenantID:  tenantID,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: o.now(),
	})

	// The producer outlives the enqueue request: subscriber disconnect
	// or the caller's request ending must not cancel it. Only an
	// administrative Cancel does.
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancels[correlationID] = cancel
	o.mu.Unlock()

	go o.produce(pctx, s, correlationID, content)
	return correlationID, nil
}

// Cancel cooperatively cancels an in-flight correlation's producer. The
// producer still writes its terminal error event.
func (o *Orchestrator) Cancel(correlationID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[correlationID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// produce is the per-correlation message-processing task. Tokenization
// is the echo placeholder: the reply is "You said: <content>" split into
// fixed-size chunks. Real model integration replaces only this body;
// the event contract around it stays.
func (o *Orchestrator) produce(ctx context.Context, s *Session, correlationID, content string) {
	defer func() {
		o.mu.Lock()
		delete(o.cancels, correlationID)
		o.mu.Unlock()
	}()

	reply := "You said: " + content

	for i := 0; i < len(reply); i += tokenChunkSize {
		if err := ctx.Err(); err != nil {
			o.emit(s, ChatEvent{
				Type:          EventError,
				SessionID:     s.ID,
				CorrelationID: correlationID,
				ErrorCode:     string(apierr.KindCanceled),
				ErrorMessage:  "message processing canceled",
			})
			return
		}
		end := i + tokenChunkSize
		if end > len(reply) {
			end = len(reply)
		}
		o.emit(s, ChatEvent{
			Type:          EventToken,
			SessionID:     s.ID,
			Content:       reply[i:end],
			CorrelationID: correlationID,
		})
	}

	// Assistant message lands in history after the last token and
	// before the terminal event.
	s.append(Message{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		TenantID:  s.TenantID,
		Role:      RoleAssistant,
		Content:   reply,
		CreatedAt: o.now(),
	})

	o.emit(s, ChatEvent{
		Type:          EventMessageCompleted,
		SessionID:     s.ID,
		Content:       reply,
		CorrelationID: correlationID,
	})
}

func (o *Orchestrator) emit(s *Session, ev ChatEvent) {
	s.broadcast(ev)
	o.hooks.EventEmitted(string(ev.Type))
}

// Subscribe attaches a subscriber to a session's event stream and
// returns the receive channel. An unknown session yields an empty,
// already-closed stream. The subscription ends when ctx is canceled;
// disconnecting never cancels a producing task. While attached, the
// subscriber receives a ping at every heartbeat interval.
func (o *Orchestrator) Subscribe(ctx context.Context, tenantID, sessionID string) <-chan ChatEvent {
	out := make(chan ChatEvent)

	s, ok := o.Session(tenantID, sessionID)
	if !ok {
		close(out)
		return out
	}

	q := newEventQueue(o.capacity, func(dropped ChatEvent) {
		o.hooks.EventDropped(string(dropped.Type))
	})
	subID := s.addSubscriber(q)

	// Heartbeat task: pushes pings into this subscriber's queue only.
	hbCtx, hbCancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				q.push(ChatEvent{Type: EventPing, SessionID: s.ID})
			}
		}
	}()

	// Detach when the subscriber's context ends.
	go func() {
		<-ctx.Done()
		hbCancel()
		s.removeSubscriber(subID)
	}()

	// Pump the queue into the subscriber channel.
	go func() {
		defer close(out)
		for {
			ev, ok := q.pop()
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// SessionCount reports the number of live sessions, for readiness checks.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
