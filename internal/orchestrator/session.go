package orchestrator

import (
	"sync"
	"time"
)

// Role enumerates message senders.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is one history entry owned by a session. CreatedAt is
// monotone within a session.
type Message struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	TenantID      string    `json:"tenantId"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	ToolCallsJSON string    `json:"toolCallsJson,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Session owns its history list, its subscriber set, and its lock. The
// orchestrator owns the session map; nothing else touches this state.
type Session struct {
	ID           string
	TenantID     string
	CreatedAt    time.Time
	SystemPrompt string

	mu          sync.Mutex
	messages    []Message
	subscribers map[int]*eventQueue
	nextSub     int
	lastMsgAt   time.Time
}

func newSession(id, tenantID, systemPrompt string, now time.Time) *Session {
	return &Session{
		ID:           id,
		TenantID:     tenantID,
		CreatedAt:    now,
		SystemPrompt: systemPrompt,
		subscribers:  make(map[int]*eventQueue),
	}
}

// append adds a message, forcing CreatedAt monotonicity within the
// session even if the clock stalls.
func (s *Session) append(m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !m.CreatedAt.After(s.lastMsgAt) {
		m.CreatedAt = s.lastMsgAt.Add(time.Nanosecond)
	}
	s.lastMsgAt = m.CreatedAt
	s.messages = append(s.messages, m)
	return m
}

// Messages returns a copy of the history list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// broadcast delivers ev to every attached subscriber queue.
func (s *Session) broadcast(ev ChatEvent) {
	s.mu.Lock()
	queues := make([]*eventQueue, 0, len(s.subscribers))
	for _, q := range s.subscribers {
		queues = append(queues, q)
	}
	s.mu.Unlock()
	for _, q := range queues {
		q.push(ev)
	}
}

func (s *Session) addSubscriber(q *eventQueue) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = q
	return id
}

func (s *Session) removeSubscriber(id int) {
	s.mu.Lock()
	q, ok := s.subscribers[id]
	delete(s.subscribers, id)
	s.mu.Unlock()
	if ok {
		q.close()
	}
}

// closeSubscribers detaches every subscriber, used on session deletion.
func (s *Session) closeSubscribers() {
	s.mu.Lock()
	queues := s.subscribers
	s.subscribers = make(map[int]*eventQueue)
	s.mu.Unlock()
	for _, q := range queues {
		q.close()
	}
}
