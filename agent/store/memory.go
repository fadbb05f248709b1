package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/natpat/caz/agent/contract"
)

// Memory is an in-process Store for tests and local runs. All reads return
// copies; mutating a returned value never touches stored state.
type Memory struct {
	mu sync.Mutex

	sessions map[string]*contract.Session
	messages map[string][]contract.Message
	tools    map[string][]contract.ToolCall
	actions  map[string][]contract.Action
	contexts map[string]*contract.SessionContext
	tickets  map[string]*contract.ImportedTicket

	seq int
}

var _ contract.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*contract.Session),
		messages: make(map[string][]contract.Message),
		tools:    make(map[string][]contract.ToolCall),
		actions:  make(map[string][]contract.Action),
		contexts: make(map[string]*contract.SessionContext),
		tickets:  make(map[string]*contract.ImportedTicket),
	}
}

// nextTime returns strictly increasing timestamps so insertion order is
// stable even when the wall clock does not advance between calls.
func (m *Memory) nextTime() time.Time {
	m.seq++
	return time.Now().Add(time.Duration(m.seq) * time.Microsecond)
}

func (m *Memory) CreateSession(ctx context.Context, s *contract.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("%w: duplicate session %s", contract.ErrPersistence, s.ID)
	}
	now := m.nextTime()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	stored := *s
	m.sessions[s.ID] = &stored
	m.contexts[s.ID] = &contract.SessionContext{
		SessionID:         s.ID,
		PromisesMade:      []string{},
		ConversationState: map[string]any{},
		UpdatedAt:         now,
	}
	return nil
}

func (m *Memory) Session(ctx context.Context, id string) (*contract.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrSessionNotFound, id)
	}
	copied := *s
	return &copied, nil
}

func (m *Memory) Sessions(ctx context.Context) ([]contract.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contract.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateSessionCategory(ctx context.Context, id string, category contract.WorkflowCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", contract.ErrSessionNotFound, id)
	}
	s.WorkflowCategory = category
	s.UpdatedAt = m.nextTime()
	return nil
}

func (m *Memory) EscalateSession(ctx context.Context, id string, summary contract.EscalationSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", contract.ErrSessionNotFound, id)
	}
	stored := summary
	s.IsEscalated = true
	s.EscalationReason = summary.Reason
	s.EscalationSummary = &stored
	s.UpdatedAt = m.nextTime()
	return nil
}

func (m *Memory) ClearSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*contract.Session)
	m.messages = make(map[string][]contract.Message)
	m.tools = make(map[string][]contract.ToolCall)
	m.actions = make(map[string][]contract.Action)
	m.contexts = make(map[string]*contract.SessionContext)
	// Imported tickets survive a session wipe.
	return nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *contract.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("%w: %s", contract.ErrSessionNotFound, msg.SessionID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.nextTime()
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	return nil
}

func (m *Memory) Messages(ctx context.Context, sessionID string) ([]contract.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contract.Message, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}

func (m *Memory) RecordToolCall(ctx context.Context, tc *contract.ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = m.nextTime()
	}
	m.tools[tc.SessionID] = append(m.tools[tc.SessionID], *tc)
	return nil
}

func (m *Memory) ToolCalls(ctx context.Context, sessionID string) ([]contract.ToolCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contract.ToolCall, len(m.tools[sessionID]))
	copy(out, m.tools[sessionID])
	return out, nil
}

func (m *Memory) RecordAction(ctx context.Context, a *contract.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.nextTime()
	}
	m.actions[a.SessionID] = append(m.actions[a.SessionID], *a)
	return nil
}

func (m *Memory) Actions(ctx context.Context, sessionID string) ([]contract.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contract.Action, len(m.actions[sessionID]))
	copy(out, m.actions[sessionID])
	return out, nil
}

func (m *Memory) Context(ctx context.Context, sessionID string) (*contract.SessionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: context for %s", contract.ErrSessionNotFound, sessionID)
	}

	copied := *c
	copied.PromisesMade = append([]string(nil), c.PromisesMade...)
	copied.ConversationState = make(map[string]any, len(c.ConversationState))
	for k, v := range c.ConversationState {
		copied.ConversationState[k] = v
	}
	if c.OrderData != nil {
		order := *c.OrderData
		copied.OrderData = &order
	}
	if c.SubscriptionData != nil {
		sub := *c.SubscriptionData
		copied.SubscriptionData = &sub
	}
	return &copied, nil
}

func (m *Memory) MergeContextState(ctx context.Context, sessionID string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[sessionID]
	if !ok {
		return fmt.Errorf("%w: context for %s", contract.ErrSessionNotFound, sessionID)
	}
	for k, v := range state {
		c.ConversationState[k] = v
	}
	c.UpdatedAt = m.nextTime()
	return nil
}

func (m *Memory) AppendPromises(ctx context.Context, sessionID string, promises ...string) error {
	if len(promises) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[sessionID]
	if !ok {
		return fmt.Errorf("%w: context for %s", contract.ErrSessionNotFound, sessionID)
	}
	c.PromisesMade = append(c.PromisesMade, promises...)
	c.UpdatedAt = m.nextTime()
	return nil
}

func (m *Memory) ImportTicket(ctx context.Context, t *contract.ImportedTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tickets[t.ConversationID]; exists {
		return fmt.Errorf("%w: duplicate conversation %s", contract.ErrPersistence, t.ConversationID)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ImportedAt.IsZero() {
		t.ImportedAt = m.nextTime()
	}
	stored := *t
	m.tickets[t.ConversationID] = &stored
	return nil
}

func (m *Memory) ImportedTicketByConversation(ctx context.Context, conversationID string) (*contract.ImportedTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrTicketNotFound, conversationID)
	}
	copied := *t
	return &copied, nil
}

func (m *Memory) ImportedTickets(ctx context.Context) ([]contract.ImportedTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contract.ImportedTicket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ImportedAt.Before(out[j].ImportedAt)
	})
	return out, nil
}
