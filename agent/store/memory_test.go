package store

import (
	"context"
	"errors"
	"testing"

	"github.com/natpat/caz/agent/contract"
)

func newSession(t *testing.T, m *Memory, email string) *contract.Session {
	t.Helper()
	s := &contract.Session{
		CustomerEmail:     email,
		CustomerFirstName: "Anna",
	}
	if err := m.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	if s.ID == "" {
		t.Fatalf("expected generated id")
	}

	loaded, err := m.Session(ctx, s.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.CustomerEmail != "anna@example.com" {
		t.Fatalf("unexpected email %q", loaded.CustomerEmail)
	}

	if _, err := m.Session(ctx, "missing"); !errors.Is(err, contract.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := m.UpdateSessionCategory(ctx, s.ID, contract.CategoryRefundRequest); err != nil {
		t.Fatalf("update category: %v", err)
	}
	loaded, _ = m.Session(ctx, s.ID)
	if loaded.WorkflowCategory != contract.CategoryRefundRequest {
		t.Fatalf("category not persisted: %q", loaded.WorkflowCategory)
	}
}

func TestSessionsMostRecentFirst(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	first := newSession(t, m, "a@example.com")
	second := newSession(t, m, "b@example.com")

	sessions, err := m.Sessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.ID || sessions[1].ID != first.ID {
		t.Fatalf("expected most recent first, got %s then %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestEscalateSessionIsSticky(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	summary := contract.EscalationSummary{
		Reason:            "legal threat",
		CustomerIssue:     "mentions lawyer",
		RecommendedAction: "call back",
		Priority:          contract.PriorityHigh,
	}
	if err := m.EscalateSession(ctx, s.ID, summary); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	loaded, _ := m.Session(ctx, s.ID)
	if !loaded.IsEscalated {
		t.Fatalf("expected escalated session")
	}
	if loaded.EscalationReason != "legal threat" {
		t.Fatalf("unexpected reason %q", loaded.EscalationReason)
	}
	if loaded.EscalationSummary == nil || loaded.EscalationSummary.Priority != contract.PriorityHigh {
		t.Fatalf("summary not stored: %+v", loaded.EscalationSummary)
	}
}

func TestMessagesAppendInOrder(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	for _, content := range []string{"first", "second", "third"} {
		msg := &contract.Message{SessionID: s.ID, Role: contract.RoleCustomer, Content: content}
		if err := m.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	messages, err := m.Messages(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "first" || messages[2].Content != "third" {
		t.Fatalf("messages out of order: %v", messages)
	}

	err = m.AppendMessage(ctx, &contract.Message{SessionID: "missing", Content: "x"})
	if !errors.Is(err, contract.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestContextMergeAndPromises(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	sessCtx, err := m.Context(ctx, s.ID)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(sessCtx.PromisesMade) != 0 || len(sessCtx.ConversationState) != 0 {
		t.Fatalf("context not initialized empty: %+v", sessCtx)
	}

	if err := m.MergeContextState(ctx, s.ID, map[string]any{"step": "verify", "order": "NP1"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := m.MergeContextState(ctx, s.ID, map[string]any{"step": "resolved"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := m.AppendPromises(ctx, s.ID, "wait until Friday"); err != nil {
		t.Fatalf("promises: %v", err)
	}

	sessCtx, _ = m.Context(ctx, s.ID)
	if sessCtx.ConversationState["step"] != "resolved" {
		t.Fatalf("merge did not overwrite: %v", sessCtx.ConversationState)
	}
	if sessCtx.ConversationState["order"] != "NP1" {
		t.Fatalf("merge dropped untouched key: %v", sessCtx.ConversationState)
	}
	if len(sessCtx.PromisesMade) != 1 || sessCtx.PromisesMade[0] != "wait until Friday" {
		t.Fatalf("unexpected promises %v", sessCtx.PromisesMade)
	}

	// Mutating a returned copy must not leak back into the store.
	sessCtx.ConversationState["step"] = "tampered"
	fresh, _ := m.Context(ctx, s.ID)
	if fresh.ConversationState["step"] != "resolved" {
		t.Fatalf("returned context is not a copy")
	}
}

func TestContextCopiesOrderAndSubscriptionData(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	m.mu.Lock()
	m.contexts[s.ID].OrderData = &contract.OrderData{ID: "o1", Name: "NP8073419", Status: "UNFULFILLED"}
	m.contexts[s.ID].SubscriptionData = &contract.SubscriptionData{SubscriptionID: "sub_1", Status: "ACTIVE"}
	m.mu.Unlock()

	sessCtx, err := m.Context(ctx, s.ID)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	sessCtx.OrderData.Status = "tampered"
	sessCtx.SubscriptionData.Status = "tampered"

	fresh, _ := m.Context(ctx, s.ID)
	if fresh.OrderData.Status != "UNFULFILLED" {
		t.Fatalf("order data is shared with the store: %+v", fresh.OrderData)
	}
	if fresh.SubscriptionData.Status != "ACTIVE" {
		t.Fatalf("subscription data is shared with the store: %+v", fresh.SubscriptionData)
	}
}

func TestClearSessionsKeepsImportedTickets(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	if err := m.ImportTicket(ctx, &contract.ImportedTicket{ConversationID: "conv-1", CustomerID: "cust_1"}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := m.AppendMessage(ctx, &contract.Message{SessionID: s.ID, Role: contract.RoleCustomer, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := m.ClearSessions(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if sessions, _ := m.Sessions(ctx); len(sessions) != 0 {
		t.Fatalf("sessions not cleared: %d", len(sessions))
	}
	if messages, _ := m.Messages(ctx, s.ID); len(messages) != 0 {
		t.Fatalf("messages not cleared: %d", len(messages))
	}
	tickets, err := m.ImportedTickets(ctx)
	if err != nil || len(tickets) != 1 {
		t.Fatalf("imported tickets must survive a clear, got %d err %v", len(tickets), err)
	}
}

func TestImportTicketDuplicate(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	if err := m.ImportTicket(ctx, &contract.ImportedTicket{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("import: %v", err)
	}
	err := m.ImportTicket(ctx, &contract.ImportedTicket{ConversationID: "conv-1"})
	if !errors.Is(err, contract.ErrPersistence) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := m.ImportedTicketByConversation(ctx, "conv-404"); !errors.Is(err, contract.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestToolCallsAndActions(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	s := newSession(t, m, "anna@example.com")

	tc := &contract.ToolCall{
		SessionID: s.ID,
		ToolName:  "shopify_get_customer_orders",
		Input:     map[string]any{"email": "anna@example.com"},
		Success:   true,
	}
	if err := m.RecordToolCall(ctx, tc); err != nil {
		t.Fatalf("record tool call: %v", err)
	}
	a := &contract.Action{
		SessionID:   s.ID,
		ActionType:  "tool_shopify_get_customer_orders",
		Details:     map[string]any{"input": tc.Input},
		PerformedBy: "Shipping Delay Agent",
	}
	if err := m.RecordAction(ctx, a); err != nil {
		t.Fatalf("record action: %v", err)
	}

	calls, _ := m.ToolCalls(ctx, s.ID)
	if len(calls) != 1 || calls[0].ID == "" {
		t.Fatalf("unexpected tool calls %+v", calls)
	}
	actions, _ := m.Actions(ctx, s.ID)
	if len(actions) != 1 || actions[0].ActionType != a.ActionType {
		t.Fatalf("unexpected actions %+v", actions)
	}
}
