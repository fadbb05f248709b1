// Package store persists sessions, transcripts, audit trails, and imported
// dataset tickets. Two implementations share the contract: a Postgres store
// over bun for production and an in-memory store for tests and local runs.
package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/natpat/caz/agent/contract"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:email_sessions,alias:es"`

	ID                string                      `bun:"id,pk"`
	CustomerEmail     string                      `bun:"customer_email,notnull"`
	CustomerFirstName string                      `bun:"customer_first_name"`
	CustomerLastName  string                      `bun:"customer_last_name"`
	ShopifyCustomerID string                      `bun:"shopify_customer_id"`
	Subject           string                      `bun:"subject"`
	WorkflowCategory  string                      `bun:"workflow_category"`
	IsEscalated       bool                        `bun:"is_escalated,notnull,default:false"`
	EscalationReason  string                      `bun:"escalation_reason"`
	EscalationSummary *contract.EscalationSummary `bun:"escalation_summary,type:jsonb"`
	ConversationID    string                      `bun:"conversation_id"`
	ConversationType  string                      `bun:"conversation_type"`
	RawConversation   string                      `bun:"raw_conversation"`
	CreatedAt         time.Time                   `bun:"created_at,notnull"`
	UpdatedAt         time.Time                   `bun:"updated_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:session_messages,alias:sm"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	AgentName string    `bun:"agent_name"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type toolCallRow struct {
	bun.BaseModel `bun:"table:tool_calls,alias:tc"`

	ID           string         `bun:"id,pk"`
	SessionID    string         `bun:"session_id,notnull"`
	MessageID    string         `bun:"message_id"`
	ToolName     string         `bun:"tool_name,notnull"`
	ToolInput    map[string]any `bun:"tool_input,type:jsonb"`
	ToolOutput   map[string]any `bun:"tool_output,type:jsonb"`
	Success      bool           `bun:"success,notnull,default:false"`
	ErrorMessage string         `bun:"error_message"`
	CreatedAt    time.Time      `bun:"created_at,notnull"`
}

type actionRow struct {
	bun.BaseModel `bun:"table:session_actions,alias:sa"`

	ID          string         `bun:"id,pk"`
	SessionID   string         `bun:"session_id,notnull"`
	ActionType  string         `bun:"action_type,notnull"`
	Details     map[string]any `bun:"action_details,type:jsonb"`
	PerformedBy string         `bun:"performed_by"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
}

type contextRow struct {
	bun.BaseModel `bun:"table:session_context,alias:sc"`

	SessionID         string                     `bun:"session_id,pk"`
	PromisesMade      []string                   `bun:"promises_made,type:jsonb"`
	OrderData         *contract.OrderData        `bun:"order_data,type:jsonb"`
	SubscriptionData  *contract.SubscriptionData `bun:"subscription_data,type:jsonb"`
	CustomerSentiment string                     `bun:"customer_sentiment"`
	ConversationState map[string]any             `bun:"conversation_state,type:jsonb"`
	UpdatedAt         time.Time                  `bun:"updated_at,notnull"`
}

type importedTicketRow struct {
	bun.BaseModel `bun:"table:imported_tickets,alias:it"`

	ID                string    `bun:"id,pk"`
	ConversationID    string    `bun:"conversation_id,notnull,unique"`
	CustomerID        string    `bun:"customer_id"`
	OriginalCreatedAt string    `bun:"original_created_at"`
	ConversationType  string    `bun:"conversation_type"`
	Subject           string    `bun:"subject"`
	RawConversation   string    `bun:"raw_conversation"`
	ImportedAt        time.Time `bun:"imported_at,notnull"`
}

func (r *sessionRow) toContract() *contract.Session {
	return &contract.Session{
		ID:                r.ID,
		CustomerEmail:     r.CustomerEmail,
		CustomerFirstName: r.CustomerFirstName,
		CustomerLastName:  r.CustomerLastName,
		ShopifyCustomerID: r.ShopifyCustomerID,
		Subject:           r.Subject,
		WorkflowCategory:  contract.WorkflowCategory(r.WorkflowCategory),
		IsEscalated:       r.IsEscalated,
		EscalationReason:  r.EscalationReason,
		EscalationSummary: r.EscalationSummary,
		ConversationID:    r.ConversationID,
		ConversationType:  r.ConversationType,
		RawConversation:   r.RawConversation,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func sessionRowFrom(s *contract.Session) *sessionRow {
	return &sessionRow{
		ID:                s.ID,
		CustomerEmail:     s.CustomerEmail,
		CustomerFirstName: s.CustomerFirstName,
		CustomerLastName:  s.CustomerLastName,
		ShopifyCustomerID: s.ShopifyCustomerID,
		Subject:           s.Subject,
		WorkflowCategory:  string(s.WorkflowCategory),
		IsEscalated:       s.IsEscalated,
		EscalationReason:  s.EscalationReason,
		EscalationSummary: s.EscalationSummary,
		ConversationID:    s.ConversationID,
		ConversationType:  s.ConversationType,
		RawConversation:   s.RawConversation,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (r *messageRow) toContract() contract.Message {
	return contract.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      contract.MessageRole(r.Role),
		Content:   r.Content,
		AgentName: r.AgentName,
		CreatedAt: r.CreatedAt,
	}
}

func (r *toolCallRow) toContract() contract.ToolCall {
	return contract.ToolCall{
		ID:           r.ID,
		SessionID:    r.SessionID,
		MessageID:    r.MessageID,
		ToolName:     r.ToolName,
		Input:        r.ToolInput,
		Output:       r.ToolOutput,
		Success:      r.Success,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
	}
}

func (r *actionRow) toContract() contract.Action {
	return contract.Action{
		ID:          r.ID,
		SessionID:   r.SessionID,
		ActionType:  r.ActionType,
		Details:     r.Details,
		PerformedBy: r.PerformedBy,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *contextRow) toContract() *contract.SessionContext {
	promises := r.PromisesMade
	if promises == nil {
		promises = []string{}
	}
	state := r.ConversationState
	if state == nil {
		state = map[string]any{}
	}
	return &contract.SessionContext{
		SessionID:         r.SessionID,
		PromisesMade:      promises,
		OrderData:         r.OrderData,
		SubscriptionData:  r.SubscriptionData,
		CustomerSentiment: r.CustomerSentiment,
		ConversationState: state,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r *importedTicketRow) toContract() contract.ImportedTicket {
	return contract.ImportedTicket{
		ID:                r.ID,
		ConversationID:    r.ConversationID,
		CustomerID:        r.CustomerID,
		OriginalCreatedAt: r.OriginalCreatedAt,
		ConversationType:  r.ConversationType,
		Subject:           r.Subject,
		RawConversation:   r.RawConversation,
		ImportedAt:        r.ImportedAt,
	}
}
