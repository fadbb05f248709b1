package contract

import "time"

// WorkflowCategory is the closed set of customer-intent classes. Every
// inbound session is routed into exactly one category, at most once.
type WorkflowCategory string

const (
	CategoryShippingDelay       WorkflowCategory = "shipping_delay"
	CategoryWrongMissingItem    WorkflowCategory = "wrong_missing_item"
	CategoryProductIssue        WorkflowCategory = "product_issue_no_effect"
	CategoryRefundRequest       WorkflowCategory = "refund_request"
	CategoryOrderModification   WorkflowCategory = "order_modification"
	CategoryPositiveFeedback    WorkflowCategory = "positive_feedback"
	CategorySubscriptionBilling WorkflowCategory = "subscription_billing"
	CategoryDiscountCode        WorkflowCategory = "discount_code"
	CategoryUnknown             WorkflowCategory = "unknown"
)

// Categories returns all workflow categories, the unknown bucket last.
func Categories() []WorkflowCategory {
	return []WorkflowCategory{
		CategoryShippingDelay,
		CategoryWrongMissingItem,
		CategoryProductIssue,
		CategoryRefundRequest,
		CategoryOrderModification,
		CategoryPositiveFeedback,
		CategorySubscriptionBilling,
		CategoryDiscountCode,
		CategoryUnknown,
	}
}

// ParseCategory coerces free-form model output into a known category.
// Anything outside the closed set maps to CategoryUnknown.
func ParseCategory(raw string) WorkflowCategory {
	c := WorkflowCategory(raw)
	for _, known := range Categories() {
		if c == known {
			return known
		}
	}
	return CategoryUnknown
}

type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
	RoleSystem   MessageRole = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type CustomerInfo struct {
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	ShopifyCustomerID string `json:"shopify_customer_id"`
}

// Session is one email thread with a customer. Escalation is one-way: once
// IsEscalated is set the session never receives another automated reply.
type Session struct {
	ID                string             `json:"id"`
	CustomerEmail     string             `json:"customer_email"`
	CustomerFirstName string             `json:"customer_first_name"`
	CustomerLastName  string             `json:"customer_last_name"`
	ShopifyCustomerID string             `json:"shopify_customer_id"`
	Subject           string             `json:"subject,omitempty"`
	WorkflowCategory  WorkflowCategory   `json:"workflow_category,omitempty"`
	IsEscalated       bool               `json:"is_escalated"`
	EscalationReason  string             `json:"escalation_reason,omitempty"`
	EscalationSummary *EscalationSummary `json:"escalation_summary,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	// Import provenance, set only for sessions created from a dataset ticket.
	ConversationID   string `json:"conversation_id,omitempty"`
	ConversationType string `json:"conversation_type,omitempty"`
	RawConversation  string `json:"raw_conversation,omitempty"`
}

// Message is immutable once created; the ordered message list is the
// transcript fed back into every subsequent prompt.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	AgentName string      `json:"agent_name,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ToolCall is the append-only audit record of one tool execution attempt.
type ToolCall struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	MessageID    string         `json:"message_id,omitempty"`
	ToolName     string         `json:"tool_name"`
	Input        map[string]any `json:"tool_input"`
	Output       map[string]any `json:"tool_output,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Action is the append-only audit trail distinct from ToolCall; a tool call
// produces an action only on success.
type Action struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ActionType  string         `json:"action_type"`
	Details     map[string]any `json:"action_details"`
	PerformedBy string         `json:"performed_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

type OrderData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
	TrackingURL string `json:"tracking_url,omitempty"`
}

type SubscriptionData struct {
	SubscriptionID  string `json:"subscription_id"`
	Status          string `json:"status"`
	NextBillingDate string `json:"next_billing_date,omitempty"`
}

// SessionContext is the per-session working memory, one-to-one with a
// session and initialized atomically with it.
type SessionContext struct {
	SessionID         string            `json:"session_id"`
	PromisesMade      []string          `json:"promises_made"`
	OrderData         *OrderData        `json:"order_data,omitempty"`
	SubscriptionData  *SubscriptionData `json:"subscription_data,omitempty"`
	CustomerSentiment string            `json:"customer_sentiment,omitempty"`
	ConversationState map[string]any    `json:"conversation_state"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// EscalationSummary is created exactly once per escalation and never
// mutated afterwards.
type EscalationSummary struct {
	Reason               string   `json:"reason"`
	CustomerIssue        string   `json:"customer_issue"`
	AttemptedResolutions []string `json:"attempted_resolutions"`
	RecommendedAction    string   `json:"recommended_action"`
	Priority             Priority `json:"priority"`
}

type RoutingResult struct {
	Category   WorkflowCategory `json:"category"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
}

// SupervisorReview is the outcome of the second-pass reviewer. A non-empty
// Contradictions list always implies Approved=false; escalation is gated
// separately on ShouldEscalate together with RiskCritical.
type SupervisorReview struct {
	Approved               bool      `json:"approved"`
	RiskLevel              RiskLevel `json:"risk_level"`
	Contradictions         []string  `json:"contradictions"`
	PolicyViolations       []string  `json:"policy_violations"`
	SuggestedModifications string    `json:"suggested_modifications,omitempty"`
	ShouldEscalate         bool      `json:"should_escalate"`
	EscalationReason       string    `json:"escalation_reason,omitempty"`
	ReviewedAt             time.Time `json:"reviewed_at,omitempty"`
}

// AgentResponse is the result of processing one inbound message.
type AgentResponse struct {
	Message           string             `json:"message"`
	ToolCalls         []ToolCall         `json:"tool_calls"`
	Actions           []Action           `json:"actions"`
	ShouldEscalate    bool               `json:"should_escalate"`
	EscalationSummary *EscalationSummary `json:"escalation_summary,omitempty"`
	NextState         map[string]any     `json:"next_state,omitempty"`
	Supervisor        *SupervisorReview  `json:"supervisor_review,omitempty"`
}

// ToolResponse is the uniform result of any tool execution. Tools never
// surface transport or upstream failures as errors; they normalize into
// Success=false with a diagnostic.
type ToolResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// RawTicket is one record of the anonymized ticket dataset.
type RawTicket struct {
	ConversationID   string `json:"conversationId"`
	CustomerID       string `json:"customerId"`
	CreatedAt        string `json:"createdAt"`
	ConversationType string `json:"conversationType"`
	Subject          string `json:"subject"`
	Conversation     string `json:"conversation"`
}

// ImportedTicket is a persisted dataset ticket, deduplicated by
// ConversationID and preserved across session bulk-clears.
type ImportedTicket struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	CustomerID        string    `json:"customer_id"`
	OriginalCreatedAt string    `json:"original_created_at"`
	ConversationType  string    `json:"conversation_type"`
	Subject           string    `json:"subject"`
	RawConversation   string    `json:"raw_conversation"`
	ImportedAt        time.Time `json:"imported_at"`
}
