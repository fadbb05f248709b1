package contract

import "context"

// GenerateOptions carries optional per-call generation settings.
type GenerateOptions struct {
	Temperature *float64
}

type GenerateOption func(*GenerateOptions)

// WithTemperature overrides the gateway's default sampling temperature for
// a single call. The supervisor uses a low value for review determinism.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

func ApplyGenerateOptions(opts []GenerateOption) GenerateOptions {
	var out GenerateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// Gateway submits one prompt under an agent label and returns the generated
// text. Any upstream failure is reported as an error wrapping ErrGeneration
// and is fatal to the current step only.
type Gateway interface {
	Generate(ctx context.Context, prompt string, agentLabel string, opts ...GenerateOption) (string, error)
}

// Tool is one named external action with a declared parameter schema.
// Execute validates and normalizes params before invoking the HTTP
// collaborator; it never returns a Go error.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, params map[string]any) ToolResponse
}

// Toolbox resolves tool names against the fixed catalog.
type Toolbox interface {
	Lookup(name string) (Tool, bool)
}

// Store is the durable record of sessions and everything hanging off them.
// The agent runtime and supervisor hold no authoritative state of their own;
// all cross-turn state lives here. List operations return ascending
// creation order except Sessions, which returns most recent first.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	Session(ctx context.Context, id string) (*Session, error)
	Sessions(ctx context.Context) ([]Session, error)
	UpdateSessionCategory(ctx context.Context, id string, category WorkflowCategory) error
	EscalateSession(ctx context.Context, id string, summary EscalationSummary) error
	ClearSessions(ctx context.Context) error

	AppendMessage(ctx context.Context, m *Message) error
	Messages(ctx context.Context, sessionID string) ([]Message, error)

	RecordToolCall(ctx context.Context, tc *ToolCall) error
	ToolCalls(ctx context.Context, sessionID string) ([]ToolCall, error)

	RecordAction(ctx context.Context, a *Action) error
	Actions(ctx context.Context, sessionID string) ([]Action, error)

	Context(ctx context.Context, sessionID string) (*SessionContext, error)
	MergeContextState(ctx context.Context, sessionID string, state map[string]any) error
	AppendPromises(ctx context.Context, sessionID string, promises ...string) error

	ImportTicket(ctx context.Context, t *ImportedTicket) error
	ImportedTicketByConversation(ctx context.Context, conversationID string) (*ImportedTicket, error)
	ImportedTickets(ctx context.Context) ([]ImportedTicket, error)
}
