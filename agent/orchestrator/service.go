// Package orchestrator wires the full email support pipeline: routing,
// category agent execution, supervisor review, and persistence, compiled
// into a single graph invoked once per inbound customer message.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/prompt"
	"github.com/natpat/caz/agent/router"
	"github.com/natpat/caz/agent/runtime"
	"github.com/natpat/caz/agent/supervisor"
	"github.com/natpat/caz/agent/workflow"
)

type Orchestrator struct {
	store   contract.Store
	gateway contract.Gateway
	toolbox contract.Toolbox

	router     *router.Router
	runtime    *runtime.Runtime
	supervisor *supervisor.Supervisor
	defs       map[contract.WorkflowCategory]workflow.Definition

	graphRunner compose.Runnable[GraphInput, GraphOutput]

	// sessionLocks serializes processing per session so two concurrent
	// messages on one thread cannot interleave their transcripts.
	sessionLocks sync.Map

	log zerolog.Logger
	now func() time.Time
}

func New(store contract.Store, gateway contract.Gateway, toolbox contract.Toolbox, log zerolog.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if toolbox == nil {
		return nil, errors.New("toolbox is required")
	}

	prompts := prompt.Load()

	o := &Orchestrator{
		store:      store,
		gateway:    gateway,
		toolbox:    toolbox,
		router:     router.New(gateway, prompts.Router, log),
		runtime:    runtime.New(gateway, toolbox, store, log),
		supervisor: supervisor.New(gateway, prompts.Supervisor, log),
		defs:       workflow.Definitions(),
		log:        log,
		now:        time.Now,
	}

	runner, err := o.compileGraph(context.Background())
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}
	o.graphRunner = runner
	return o, nil
}

// CreateSession opens a new email thread for a customer.
func (o *Orchestrator) CreateSession(ctx context.Context, customer contract.CustomerInfo, subject string) (*contract.Session, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, fmt.Errorf("%w: customer email is required", contract.ErrValidation)
	}

	session := &contract.Session{
		CustomerEmail:     customer.Email,
		CustomerFirstName: customer.FirstName,
		CustomerLastName:  customer.LastName,
		ShopifyCustomerID: customer.ShopifyCustomerID,
		Subject:           subject,
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	o.log.Info().Str("session_id", session.ID).Str("customer_email", customer.Email).Msg("session created")
	return session, nil
}

func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*contract.Session, error) {
	return o.store.Session(ctx, sessionID)
}

func (o *Orchestrator) ListSessions(ctx context.Context) ([]contract.Session, error) {
	return o.store.Sessions(ctx)
}

// ClearAllSessions wipes every session and its dependent records. Imported
// tickets are preserved.
func (o *Orchestrator) ClearAllSessions(ctx context.Context) error {
	return o.store.ClearSessions(ctx)
}

func (o *Orchestrator) Messages(ctx context.Context, sessionID string) ([]contract.Message, error) {
	return o.store.Messages(ctx, sessionID)
}

func (o *Orchestrator) ToolCalls(ctx context.Context, sessionID string) ([]contract.ToolCall, error) {
	return o.store.ToolCalls(ctx, sessionID)
}

func (o *Orchestrator) Actions(ctx context.Context, sessionID string) ([]contract.Action, error) {
	return o.store.Actions(ctx, sessionID)
}

func (o *Orchestrator) Context(ctx context.Context, sessionID string) (*contract.SessionContext, error) {
	return o.store.Context(ctx, sessionID)
}

// ProcessMessage runs one inbound customer message through the pipeline and
// returns the reply that should be sent. Messages on the same session are
// processed strictly one at a time.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, customerMessage string) (contract.AgentResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return contract.AgentResponse{}, fmt.Errorf("%w: session id is required", contract.ErrValidation)
	}
	if strings.TrimSpace(customerMessage) == "" {
		return contract.AgentResponse{}, fmt.Errorf("%w: message is required", contract.ErrValidation)
	}

	mu := o.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	out, err := o.graphRunner.Invoke(ctx, GraphInput{
		SessionID: sessionID,
		Message:   customerMessage,
	})
	if err != nil {
		return contract.AgentResponse{}, err
	}
	return out.Response, nil
}

func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	mu, _ := o.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
