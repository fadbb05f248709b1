package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/supervisor"
	"github.com/natpat/caz/agent/workflow"
)

// GraphInput is one inbound customer message addressed to a session.
type GraphInput struct {
	SessionID string
	Message   string
}

// GraphOutput wraps the pipeline's reply.
type GraphOutput struct {
	Response contract.AgentResponse
}

// pipelineState is threaded through the graph nodes.
type pipelineState struct {
	Input    GraphInput
	Session  *contract.Session
	History  []contract.Message
	Context  *contract.SessionContext
	Def      workflow.Definition
	Response contract.AgentResponse
}

func (o *Orchestrator) compileGraph(ctx context.Context) (compose.Runnable[GraphInput, GraphOutput], error) {
	graph := compose.NewGraph[GraphInput, GraphOutput]()

	if err := graph.AddLambdaNode("load_session",
		compose.InvokableLambda(o.loadSessionNode),
	); err != nil {
		return nil, fmt.Errorf("add load_session node: %w", err)
	}

	if err := graph.AddLambdaNode("acknowledge_escalated",
		compose.InvokableLambda(o.acknowledgeEscalatedNode),
	); err != nil {
		return nil, fmt.Errorf("add acknowledge_escalated node: %w", err)
	}

	if err := graph.AddLambdaNode("record_message",
		compose.InvokableLambda(o.recordMessageNode),
	); err != nil {
		return nil, fmt.Errorf("add record_message node: %w", err)
	}

	if err := graph.AddLambdaNode("route_category",
		compose.InvokableLambda(o.routeCategoryNode),
	); err != nil {
		return nil, fmt.Errorf("add route_category node: %w", err)
	}

	if err := graph.AddLambdaNode("run_agent",
		compose.InvokableLambda(o.runAgentNode),
	); err != nil {
		return nil, fmt.Errorf("add run_agent node: %w", err)
	}

	if err := graph.AddLambdaNode("review",
		compose.InvokableLambda(o.reviewNode),
	); err != nil {
		return nil, fmt.Errorf("add review node: %w", err)
	}

	if err := graph.AddLambdaNode("persist",
		compose.InvokableLambda(o.persistNode),
	); err != nil {
		return nil, fmt.Errorf("add persist node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *pipelineState) (string, error) {
			if st == nil || st.Session == nil {
				return "", fmt.Errorf("%w: pipeline state is nil", contract.ErrValidation)
			}
			if st.Session.IsEscalated {
				return "acknowledge_escalated", nil
			}
			return "record_message", nil
		},
		map[string]bool{
			"acknowledge_escalated": true,
			"record_message":        true,
		},
	)

	if err := graph.AddEdge(compose.START, "load_session"); err != nil {
		return nil, fmt.Errorf("add edge start->load_session: %w", err)
	}
	if err := graph.AddBranch("load_session", branch); err != nil {
		return nil, fmt.Errorf("add escalation branch: %w", err)
	}
	if err := graph.AddEdge("record_message", "route_category"); err != nil {
		return nil, fmt.Errorf("add edge record_message->route_category: %w", err)
	}
	if err := graph.AddEdge("route_category", "run_agent"); err != nil {
		return nil, fmt.Errorf("add edge route_category->run_agent: %w", err)
	}
	if err := graph.AddEdge("run_agent", "review"); err != nil {
		return nil, fmt.Errorf("add edge run_agent->review: %w", err)
	}
	if err := graph.AddEdge("review", "persist"); err != nil {
		return nil, fmt.Errorf("add edge review->persist: %w", err)
	}
	if err := graph.AddEdge("persist", compose.END); err != nil {
		return nil, fmt.Errorf("add edge persist->end: %w", err)
	}
	if err := graph.AddEdge("acknowledge_escalated", compose.END); err != nil {
		return nil, fmt.Errorf("add edge acknowledge_escalated->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("email_support.pipeline"))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline: %w", err)
	}
	return runner, nil
}

func (o *Orchestrator) loadSessionNode(ctx context.Context, in GraphInput) (*pipelineState, error) {
	session, err := o.store.Session(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return &pipelineState{Input: in, Session: session}, nil
}

// acknowledgeEscalatedNode terminates the pipeline for escalated sessions.
// No message is recorded and no reply is generated; the caller sees the
// standing escalation summary.
func (o *Orchestrator) acknowledgeEscalatedNode(ctx context.Context, st *pipelineState) (GraphOutput, error) {
	o.log.Info().Str("session_id", st.Session.ID).Msg("session escalated, skipping automated reply")
	return GraphOutput{Response: contract.AgentResponse{
		Message:           "",
		ToolCalls:         []contract.ToolCall{},
		Actions:           []contract.Action{},
		ShouldEscalate:    true,
		EscalationSummary: st.Session.EscalationSummary,
	}}, nil
}

func (o *Orchestrator) recordMessageNode(ctx context.Context, st *pipelineState) (*pipelineState, error) {
	msg := &contract.Message{
		SessionID: st.Session.ID,
		Role:      contract.RoleCustomer,
		Content:   st.Input.Message,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	history, err := o.store.Messages(ctx, st.Session.ID)
	if err != nil {
		return nil, err
	}
	st.History = history

	// Context load failure is tolerated; the agent just runs without
	// working memory.
	if sessCtx, err := o.store.Context(ctx, st.Session.ID); err == nil {
		st.Context = sessCtx
	}
	return st, nil
}

func (o *Orchestrator) routeCategoryNode(ctx context.Context, st *pipelineState) (*pipelineState, error) {
	category := st.Session.WorkflowCategory
	if category == "" || category == contract.CategoryUnknown {
		routing := o.router.Route(ctx, st.Input.Message, st.History)
		category = routing.Category

		if err := o.store.UpdateSessionCategory(ctx, st.Session.ID, category); err != nil {
			return nil, err
		}
		st.Session.WorkflowCategory = category
	}

	st.Def = workflow.ForCategory(o.defs, category)
	return st, nil
}

func (o *Orchestrator) runAgentNode(ctx context.Context, st *pipelineState) (*pipelineState, error) {
	st.Response = o.runtime.Run(ctx, st.Session, st.Def, st.History, st.Context, st.Input.Message)
	return st, nil
}

// reviewNode runs the supervisor over a non-escalated reply. An escalation
// happens only when the reviewer both asks for it and rates the risk
// critical; a rejected review alone just travels with the response.
func (o *Orchestrator) reviewNode(ctx context.Context, st *pipelineState) (*pipelineState, error) {
	if st.Response.ShouldEscalate || st.Response.Message == "" {
		return st, nil
	}

	var promises []string
	if st.Context != nil {
		promises = st.Context.PromisesMade
	}

	previousToolCalls, err := o.store.ToolCalls(ctx, st.Session.ID)
	if err != nil {
		return nil, err
	}

	review := o.supervisor.Review(ctx, supervisor.ReviewInput{
		CustomerName:      st.Session.CustomerFirstName,
		SessionID:         st.Session.ID,
		WorkflowCategory:  st.Session.WorkflowCategory,
		PreviousMessages:  st.History,
		PreviousToolCalls: previousToolCalls,
		ProposedResponse:  st.Response.Message,
		ProposedToolCalls: st.Response.ToolCalls,
		PromisesMade:      promises,
	})
	st.Response.Supervisor = &review

	if review.ShouldEscalate && review.RiskLevel == contract.RiskCritical {
		reason := review.EscalationReason
		if reason == "" {
			reason = "Critical issue detected by supervisor"
		}
		recommended := review.SuggestedModifications
		if recommended == "" {
			recommended = "Manual review required"
		}

		attempted := make([]string, 0, len(st.Response.ToolCalls))
		for _, tc := range st.Response.ToolCalls {
			attempted = append(attempted, tc.ToolName)
		}

		st.Response.ShouldEscalate = true
		st.Response.EscalationSummary = &contract.EscalationSummary{
			Reason:               reason,
			CustomerIssue:        st.Input.Message,
			AttemptedResolutions: attempted,
			RecommendedAction:    recommended,
			Priority:             contract.PriorityHigh,
		}
		st.Response.Message = fmt.Sprintf(
			"Hey %s, I want to make sure we handle this perfectly for you. I'm bringing in Monica, our Head of CS, to take a closer look. She'll be in touch shortly! 🙏\n\n%s",
			st.Session.CustomerFirstName, workflow.Signature,
		)
	}

	action := &contract.Action{
		SessionID:  st.Session.ID,
		ActionType: "supervisor_review",
		Details: map[string]any{
			"approved":         review.Approved,
			"riskLevel":        string(review.RiskLevel),
			"contradictions":   review.Contradictions,
			"policyViolations": review.PolicyViolations,
		},
		PerformedBy: "Supervisor Agent",
	}
	if err := o.store.RecordAction(ctx, action); err != nil {
		return nil, err
	}
	return st, nil
}

func (o *Orchestrator) persistNode(ctx context.Context, st *pipelineState) (GraphOutput, error) {
	if st.Response.Message != "" {
		msg := &contract.Message{
			SessionID: st.Session.ID,
			Role:      contract.RoleAgent,
			Content:   st.Response.Message,
			AgentName: st.Def.Name,
		}
		if err := o.store.AppendMessage(ctx, msg); err != nil {
			return GraphOutput{}, err
		}
	}

	if st.Response.ShouldEscalate && st.Response.EscalationSummary != nil {
		if err := o.store.EscalateSession(ctx, st.Session.ID, *st.Response.EscalationSummary); err != nil {
			return GraphOutput{}, err
		}
	}

	if len(st.Response.NextState) > 0 {
		if err := o.store.MergeContextState(ctx, st.Session.ID, st.Response.NextState); err != nil {
			return GraphOutput{}, err
		}
	}

	return GraphOutput{Response: st.Response}, nil
}
