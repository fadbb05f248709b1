// Package runtime drives one category agent over a bounded generate/tool
// loop and distills the model's output into a single customer reply.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/parse"
	"github.com/natpat/caz/agent/workflow"
)

// maxToolIterations bounds the generate/tool loop. Repair and unknown-tool
// re-prompts consume iterations too, so a misbehaving model cannot spin.
const maxToolIterations = 5

// maxToolResultChars caps the serialized tool result relayed back to the
// model so large order payloads cannot blow out the context.
const maxToolResultChars = 8000

// transientToolErrorRe matches tool failures caused by backend outages
// rather than bad requests. Two such failures in a row on the same tool trip
// the outage escalation.
var transientToolErrorRe = regexp.MustCompile(`(?i)Network error|Failed to fetch|timeout|ECONN|ENOTFOUND|502|503|504`)

var firstNameRe = regexp.MustCompile(`\{\{first_name\}\}`)

// Runtime executes one category agent definition against the live session.
type Runtime struct {
	gateway contract.Gateway
	toolbox contract.Toolbox
	store   contract.Store
	log     zerolog.Logger
	now     func() time.Time
}

func New(gateway contract.Gateway, toolbox contract.Toolbox, store contract.Store, log zerolog.Logger) *Runtime {
	return &Runtime{
		gateway: gateway,
		toolbox: toolbox,
		store:   store,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock, for deterministic wait promises in
// tests.
func (r *Runtime) WithClock(now func() time.Time) *Runtime {
	r.now = now
	return r
}

// Run processes the latest customer message under the given agent profile.
// It never returns an error: any internal failure collapses into an apology
// reply with a forced high-priority escalation.
func (r *Runtime) Run(
	ctx context.Context,
	session *contract.Session,
	def workflow.Definition,
	history []contract.Message,
	sessCtx *contract.SessionContext,
	currentMessage string,
) contract.AgentResponse {
	resp, err := r.run(ctx, session, def, history, sessCtx, currentMessage)
	if err != nil {
		r.log.Error().Err(err).Str("agent", def.Name).Str("session_id", session.ID).Msg("agent run failed")
		return contract.AgentResponse{
			Message: fmt.Sprintf(
				"Hi %s, I apologize but I'm having some trouble processing your request. Let me get a team member to help you.%s",
				session.CustomerFirstName, workflow.Signature,
			),
			ToolCalls:      []contract.ToolCall{},
			Actions:        []contract.Action{},
			ShouldEscalate: true,
			EscalationSummary: &contract.EscalationSummary{
				Reason:               "Agent processing error",
				CustomerIssue:        currentMessage,
				AttemptedResolutions: []string{},
				RecommendedAction:    "Manual review - agent error",
				Priority:             contract.PriorityHigh,
			},
		}
	}
	return resp
}

func (r *Runtime) run(
	ctx context.Context,
	session *contract.Session,
	def workflow.Definition,
	history []contract.Message,
	sessCtx *contract.SessionContext,
	currentMessage string,
) (contract.AgentResponse, error) {
	customerName := session.CustomerFirstName
	prompt := r.buildPrompt(session, def, history, sessCtx, currentMessage)

	agentResponse, err := r.gateway.Generate(ctx, prompt, def.Name)
	if err != nil {
		return contract.AgentResponse{}, err
	}

	var (
		toolCalls         []contract.ToolCall
		actions           []contract.Action
		shouldEscalate    bool
		escalationSummary *contract.EscalationSummary
		finalMessage      string
	)

	transientStreak := 0
	transientTool := ""

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		outcome := parse.Next(agentResponse)
		if outcome.Kind != parse.KindToolCall && outcome.Kind != parse.KindMalformedToolCall {
			break
		}

		if outcome.Kind == parse.KindMalformedToolCall {
			repairPrompt := fmt.Sprintf(
				"%s\n\nYour previous output contained an invalid TOOL_CALL JSON (%v).\nReturn ONLY one line in this exact format (no markdown, no extra text):\nTOOL_CALL: {\"tool\":\"<tool_name>\",\"params\":{...}}",
				prompt, outcome.Err,
			)
			if agentResponse, err = r.gateway.Generate(ctx, repairPrompt, def.Name); err != nil {
				return contract.AgentResponse{}, err
			}
			continue
		}

		toolName := outcome.Tool.Tool
		tool, lookupErr := r.lookupAllowed(def, toolName)
		if lookupErr != nil {
			r.log.Warn().Err(lookupErr).Str("agent", def.Name).Str("session_id", session.ID).Msg("tool request rejected")
			repairPrompt := fmt.Sprintf(
				"%s\n\nYou requested an unknown/unavailable tool: %s.\nAvailable tools: %s.\nRespond again. If you need a tool, output TOOL_CALL using an available tool; otherwise output RESPONSE.",
				prompt, toolName, strings.Join(def.Tools, ", "),
			)
			if agentResponse, err = r.gateway.Generate(ctx, repairPrompt, def.Name); err != nil {
				return contract.AgentResponse{}, err
			}
			continue
		}

		params := outcome.Tool.Params
		if params == nil {
			params = map[string]any{}
		}

		r.log.Info().Str("tool", toolName).Str("session_id", session.ID).Msg("executing tool")
		result := tool.Execute(ctx, params)
		if !result.Success {
			execErr := fmt.Errorf("%w: %s: %s", contract.ErrToolExecution, toolName, result.Error)
			r.log.Warn().Err(execErr).Str("session_id", session.ID).Msg("tool call failed")
		}

		isTransient := !result.Success && transientToolErrorRe.MatchString(result.Error)
		if result.Success {
			transientStreak = 0
			transientTool = ""
		} else if isTransient {
			if transientTool == toolName {
				transientStreak++
			} else {
				transientTool = toolName
				transientStreak = 1
			}

			if transientStreak >= 2 {
				attempted := make([]string, 0, len(toolCalls)+1)
				for _, tc := range toolCalls {
					attempted = append(attempted, tc.ToolName)
				}
				attempted = append(attempted, toolName)

				shouldEscalate = true
				escalationSummary = &contract.EscalationSummary{
					Reason:               "Tool system temporarily unavailable",
					CustomerIssue:        currentMessage,
					AttemptedResolutions: attempted,
					RecommendedAction:    "Manual lookup and customer follow-up required",
					Priority:             contract.PriorityHigh,
				}
				finalMessage = fmt.Sprintf(
					"Hey %s, thanks for your patience! I'm having trouble accessing our order system right now, so I can't verify the details immediately. I'm looping in Monica (our Head of CS) to manually check this for you and get back to you ASAP. 🙏\n\n%s",
					customerName, workflow.Signature,
				)
				break
			}
		}

		tc := &contract.ToolCall{
			SessionID:    session.ID,
			ToolName:     toolName,
			Input:        params,
			Output:       toolResultRecord(result),
			Success:      result.Success,
			ErrorMessage: result.Error,
		}
		if err := r.store.RecordToolCall(ctx, tc); err != nil {
			return contract.AgentResponse{}, err
		}
		toolCalls = append(toolCalls, *tc)

		if result.Success {
			action := &contract.Action{
				SessionID:  session.ID,
				ActionType: "tool_" + toolName,
				Details: map[string]any{
					"input":  params,
					"output": nonNilData(result.Data),
				},
				PerformedBy: def.Name,
			}
			if err := r.store.RecordAction(ctx, action); err != nil {
				return contract.AgentResponse{}, err
			}
			actions = append(actions, *action)
		}

		followUp := fmt.Sprintf(
			"%s\n\nTOOL_RESULT for %s: %s\n\nBased on this result, respond to the customer. Output RESPONSE: followed by your message.",
			prompt, toolName, truncateResult(result),
		)
		if agentResponse, err = r.gateway.Generate(ctx, followUp, def.Name); err != nil {
			return contract.AgentResponse{}, err
		}
	}

	if !shouldEscalate {
		// Model kept emitting tool calls past the budget; force a reply.
		if !strings.Contains(agentResponse, parse.MarkerResponse) && strings.Contains(agentResponse, parse.MarkerToolCall) {
			nudge := fmt.Sprintf(
				"%s\n\nDo NOT call tools. Provide the final message to the customer now.\nYou MUST output: RESPONSE: <your message>",
				prompt,
			)
			if agentResponse, err = r.gateway.Generate(ctx, nudge, def.Name); err != nil {
				return contract.AgentResponse{}, err
			}
		}
	}

	if esc, found, escErr := parse.Escalation(agentResponse); found {
		if escErr != nil {
			r.log.Error().Err(escErr).Str("agent", def.Name).Msg("escalation payload unreadable")
		} else {
			attempted := make([]string, 0, len(toolCalls))
			for _, tc := range toolCalls {
				attempted = append(attempted, tc.ToolName)
			}

			recommended := esc.Summary.RecommendedAction
			if recommended == "" {
				recommended = "Manual review required"
			}
			priority := contract.Priority(esc.Summary.Priority)
			if priority == "" {
				priority = contract.PriorityMedium
			}

			shouldEscalate = true
			escalationSummary = &contract.EscalationSummary{
				Reason:               esc.Reason,
				CustomerIssue:        currentMessage,
				AttemptedResolutions: attempted,
				RecommendedAction:    recommended,
				Priority:             priority,
			}
			finalMessage = fmt.Sprintf(
				"Hey %s, I'm looping in Monica, who is our Head of CS. She'll take it from here. 🙏\n\n%s",
				customerName, workflow.Signature,
			)
		}
	}

	if !shouldEscalate {
		finalMessage = r.distillReply(agentResponse, customerName)
	}

	if finalMessage == "" && !shouldEscalate {
		finalMessage = fmt.Sprintf(
			"Hi %s, thanks for reaching out! Could you please confirm the order number and the email used at checkout so I can locate the order and help you from there?\n\n%s",
			customerName, workflow.Signature,
		)
	}

	if toolCalls == nil {
		toolCalls = []contract.ToolCall{}
	}
	if actions == nil {
		actions = []contract.Action{}
	}

	return contract.AgentResponse{
		Message:           finalMessage,
		ToolCalls:         toolCalls,
		Actions:           actions,
		ShouldEscalate:    shouldEscalate,
		EscalationSummary: escalationSummary,
	}, nil
}

// distillReply walks the fallback ladder: explicit RESPONSE capture, then
// marker-stripped text, then the last clean paragraph.
func (r *Runtime) distillReply(agentResponse, customerName string) string {
	if reply, ok := parse.FinalReply(agentResponse); ok {
		return firstNameRe.ReplaceAllString(reply, customerName)
	}

	cleaned := parse.Cleaned(agentResponse)
	if cleaned != "" && !strings.Contains(cleaned, parse.MarkerToolCall) && !strings.Contains(cleaned, parse.MarkerEscalate) {
		return firstNameRe.ReplaceAllString(cleaned, customerName)
	}

	if last, ok := parse.LastParagraph(agentResponse); ok {
		return firstNameRe.ReplaceAllString(last, customerName)
	}
	return ""
}

// lookupAllowed resolves a tool only if the agent profile lists it; a tool
// outside the allow-list is rejected with the same sentinel as a tool the
// catalog has never heard of.
func (r *Runtime) lookupAllowed(def workflow.Definition, name string) (contract.Tool, error) {
	permitted := false
	for _, t := range def.Tools {
		if t == name {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, fmt.Errorf("%w: %s is not available to %s", contract.ErrUnknownTool, name, def.Name)
	}
	tool, ok := r.toolbox.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownTool, name)
	}
	return tool, nil
}

func (r *Runtime) buildPrompt(
	session *contract.Session,
	def workflow.Definition,
	history []contract.Message,
	sessCtx *contract.SessionContext,
	currentMessage string,
) string {
	waitUntil, earlyWeek := workflow.WaitPromise(r.now())

	var b strings.Builder
	b.WriteString(def.SystemPrompt)

	fmt.Fprintf(&b, "\n\nCUSTOMER INFO:\n- Name: %s %s\n- Email: %s\n- Shopify Customer ID: %s",
		session.CustomerFirstName, session.CustomerLastName, session.CustomerEmail, session.ShopifyCustomerID)

	fmt.Fprintf(&b, "\n\nCURRENT DAY CONTEXT:\n- Wait promise: Ask customer to wait until %s\n- Is early week (Mon-Wed): %t",
		waitUntil, earlyWeek)

	if sessCtx != nil {
		fmt.Fprintf(&b, "\n\nSESSION CONTEXT:\n- Promises made: %s\n- Order data: %s\n- Subscription data: %s\n- Customer sentiment: %s\n- Conversation state: %s",
			mustJSON(sessCtx.PromisesMade),
			mustJSON(sessCtx.OrderData),
			mustJSON(sessCtx.SubscriptionData),
			sessCtx.CustomerSentiment,
			mustJSON(sessCtx.ConversationState),
		)
	}

	b.WriteString("\n\nAVAILABLE TOOLS:")
	for _, name := range def.Tools {
		desc := "Tool"
		schema := "{}"
		if tool, ok := r.toolbox.Lookup(name); ok {
			desc = tool.Description()
			schema = mustJSON(tool.Parameters())
		}
		fmt.Fprintf(&b, "\n- %s: %s\n  Parameters: %s", name, desc, schema)
	}

	b.WriteString("\n\nESCALATION TRIGGERS:")
	for _, t := range def.EscalationTriggers {
		b.WriteString("\n- ")
		b.WriteString(t)
	}

	b.WriteString("\n\nOUTPUT FORMAT (follow exactly):")
	b.WriteString("\n- To call a tool: TOOL_CALL: {\"tool\": \"tool_name\", \"params\": {...}}")
	b.WriteString("\n- To escalate: ESCALATE: {\"reason\": \"...\", \"summary\": {...}}")
	b.WriteString("\n- For customer message: RESPONSE: <your message here>")

	b.WriteString("\n\nCRITICAL: You MUST output RESPONSE: followed by your message to the customer.")
	b.WriteString("\nEven if asking a question, use: RESPONSE: <question>")
	fmt.Fprintf(&b, "\nAlways replace {{first_name}} with %q.", session.CustomerFirstName)
	b.WriteString("\nEnd every message with your signature.")

	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}

	b.WriteString("\n\nLATEST CUSTOMER MESSAGE:\n")
	b.WriteString(currentMessage)
	b.WriteString("\n\nRespond to the customer. Output RESPONSE: followed by your message:")

	return b.String()
}

func truncateResult(result contract.ToolResponse) string {
	serialized := mustJSON(result)
	if len(serialized) > maxToolResultChars {
		return serialized[:maxToolResultChars] + "... [truncated, data too large]"
	}
	return serialized
}

func toolResultRecord(result contract.ToolResponse) map[string]any {
	out := map[string]any{"success": result.Success}
	if result.Data != nil {
		out["data"] = result.Data
	}
	if result.Error != "" {
		out["error"] = result.Error
	}
	return out
}

func nonNilData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
