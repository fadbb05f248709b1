// Package supervisor reviews every proposed customer reply before it is
// sent. The reviewer is advisory by default; only an explicit critical-risk
// escalation verdict can take the conversation away from the agent.
package supervisor

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
)

// reviewTemperature keeps verdicts consistent across runs.
const reviewTemperature = 0.1

// highRiskTools are the irreversible money-moving actions that always
// surface in the quick risk check.
var highRiskTools = map[string]bool{
	"shopify_refund_order":     true,
	"shopify_cancel_order":     true,
	"skio_cancel_subscription": true,
}

var sensitivePatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?i)refund.*full`), "Full refund mentioned"},
	{regexp.MustCompile(`(?i)cancel.*subscription`), "Subscription cancellation"},
	{regexp.MustCompile(`(?i)legal|lawyer|attorney`), "Legal terms detected"},
	{regexp.MustCompile(`(?i)compensat`), "Compensation discussed"},
	{regexp.MustCompile(`(?i)free.*replacement`), "Free replacement offered"},
}

var (
	immediateActionRe = regexp.MustCompile(`(?i)immediately|right now|today`)
	cashRefundRe      = regexp.MustCompile(`(?i)cash refund|original payment`)
)

// ReviewInput carries everything the reviewer sees about the session and
// the proposed reply.
type ReviewInput struct {
	CustomerName      string
	SessionID         string
	WorkflowCategory  contract.WorkflowCategory
	PreviousMessages  []contract.Message
	PreviousToolCalls []contract.ToolCall
	ProposedResponse  string
	ProposedToolCalls []contract.ToolCall
	PromisesMade      []string
}

type Supervisor struct {
	gateway contract.Gateway
	prompt  string
	log     zerolog.Logger
	now     func() time.Time
}

func New(gateway contract.Gateway, reviewPrompt string, log zerolog.Logger) *Supervisor {
	return &Supervisor{gateway: gateway, prompt: reviewPrompt, log: log, now: time.Now}
}

// Review runs the full assessment: deterministic quick checks, a low
// temperature model review, and a merge that folds detected promise
// contradictions back into the verdict. Any model or parse failure degrades
// to a cautious medium-risk approval so review problems never block replies.
func (s *Supervisor) Review(ctx context.Context, input ReviewInput) contract.SupervisorReview {
	quick := s.QuickRiskCheck(input.ProposedResponse, input.ProposedToolCalls)
	contradictions := s.PromiseContradictions(input.ProposedResponse, input.PromisesMade)

	if quick.HasHighRiskActions || len(contradictions) > 0 {
		s.log.Info().
			Strs("quick_reasons", quick.Reasons).
			Int("contradictions", len(contradictions)).
			Str("session_id", input.SessionID).
			Msg("quick check found issues, running full review")
	}

	review := s.modelReview(ctx, input)

	review.Contradictions = append(review.Contradictions, contradictions...)
	// A non-empty contradiction list always rejects, whether the
	// contradictions came from the heuristics or from the model itself.
	if len(review.Contradictions) > 0 {
		review.Approved = false
	}

	review.ReviewedAt = s.now()

	s.log.Info().
		Bool("approved", review.Approved).
		Str("risk_level", string(review.RiskLevel)).
		Int("contradictions", len(review.Contradictions)).
		Int("policy_violations", len(review.PolicyViolations)).
		Msg("supervisor review complete")

	return review
}

func (s *Supervisor) modelReview(ctx context.Context, input ReviewInput) contract.SupervisorReview {
	prompt := s.buildPrompt(input)

	raw, err := s.gateway.Generate(ctx, prompt, "Supervisor", contract.WithTemperature(reviewTemperature))
	if err != nil {
		s.log.Error().Err(err).Msg("supervisor review generation failed")
		return defaultReview()
	}

	var parsed struct {
		Approved               *bool    `json:"approved"`
		RiskLevel              string   `json:"riskLevel"`
		Contradictions         []string `json:"contradictions"`
		PolicyViolations       []string `json:"policyViolations"`
		SuggestedModifications string   `json:"suggestedModifications"`
		ShouldEscalate         bool     `json:"shouldEscalate"`
		EscalationReason       string   `json:"escalationReason"`
	}
	if err := json.Unmarshal([]byte(parse.ExtractJSON(raw)), &parsed); err != nil {
		s.log.Error().Err(err).Str("response", raw).Msg("supervisor review parse failed")
		return defaultReview()
	}

	approved := true
	if parsed.Approved != nil {
		approved = *parsed.Approved
	}
	risk := contract.RiskLevel(parsed.RiskLevel)
	switch risk {
	case contract.RiskLow, contract.RiskMedium, contract.RiskHigh, contract.RiskCritical:
	default:
		risk = contract.RiskMedium
	}

	return contract.SupervisorReview{
		Approved:               approved,
		RiskLevel:              risk,
		Contradictions:         orEmpty(parsed.Contradictions),
		PolicyViolations:       orEmpty(parsed.PolicyViolations),
		SuggestedModifications: parsed.SuggestedModifications,
		ShouldEscalate:         parsed.ShouldEscalate,
		EscalationReason:       parsed.EscalationReason,
	}
}

func (s *Supervisor) buildPrompt(input ReviewInput) string {
	var b strings.Builder
	b.WriteString(s.prompt)

	b.WriteString("\n\nREVIEW REQUEST:\n===============")
	fmt.Fprintf(&b, "\n\nCUSTOMER: %s\nSESSION ID: %s\nWORKFLOW: %s",
		input.CustomerName, input.SessionID, input.WorkflowCategory)

	b.WriteString("\n\nPREVIOUS CONVERSATION:\n")
	if len(input.PreviousMessages) == 0 {
		b.WriteString("No previous messages")
	}
	for i, m := range input.PreviousMessages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}

	b.WriteString("\n\nPREVIOUS TOOL CALLS:\n")
	if len(input.PreviousToolCalls) == 0 {
		b.WriteString("No previous tool calls")
	}
	for i, tc := range input.PreviousToolCalls {
		if i > 0 {
			b.WriteString("\n")
		}
		status := "FAILED"
		if tc.Success {
			status = "SUCCESS"
		}
		fmt.Fprintf(&b, "- %s: %s - %s", tc.ToolName, status, mustJSON(tc.Input))
	}

	b.WriteString("\n\nPROMISES MADE TO CUSTOMER:\n")
	if len(input.PromisesMade) == 0 {
		b.WriteString("None recorded")
	} else {
		b.WriteString(strings.Join(input.PromisesMade, "\n"))
	}

	fmt.Fprintf(&b, "\n\nPROPOSED RESPONSE TO REVIEW:\n\"\"\"\n%s\n\"\"\"", input.ProposedResponse)

	b.WriteString("\n\nPROPOSED TOOL CALLS:\n")
	if len(input.ProposedToolCalls) == 0 {
		b.WriteString("None")
	}
	for i, tc := range input.ProposedToolCalls {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", tc.ToolName, mustJSON(tc.Input))
	}

	b.WriteString("\n\nReview this response and provide your assessment:")
	return b.String()
}

// QuickCheckResult is the outcome of the deterministic pre-screen.
type QuickCheckResult struct {
	HasHighRiskActions bool
	Reasons            []string
}

// QuickRiskCheck flags irreversible tool usage and sensitive wording
// without a model call.
func (s *Supervisor) QuickRiskCheck(response string, toolCalls []contract.ToolCall) QuickCheckResult {
	var reasons []string

	for _, tc := range toolCalls {
		if highRiskTools[tc.ToolName] {
			reasons = append(reasons, "High-risk action: "+tc.ToolName)
		}
	}

	for _, p := range sensitivePatterns {
		if p.re.MatchString(response) {
			reasons = append(reasons, p.reason)
		}
	}

	return QuickCheckResult{
		HasHighRiskActions: len(reasons) > 0,
		Reasons:            reasons,
	}
}

// PromiseContradictions compares the proposed reply against recorded
// promises with two heuristics: a wait promise followed by immediate-action
// wording, and a store-credit promise followed by cash-refund wording.
func (s *Supervisor) PromiseContradictions(response string, promisesMade []string) []string {
	var contradictions []string
	for _, promise := range promisesMade {
		if strings.Contains(promise, "wait") && immediateActionRe.MatchString(response) {
			contradictions = append(contradictions, "Previously promised to wait, but now offering immediate action")
		}
		if strings.Contains(promise, "store credit") && cashRefundRe.MatchString(response) {
			contradictions = append(contradictions, "Previously offered store credit, now offering cash refund")
		}
	}
	return contradictions
}

func defaultReview() contract.SupervisorReview {
	return contract.SupervisorReview{
		Approved:         true,
		RiskLevel:        contract.RiskMedium,
		Contradictions:   []string{},
		PolicyViolations: []string{},
		ShouldEscalate:   false,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
