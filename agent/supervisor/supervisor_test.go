package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
)

type fakeGateway struct {
	response string
	err      error
	prompts  []string
	temps    []*float64
}

func (f *fakeGateway) Generate(ctx context.Context, prompt string, agentLabel string, opts ...contract.GenerateOption) (string, error) {
	f.prompts = append(f.prompts, prompt)
	options := contract.ApplyGenerateOptions(opts)
	f.temps = append(f.temps, options.Temperature)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestReviewApproved(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"approved":true,"riskLevel":"low","contradictions":[],"policyViolations":[],"shouldEscalate":false}`}
	s := New(gw, "review prompt", zerolog.Nop())

	review := s.Review(context.Background(), ReviewInput{
		CustomerName:     "Anna",
		SessionID:        "s1",
		WorkflowCategory: contract.CategoryShippingDelay,
		ProposedResponse: "Could you share your order number?",
	})

	if !review.Approved {
		t.Fatalf("expected approval")
	}
	if review.RiskLevel != contract.RiskLow {
		t.Fatalf("unexpected risk %q", review.RiskLevel)
	}
	if review.ShouldEscalate {
		t.Fatalf("unexpected escalation")
	}
	if review.ReviewedAt.IsZero() {
		t.Fatalf("expected reviewed timestamp")
	}

	if len(gw.temps) != 1 || gw.temps[0] == nil || *gw.temps[0] != 0.1 {
		t.Fatalf("expected review temperature 0.1, got %v", gw.temps)
	}
}

func TestReviewCriticalEscalation(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"approved":false,"riskLevel":"critical","contradictions":[],"policyViolations":["legal threat"],"shouldEscalate":true,"escalationReason":"Customer mentions lawyer"}`}
	s := New(gw, "review prompt", zerolog.Nop())

	review := s.Review(context.Background(), ReviewInput{
		CustomerName:     "Anna",
		ProposedResponse: "We will have our legal team respond.",
	})

	if review.Approved {
		t.Fatalf("expected rejection")
	}
	if !review.ShouldEscalate || review.RiskLevel != contract.RiskCritical {
		t.Fatalf("expected critical escalation, got %+v", review)
	}
	if review.EscalationReason != "Customer mentions lawyer" {
		t.Fatalf("unexpected reason %q", review.EscalationReason)
	}
}

func TestReviewContradictionsForceRejection(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"approved":true,"riskLevel":"low","contradictions":[],"policyViolations":[],"shouldEscalate":false}`}
	s := New(gw, "review prompt", zerolog.Nop())

	review := s.Review(context.Background(), ReviewInput{
		CustomerName:     "Anna",
		ProposedResponse: "I'll process this immediately for you.",
		PromisesMade:     []string{"asked customer to wait until Friday"},
	})

	if review.Approved {
		t.Fatalf("a detected contradiction must force rejection")
	}
	if len(review.Contradictions) == 0 {
		t.Fatalf("expected contradictions to be recorded")
	}
	// The verdict stays advisory: rejection alone never escalates.
	if review.ShouldEscalate {
		t.Fatalf("contradiction must not escalate on its own")
	}
}

func TestReviewModelContradictionsForceRejection(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"approved":true,"riskLevel":"low","contradictions":["reply contradicts an earlier promise"],"policyViolations":[],"shouldEscalate":false}`}
	s := New(gw, "review prompt", zerolog.Nop())

	// No promises recorded, so the heuristics stay quiet; the model alone
	// reports the contradiction.
	review := s.Review(context.Background(), ReviewInput{
		CustomerName:     "Anna",
		ProposedResponse: "I'll ship a replacement today.",
	})

	if review.Approved {
		t.Fatalf("model-reported contradictions must force rejection, got %+v", review)
	}
	if len(review.Contradictions) != 1 || review.Contradictions[0] != "reply contradicts an earlier promise" {
		t.Fatalf("unexpected contradictions %v", review.Contradictions)
	}
	if review.ShouldEscalate {
		t.Fatalf("contradiction must not escalate on its own")
	}
}

func TestReviewGatewayFailureDefaults(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("model down")}
	s := New(gw, "review prompt", zerolog.Nop())

	review := s.Review(context.Background(), ReviewInput{ProposedResponse: "hello"})

	if !review.Approved {
		t.Fatalf("review failure must default to approval")
	}
	if review.RiskLevel != contract.RiskMedium {
		t.Fatalf("expected medium default, got %q", review.RiskLevel)
	}
	if review.ShouldEscalate {
		t.Fatalf("default review must not escalate")
	}
}

func TestReviewUnparseableDefaults(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: "looks fine to me"}
	s := New(gw, "review prompt", zerolog.Nop())

	review := s.Review(context.Background(), ReviewInput{ProposedResponse: "hello"})
	if !review.Approved || review.RiskLevel != contract.RiskMedium {
		t.Fatalf("expected cautious default, got %+v", review)
	}
}

func TestReviewPromptSections(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"approved":true,"riskLevel":"low"}`}
	s := New(gw, "review prompt", zerolog.Nop())

	s.Review(context.Background(), ReviewInput{
		CustomerName:     "Anna",
		SessionID:        "s1",
		WorkflowCategory: contract.CategoryRefundRequest,
		PreviousMessages: []contract.Message{
			{Role: contract.RoleCustomer, Content: "refund please"},
		},
		PreviousToolCalls: []contract.ToolCall{
			{ToolName: "shopify_get_order_details", Success: true, Input: map[string]any{"orderId": "NP1"}},
		},
		ProposedResponse: "I can offer store credit.",
		PromisesMade:     []string{"store credit offered"},
	})

	prompt := gw.prompts[0]
	for _, want := range []string{
		"REVIEW REQUEST:",
		"CUSTOMER: Anna",
		"WORKFLOW: refund_request",
		"CUSTOMER: refund please",
		"- shopify_get_order_details: SUCCESS",
		"PROMISES MADE TO CUSTOMER:\nstore credit offered",
		`PROPOSED RESPONSE TO REVIEW:`,
		"I can offer store credit.",
		"Review this response and provide your assessment:",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestQuickRiskCheck(t *testing.T) {
	t.Parallel()

	s := New(&fakeGateway{}, "p", zerolog.Nop())

	result := s.QuickRiskCheck("I'll process a full refund for you.", []contract.ToolCall{
		{ToolName: "shopify_refund_order"},
		{ToolName: "shopify_get_order_details"},
	})

	if !result.HasHighRiskActions {
		t.Fatalf("expected high risk flags")
	}
	joined := strings.Join(result.Reasons, "; ")
	if !strings.Contains(joined, "High-risk action: shopify_refund_order") {
		t.Fatalf("missing tool flag: %v", result.Reasons)
	}

	clean := s.QuickRiskCheck("Could you share your order number?", nil)
	if clean.HasHighRiskActions {
		t.Fatalf("benign reply flagged: %v", clean.Reasons)
	}
}

func TestPromiseContradictions(t *testing.T) {
	t.Parallel()

	s := New(&fakeGateway{}, "p", zerolog.Nop())

	got := s.PromiseContradictions(
		"I'll refund to your original payment right now.",
		[]string{"asked to wait until Friday", "store credit offered"},
	)
	if len(got) != 2 {
		t.Fatalf("expected both heuristics to fire, got %v", got)
	}

	none := s.PromiseContradictions("Thanks for waiting!", []string{"asked to wait until Friday"})
	if len(none) != 0 {
		t.Fatalf("unexpected contradictions %v", none)
	}
}
