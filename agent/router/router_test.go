package router

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
}

func (f *fakeGateway) Generate(ctx context.Context, prompt string, agentLabel string, opts ...contract.GenerateOption) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestRouteParsesClassification(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"category":"refund_request","confidence":0.92,"reasoning":"asks for money back"}`}
	r := New(gw, "classify the inquiry", zerolog.Nop())

	result := r.Route(context.Background(), "I want my money back", nil)
	if result.Category != contract.CategoryRefundRequest {
		t.Fatalf("expected refund_request, got %s", result.Category)
	}
	if result.Confidence != 0.92 {
		t.Fatalf("unexpected confidence %v", result.Confidence)
	}
}

func TestRouteFencedResponse(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: "```json\n{\"category\":\"shipping_delay\",\"confidence\":0.8,\"reasoning\":\"wismo\"}\n```"}
	r := New(gw, "classify", zerolog.Nop())

	result := r.Route(context.Background(), "where is my order?", nil)
	if result.Category != contract.CategoryShippingDelay {
		t.Fatalf("expected shipping_delay, got %s", result.Category)
	}
}

func TestRouteUnknownCategoryCoerced(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"category":"made_up_bucket","confidence":0.5,"reasoning":"?"}`}
	r := New(gw, "classify", zerolog.Nop())

	result := r.Route(context.Background(), "hello", nil)
	if result.Category != contract.CategoryUnknown {
		t.Fatalf("expected unknown, got %s", result.Category)
	}
}

func TestRouteMalformedResponse(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: "I think this is a refund"}
	r := New(gw, "classify", zerolog.Nop())

	result := r.Route(context.Background(), "hello", nil)
	if result.Category != contract.CategoryUnknown {
		t.Fatalf("expected unknown, got %s", result.Category)
	}
	if result.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", result.Confidence)
	}
}

func TestRouteGatewayFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("upstream down")}
	r := New(gw, "classify", zerolog.Nop())

	result := r.Route(context.Background(), "hello", nil)
	if result.Category != contract.CategoryUnknown || result.Confidence != 0 {
		t.Fatalf("expected unknown fallback, got %+v", result)
	}
}

func TestRoutePromptIncludesHistory(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{response: `{"category":"unknown","confidence":0.1,"reasoning":"-"}`}
	r := New(gw, "classify", zerolog.Nop())

	history := []contract.Message{
		{Role: contract.RoleCustomer, Content: "my patches never arrived"},
		{Role: contract.RoleAgent, Content: "let me check"},
	}
	r.Route(context.Background(), "any update?", history)

	if len(gw.prompts) != 1 {
		t.Fatalf("expected one generation, got %d", len(gw.prompts))
	}
	prompt := gw.prompts[0]
	for _, want := range []string{
		"CONVERSATION HISTORY:",
		"CUSTOMER: my patches never arrived",
		"AGENT: let me check",
		"NEW MESSAGE:\nany update?",
		"Classify this inquiry:",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
