package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/natpat/caz/agent/contract"
)

func TestDefinitionsCoverAllCategories(t *testing.T) {
	t.Parallel()

	defs := Definitions()
	for _, cat := range contract.Categories() {
		def, ok := defs[cat]
		if !ok {
			t.Fatalf("missing definition for %s", cat)
		}
		if def.Name == "" {
			t.Fatalf("definition for %s has no name", cat)
		}
		if def.SystemPrompt == "" {
			t.Fatalf("definition for %s has no system prompt", cat)
		}
		if def.Category != cat {
			t.Fatalf("definition for %s claims category %s", cat, def.Category)
		}
	}
}

func TestSystemPromptsExpandBehavior(t *testing.T) {
	t.Parallel()

	defs := Definitions()
	for cat, def := range defs {
		if strings.Contains(def.SystemPrompt, "{{behavior}}") {
			t.Fatalf("unexpanded behavior placeholder in %s prompt", cat)
		}
	}

	// Only the interactive workflows carry the shared questioning rules;
	// positive feedback does not.
	if !strings.Contains(defs[contract.CategoryShippingDelay].SystemPrompt, "ALWAYS gather information BEFORE") {
		t.Fatalf("shipping delay prompt missing shared interaction rules")
	}
}

func TestToolAllowLists(t *testing.T) {
	t.Parallel()

	defs := Definitions()

	feedback := defs[contract.CategoryPositiveFeedback]
	if len(feedback.Tools) != 1 || feedback.Tools[0] != "shopify_add_tags" {
		t.Fatalf("unexpected feedback tools %v", feedback.Tools)
	}

	sub := defs[contract.CategorySubscriptionBilling]
	found := false
	for _, tool := range sub.Tools {
		if tool == "skio_cancel_subscription" {
			found = true
		}
		if strings.HasPrefix(tool, "shopify_cancel") {
			t.Fatalf("subscription agent must not cancel orders: %v", sub.Tools)
		}
	}
	if !found {
		t.Fatalf("subscription agent missing skio cancel tool: %v", sub.Tools)
	}
}

func TestForCategoryFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	defs := Definitions()
	def := ForCategory(defs, contract.WorkflowCategory("no_such_bucket"))
	if def.Name != "General Support Agent" {
		t.Fatalf("expected general fallback, got %q", def.Name)
	}
}

func TestWaitPromise(t *testing.T) {
	t.Parallel()

	cases := []struct {
		day       time.Time
		wantUntil string
		wantEarly bool
	}{
		{time.Date(2025, time.July, 21, 9, 0, 0, 0, time.UTC), "Friday", true},  // Monday
		{time.Date(2025, time.July, 23, 9, 0, 0, 0, time.UTC), "Friday", true},  // Wednesday
		{time.Date(2025, time.July, 24, 9, 0, 0, 0, time.UTC), "early next week", false}, // Thursday
		{time.Date(2025, time.July, 26, 9, 0, 0, 0, time.UTC), "early next week", false}, // Saturday
		{time.Date(2025, time.July, 27, 9, 0, 0, 0, time.UTC), "early next week", false}, // Sunday
	}

	for _, tc := range cases {
		until, early := WaitPromise(tc.day)
		if until != tc.wantUntil || early != tc.wantEarly {
			t.Fatalf("%s: got (%q, %t), want (%q, %t)",
				tc.day.Weekday(), until, early, tc.wantUntil, tc.wantEarly)
		}
	}
}
