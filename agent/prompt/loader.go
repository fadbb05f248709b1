package prompt

import (
	_ "embed"
	"strings"

	"github.com/natpat/caz/agent/contract"
)

var (
	//go:embed template/behavior.txt
	behaviorRaw string

	//go:embed template/router.txt
	routerRaw string

	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/shipping_delay.txt
	shippingDelayRaw string

	//go:embed template/wrong_missing_item.txt
	wrongMissingItemRaw string

	//go:embed template/product_issue_no_effect.txt
	productIssueRaw string

	//go:embed template/refund_request.txt
	refundRequestRaw string

	//go:embed template/order_modification.txt
	orderModificationRaw string

	//go:embed template/positive_feedback.txt
	positiveFeedbackRaw string

	//go:embed template/subscription_billing.txt
	subscriptionBillingRaw string

	//go:embed template/discount_code.txt
	discountCodeRaw string

	//go:embed template/general.txt
	generalRaw string
)

// Set holds loaded prompt content keyed by its role in the pipeline.
type Set struct {
	Behavior   string
	Router     string
	Supervisor string
	Categories map[contract.WorkflowCategory]string
}

// Load returns a Set with trimmed prompt strings. Category prompts carrying a
// {{behavior}} placeholder get the shared interaction rules substituted in.
// Safe to call concurrently; the embed is compile-time and substitution is cheap.
func Load() Set {
	behavior := strings.TrimSpace(behaviorRaw)

	withBehavior := func(raw string) string {
		return strings.TrimSpace(strings.ReplaceAll(raw, "{{behavior}}", behavior))
	}

	return Set{
		Behavior:   behavior,
		Router:     strings.TrimSpace(routerRaw),
		Supervisor: strings.TrimSpace(supervisorRaw),
		Categories: map[contract.WorkflowCategory]string{
			contract.CategoryShippingDelay:       withBehavior(shippingDelayRaw),
			contract.CategoryWrongMissingItem:    withBehavior(wrongMissingItemRaw),
			contract.CategoryProductIssue:        withBehavior(productIssueRaw),
			contract.CategoryRefundRequest:       withBehavior(refundRequestRaw),
			contract.CategoryOrderModification:   withBehavior(orderModificationRaw),
			contract.CategoryPositiveFeedback:    strings.TrimSpace(positiveFeedbackRaw),
			contract.CategorySubscriptionBilling: withBehavior(subscriptionBillingRaw),
			contract.CategoryDiscountCode:        withBehavior(discountCodeRaw),
			contract.CategoryUnknown:             withBehavior(generalRaw),
		},
	}
}
