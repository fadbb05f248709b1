// Package workflow defines the per-category agent profiles: the system prompt,
// the tool allow-list, and the conditions that warrant a human hand-off.
package workflow

import (
	"time"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/prompt"
)

// Signature is appended to every outbound customer reply.
const Signature = "\n\nCaz"

// EscalationContact is the named human owner for escalated conversations.
const EscalationContact = "Monica"

// Definition is one category agent profile. Tools lists the only tool names
// the agent may invoke for that category.
type Definition struct {
	Name               string
	Category           contract.WorkflowCategory
	SystemPrompt       string
	Tools              []string
	EscalationTriggers []string
}

// Definitions returns the full category-to-profile map. Prompts come from the
// embedded template set.
func Definitions() map[contract.WorkflowCategory]Definition {
	prompts := prompt.Load()

	defs := map[contract.WorkflowCategory]Definition{
		contract.CategoryShippingDelay: {
			Name:     "Shipping Delay Agent",
			Category: contract.CategoryShippingDelay,
			Tools:    []string{"shopify_get_customer_orders", "shopify_get_order_details", "shopify_add_tags"},
			EscalationTriggers: []string{
				"Customer waited past promised date and not delivered",
				"Customer requests resend after waiting period",
				"Multiple failed delivery attempts",
			},
		},
		contract.CategoryWrongMissingItem: {
			Name:     "Wrong/Missing Item Agent",
			Category: contract.CategoryWrongMissingItem,
			Tools: []string{
				"shopify_get_customer_orders",
				"shopify_get_order_details",
				"shopify_add_tags",
				"shopify_create_store_credit",
				"shopify_refund_order",
			},
			EscalationTriggers: []string{
				"Customer chooses reship option",
				"Unable to verify order details after customer provides info",
				"High value order with complex issues",
			},
		},
		contract.CategoryProductIssue: {
			Name:     "Product Issue Agent",
			Category: contract.CategoryProductIssue,
			Tools: []string{
				"shopify_get_customer_orders",
				"shopify_get_order_details",
				"shopify_add_tags",
				"shopify_create_store_credit",
				"shopify_refund_order",
				"shopify_get_product_recommendations",
				"shopify_get_related_knowledge_source",
			},
			EscalationTriggers: []string{
				"Customer reports adverse reaction",
				"Customer extremely upset after guidance",
				"Medical concerns mentioned",
			},
		},
		contract.CategoryRefundRequest: {
			Name:     "Refund Request Agent",
			Category: contract.CategoryRefundRequest,
			Tools: []string{
				"shopify_get_customer_orders",
				"shopify_get_order_details",
				"shopify_add_tags",
				"shopify_cancel_order",
				"shopify_create_store_credit",
				"shopify_refund_order",
				"shopify_get_product_recommendations",
			},
			EscalationTriggers: []string{
				"Customer refuses to wait for shipping delay",
				"Customer chooses replacement for damaged/wrong item",
				"Complex refund situation",
			},
		},
		contract.CategoryOrderModification: {
			Name:     "Order Modification Agent",
			Category: contract.CategoryOrderModification,
			Tools: []string{
				"shopify_get_customer_orders",
				"shopify_get_order_details",
				"shopify_cancel_order",
				"shopify_update_order_shipping_address",
				"shopify_add_tags",
			},
			EscalationTriggers: []string{
				"Order already shipped for address change",
				"Complex modification request",
				"Order placed on different date for address change",
			},
		},
		contract.CategoryPositiveFeedback: {
			Name:               "Positive Feedback Agent",
			Category:           contract.CategoryPositiveFeedback,
			Tools:              []string{"shopify_add_tags"},
			EscalationTriggers: nil,
		},
		contract.CategorySubscriptionBilling: {
			Name:     "Subscription Agent",
			Category: contract.CategorySubscriptionBilling,
			Tools: []string{
				"skio_get_subscription_status",
				"skio_cancel_subscription",
				"skio_pause_subscription",
				"skio_skip_next_order_subscription",
				"shopify_refund_order",
				"shopify_add_tags",
			},
			EscalationTriggers: []string{
				"Charged after cancellation confirmed",
				"Unable to access subscription",
				"Complex billing dispute",
				"Payment method update request",
			},
		},
		contract.CategoryDiscountCode: {
			Name:     "Discount Code Agent",
			Category: contract.CategoryDiscountCode,
			Tools:    []string{"shopify_create_discount_code", "shopify_add_tags"},
			EscalationTriggers: []string{
				"Customer already received a discount code this session",
				"Loyalty points issue (not discount code)",
			},
		},
		contract.CategoryUnknown: {
			Name:     "General Support Agent",
			Category: contract.CategoryUnknown,
			Tools: []string{
				"shopify_get_customer_orders",
				"shopify_get_order_details",
				"shopify_get_related_knowledge_source",
			},
			EscalationTriggers: []string{
				"Unable to understand customer request after clarifying questions",
				"Request outside documented workflows after trying to help",
			},
		},
	}

	for cat, def := range defs {
		def.SystemPrompt = prompts.Categories[cat]
		defs[cat] = def
	}
	return defs
}

// ForCategory returns the profile for cat, falling back to the general
// support profile for anything unrecognized.
func ForCategory(defs map[contract.WorkflowCategory]Definition, cat contract.WorkflowCategory) Definition {
	if def, ok := defs[cat]; ok {
		return def
	}
	return defs[contract.CategoryUnknown]
}

// WaitPromise returns the delivery wait phrasing for a reply composed at now.
// Early in the week the customer is told to wait until Friday; from Thursday
// on the promise rolls to early next week.
func WaitPromise(now time.Time) (waitUntil string, earlyWeek bool) {
	switch now.Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday:
		return "Friday", true
	default:
		return "early next week", false
	}
}
