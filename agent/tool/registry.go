package tool

import (
	"context"
	"fmt"

	"github.com/natpat/caz/agent/contract"
)

// apiTool is the concrete catalog entry. normalize may rewrite or reject
// params before the HTTP call; a nil normalize posts params unchanged.
type apiTool struct {
	client      *Client
	name        string
	description string
	action      string
	parameters  map[string]any
	normalize   func(params map[string]any) (map[string]any, error)
}

func (t *apiTool) Name() string               { return t.name }
func (t *apiTool) Description() string        { return t.description }
func (t *apiTool) Parameters() map[string]any { return t.parameters }

func (t *apiTool) Execute(ctx context.Context, params map[string]any) contract.ToolResponse {
	if params == nil {
		params = map[string]any{}
	}
	if t.normalize != nil {
		normalized, err := t.normalize(params)
		if err != nil {
			return contract.ToolResponse{Success: false, Error: err.Error()}
		}
		params = normalized
	}
	return t.client.post(ctx, t.action, params)
}

// Registry is the fixed catalog of commerce actions available to the
// category agents.
type Registry struct {
	tools map[string]contract.Tool
}

func (r *Registry) Lookup(name string) (contract.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the catalog in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

func objectSchema(required []string, props map[string]any) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

// NewRegistry builds the full catalog against one backend client.
func NewRegistry(client *Client) *Registry {
	tools := []*apiTool{
		{
			name:        "shopify_get_customer_orders",
			description: "Get customer orders by email",
			action:      "get_customer_orders",
			parameters: objectSchema([]string{"email"}, map[string]any{
				"email": map[string]any{"type": "string", "description": "Customer email"},
				"after": map[string]any{"type": "string", "description": `Cursor for pagination, "null" for first page`},
				"limit": map[string]any{"type": "number", "description": "Number of orders to return, max 250"},
			}),
			normalize: func(params map[string]any) (map[string]any, error) {
				if _, ok := params["after"]; !ok {
					params["after"] = "null"
				}
				if _, ok := params["limit"]; !ok {
					params["limit"] = 10
				}
				return params, nil
			},
		},
		{
			name:        "shopify_get_order_details",
			description: "Get detailed information for a single order",
			action:      "get_order_details",
			parameters: objectSchema(nil, map[string]any{
				"orderId":      map[string]any{"type": "string", "description": "Order number or identifier (e.g. NP8073419 or #1234)"},
				"order_number": map[string]any{"type": "string", "description": "Alias for orderId"},
			}),
			normalize: func(params map[string]any) (map[string]any, error) {
				id, _ := params["orderId"].(string)
				if id == "" {
					id, _ = params["order_number"].(string)
				}
				if id == "" {
					return nil, fmt.Errorf("missing required parameter: orderId or order_number")
				}
				params["orderId"] = id
				return params, nil
			},
		},
		{
			name:        "shopify_add_tags",
			description: "Add tags to an order, customer, or product",
			action:      "add_tags",
			parameters: objectSchema([]string{"id", "tags"}, map[string]any{
				"id":   map[string]any{"type": "string", "description": "Shopify resource GID"},
				"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Tags to add"},
			}),
		},
		{
			name:        "shopify_cancel_order",
			description: "Cancel an order",
			action:      "cancel_order",
			parameters: objectSchema(
				[]string{"orderId", "reason", "notifyCustomer", "restock", "staffNote", "refundMode", "storeCredit"},
				map[string]any{
					"orderId":        map[string]any{"type": "string"},
					"reason":         map[string]any{"type": "string", "enum": []string{"CUSTOMER", "DECLINED", "FRAUD", "INVENTORY", "OTHER", "STAFF"}},
					"notifyCustomer": map[string]any{"type": "boolean"},
					"restock":        map[string]any{"type": "boolean"},
					"staffNote":      map[string]any{"type": "string"},
					"refundMode":     map[string]any{"type": "string", "enum": []string{"ORIGINAL", "STORE_CREDIT"}},
					"storeCredit":    map[string]any{"type": "object"},
				},
			),
		},
		{
			name:        "shopify_create_discount_code",
			description: "Create a discount code for the customer",
			action:      "create_discount_code",
			parameters: objectSchema([]string{"type", "value", "duration", "productIds"}, map[string]any{
				"type":       map[string]any{"type": "string", "description": "'percentage' (0-1) or 'fixed'"},
				"value":      map[string]any{"type": "number"},
				"duration":   map[string]any{"type": "number", "description": "Validity in hours"},
				"productIds": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
		},
		{
			name:        "shopify_create_store_credit",
			description: "Credit store credit to a customer",
			action:      "create_store_credit",
			parameters: objectSchema([]string{"id", "creditAmount", "expiresAt"}, map[string]any{
				"id":           map[string]any{"type": "string", "description": "Customer GID"},
				"creditAmount": map[string]any{"type": "object"},
				"expiresAt":    map[string]any{"type": []string{"string", "null"}},
			}),
		},
		{
			name:        "shopify_refund_order",
			description: "Refund an order",
			action:      "refund_order",
			parameters: objectSchema([]string{"orderId", "refundMethod"}, map[string]any{
				"orderId":      map[string]any{"type": "string"},
				"refundMethod": map[string]any{"type": "string", "enum": []string{"ORIGINAL_PAYMENT_METHODS", "STORE_CREDIT"}},
			}),
		},
		{
			name:        "shopify_create_return",
			description: "Create a return for an order",
			action:      "create_return",
			parameters: objectSchema([]string{"orderId"}, map[string]any{
				"orderId": map[string]any{"type": "string"},
			}),
		},
		{
			name:        "shopify_update_order_shipping_address",
			description: "Update an order shipping address",
			action:      "update_order_shipping_address",
			parameters: objectSchema([]string{"orderId", "shippingAddress"}, map[string]any{
				"orderId":         map[string]any{"type": "string"},
				"shippingAddress": map[string]any{"type": "object"},
			}),
		},
		{
			name:        "shopify_get_product_recommendations",
			description: "Get product recommendations based on keywords",
			action:      "get_product_recommendations",
			parameters: objectSchema([]string{"queryKeys"}, map[string]any{
				"queryKeys": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
		},
		{
			name:        "shopify_get_related_knowledge_source",
			description: "Get related FAQs and knowledge articles",
			action:      "get_related_knowledge_source",
			parameters: objectSchema([]string{"question", "specificToProductId"}, map[string]any{
				"question":            map[string]any{"type": "string"},
				"specificToProductId": map[string]any{"type": "string"},
			}),
		},
		{
			name:        "skio_get_subscription_status",
			description: "Get subscription status for a customer",
			action:      "get-subscription-status",
			parameters: objectSchema([]string{"email"}, map[string]any{
				"email": map[string]any{"type": "string"},
			}),
		},
		{
			name:        "skio_cancel_subscription",
			description: "Cancel a subscription",
			action:      "cancel-subscription",
			parameters: objectSchema([]string{"subscriptionId", "cancellationReasons"}, map[string]any{
				"subscriptionId":      map[string]any{"type": "string"},
				"cancellationReasons": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
		},
		{
			name:        "skio_pause_subscription",
			description: "Pause a subscription",
			action:      "pause-subscription",
			parameters: objectSchema([]string{"subscriptionId", "pausedUntil"}, map[string]any{
				"subscriptionId": map[string]any{"type": "string"},
				"pausedUntil":    map[string]any{"type": "string", "description": "Format: YYYY-MM-DD"},
			}),
		},
		{
			name:        "skio_skip_next_order_subscription",
			description: "Skip the next subscription order",
			action:      "skip-next-order-subscription",
			parameters: objectSchema([]string{"subscriptionId"}, map[string]any{
				"subscriptionId": map[string]any{"type": "string"},
			}),
		},
		{
			name:        "skio_unpause_subscription",
			description: "Unpause a subscription",
			action:      "unpause-subscription",
			parameters: objectSchema([]string{"subscriptionId"}, map[string]any{
				"subscriptionId": map[string]any{"type": "string"},
			}),
		},
	}

	registry := &Registry{tools: make(map[string]contract.Tool, len(tools))}
	for _, t := range tools {
		t.client = client
		registry.tools[t.name] = t
	}
	return registry
}
