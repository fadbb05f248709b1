// Package router classifies inbound customer messages into workflow
// categories. Routing never fails the pipeline; anything it cannot parse
// falls back to the unknown category at zero confidence.
package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
	"github.com/natpat/caz/agent/parse"
)

type Router struct {
	gateway contract.Gateway
	prompt  string
	log     zerolog.Logger
}

func New(gateway contract.Gateway, classifierPrompt string, log zerolog.Logger) *Router {
	return &Router{gateway: gateway, prompt: classifierPrompt, log: log}
}

// Route classifies message in light of the prior conversation. The returned
// category is always a member of the closed set.
func (r *Router) Route(ctx context.Context, message string, history []contract.Message) contract.RoutingResult {
	fallback := contract.RoutingResult{
		Category:   contract.CategoryUnknown,
		Confidence: 0,
		Reasoning:  "Failed to parse routing response",
	}

	prompt := r.buildPrompt(message, history)

	raw, err := r.gateway.Generate(ctx, prompt, "router")
	if err != nil {
		r.log.Error().Err(err).Msg("routing generation failed")
		return fallback
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(parse.ExtractJSON(raw)), &parsed); err != nil {
		r.log.Error().Err(err).Str("response", raw).Msg("routing parse failed")
		return fallback
	}

	result := contract.RoutingResult{
		Category:   contract.ParseCategory(parsed.Category),
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
	}
	r.log.Info().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Msg("message routed")
	return result
}

func (r *Router) buildPrompt(message string, history []contract.Message) string {
	var b strings.Builder
	b.WriteString(r.prompt)
	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	b.WriteString("\n\nNEW MESSAGE:\n")
	b.WriteString(message)
	b.WriteString("\n\nClassify this inquiry:")
	return b.String()
}
