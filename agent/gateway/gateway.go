// Package gateway wraps the OpenAI-compatible chat completion endpoint behind
// the single prompt-in, text-out call the pipeline agents use.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/natpat/caz/agent/contract"
)

type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionTokens int           `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"2000"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// OpenAI is the production Gateway. One client, one model; per-call
// temperature overrides come in through GenerateOptions.
type OpenAI struct {
	client    *openaisdk.Client
	model     string
	maxTokens int
	temp      float64
	log       zerolog.Logger
}

var _ contract.Gateway = (*OpenAI)(nil)

func New(cfg Config, log zerolog.Logger) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", contract.ErrGeneration)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", contract.ErrGeneration)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)

	maxTokens := cfg.MaxCompletionTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &OpenAI{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		temp:      cfg.Temperature,
		log:       log,
	}, nil
}

func MustNew(cfg Config, log zerolog.Logger) *OpenAI {
	g, err := New(cfg, log)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *OpenAI) Generate(ctx context.Context, prompt string, agentLabel string, opts ...contract.GenerateOption) (string, error) {
	options := contract.ApplyGenerateOptions(opts)

	temp := g.temp
	if options.Temperature != nil {
		temp = *options.Temperature
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		Model:               shared.ChatModel(g.model),
		Temperature:         openaisdk.Float(temp),
		MaxCompletionTokens: openaisdk.Int(int64(g.maxTokens)),
	})
	if err != nil {
		g.log.Error().Err(err).Str("agent", agentLabel).Msg("chat completion failed")
		return "", fmt.Errorf("%w: %s: %v", contract.ErrGeneration, agentLabel, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: empty choices", contract.ErrGeneration, agentLabel)
	}

	text := resp.Choices[0].Message.Content
	g.log.Debug().
		Str("agent", agentLabel).
		Dur("elapsed", time.Since(start)).
		Int("response_chars", len(text)).
		Msg("chat completion ok")

	return text, nil
}
