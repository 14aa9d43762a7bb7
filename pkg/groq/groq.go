// Package groq wraps the OpenAI-compatible Groq chat completions API
// behind the pipeline's Completer contract.
package groq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.groq.com/openai/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	ExtractModel       string        `envconfig:"EXTRACT_MODEL" split_words:"true" default:"llama-3.3-70b-versatile"`
	ExpertModel        string        `envconfig:"EXPERT_MODEL" split_words:"true" default:"llama-3.1-8b-instant"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client issues single-attempt chat completions against one model.
type Client struct {
	api         openaisdk.Client
	model       string
	temperature float64
	maxTokens   int64
}

var _ contractx.Completer = (*Client)(nil)

// NewClient builds a completion client for the given model name. Two
// clients over the same Config cover the pipeline's capability tiers:
// cfg.ExtractModel for intent extraction, cfg.ExpertModel for the
// cheaper expert checks.
func NewClient(cfg Config, model string) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("groq api key is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("groq model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		api:         openaisdk.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxCompletionToken),
	}, nil
}

func MustNewClient(cfg Config, model string) *Client {
	client, err := NewClient(cfg, model)
	if err != nil {
		panic(err)
	}
	return client
}

func (c *Client) Complete(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(req.Prompt),
		},
		Temperature: openaisdk.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(c.maxTokens)
	}
	if req.ExpectJSON {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaisdk.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: groq completion: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: groq returned no choices", contractx.ErrModelInvoke)
	}
	return resp.Choices[0].Message.Content, nil
}
