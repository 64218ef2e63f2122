// Package completion talks to an OpenAI-compatible chat completion API and
// turns whatever comes back into a reply the user can read.
package completion

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

// SystemDirective is sent as the system message of every completion.
const SystemDirective = "You are Aviya. Reply in 2–3 warm sentences."

// FallbackReply is used when no usable text comes back.
const FallbackReply = "I couldn’t think for a second, can you say it again?"

// Outcome classifies how a completion call ended.
type Outcome string

// Completion outcomes.
const (
	OutcomeOK            Outcome = "ok"
	OutcomeFallback      Outcome = "fallback"
	OutcomeProviderError Outcome = "provider_error"
)

// Result is the reply text plus how it was obtained.
type Result struct {
	Text    string
	Outcome Outcome
}

// Gateway produces a reply for a composed prompt. It never fails: every
// failure mode degrades to some reply text.
type Gateway interface {
	Complete(ctx context.Context, prompt string) Result
}

// Config configures an OpenAIGateway.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	// Timeout bounds a single call. Zero leaves it to the caller's context.
	Timeout time.Duration
	// SurfaceProviderErrors returns the provider's error message as the reply.
	SurfaceProviderErrors bool
	HTTPClient            *http.Client
}

// OpenAIGateway implements Gateway with the openai-go client.
type OpenAIGateway struct {
	client openai.Client
	cfg    Config
}

// NewOpenAIGateway creates a gateway. The SDK's own retries are disabled.
func NewOpenAIGateway(cfg Config) *OpenAIGateway {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIGateway{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

// Complete implements Gateway.
func (g *OpenAIGateway) Complete(ctx context.Context, prompt string) Result {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemDirective),
			openai.UserMessage(prompt),
		},
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(g.cfg.MaxTokens)
	}
	params.Temperature = openai.Float(g.cfg.Temperature)

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			slog.Warn("Completion provider returned an error",
				"status", apiErr.StatusCode,
				"message", apiErr.Message)
			return g.providerError(apiErr.Message)
		}
		slog.Warn("Completion request failed", "error", err)
		return fallback()
	}

	if len(resp.Choices) > 0 {
		if text := strings.TrimSpace(resp.Choices[0].Message.Content); text != "" {
			return Result{Text: text, Outcome: OutcomeOK}
		}
	}

	// Some compatible providers answer 2xx with an error object.
	if msg := gjson.Get(resp.RawJSON(), "error.message").String(); msg != "" {
		slog.Warn("Completion payload carried an error", "message", msg)
		return g.providerError(msg)
	}

	slog.Warn("Completion returned no content", "model", g.cfg.Model)
	return fallback()
}

func (g *OpenAIGateway) providerError(msg string) Result {
	if !g.cfg.SurfaceProviderErrors || strings.TrimSpace(msg) == "" {
		return fallback()
	}
	return Result{Text: msg, Outcome: OutcomeProviderError}
}

func fallback() Result {
	return Result{Text: FallbackReply, Outcome: OutcomeFallback}
}
