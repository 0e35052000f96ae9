package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"jomra/internal/domain"
)

const defaultSystemPrompt = "You are a concise assistant inside a multi-agent system. Answer the request directly."

// AnthropicClient implements domain.APIClient with the Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient builds a client for model. maxTokens <= 0 uses 1024.
func NewAnthropicClient(apiKey, model string, maxTokens int64) *AnthropicClient {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClient{client: &c, model: model, maxTokens: maxTokens}
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string { return c.model }

// Complete sends one user turn and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %v", domain.ErrProviderError, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

var _ domain.APIClient = (*AnthropicClient)(nil)

// RemoteAgent answers through an external completion API. The client on the
// execution context wins over the one given at construction.
type RemoteAgent struct {
	*base
	client domain.APIClient
	system string
	model  string
	logger *slog.Logger
}

// RemoteOptions configures a RemoteAgent.
type RemoteOptions struct {
	ID           string
	Model        string
	SystemPrompt string
	Latency      time.Duration
}

// NewRemoteAgent creates the remote agent. client may be nil when every
// request carries one on its execution context.
func NewRemoteAgent(client domain.APIClient, opts RemoteOptions, logger *slog.Logger) *RemoteAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ID == "" {
		opts.ID = "remote_agent"
	}
	if opts.Latency <= 0 {
		opts.Latency = 2 * time.Second
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &RemoteAgent{
		base: newBase(opts.ID, "Remote API Agent", opts.Latency,
			domain.CapAPIIntegration, domain.CapQuestionAnswering),
		client: client,
		system: opts.SystemPrompt,
		model:  opts.Model,
		logger: logger,
	}
}

func (a *RemoteAgent) Initialize(context.Context) error {
	if a.client == nil {
		a.markDown("no API client")
		return domain.NewAgentError(domain.KindConfigurationError, "remote agent has no API client", nil)
	}
	a.markReady()
	return nil
}

func (a *RemoteAgent) Process(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return domain.ErrorResponse("Empty input"), nil
	}

	client := a.client
	if c := ec.APIClient(); c != nil {
		client = c
	}

	text, err := client.Complete(ctx, a.system, input.Text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, domain.NewAgentError(domain.KindTimeout, "remote call cancelled", err)
		}
		a.markDegraded("remote call failed")
		a.logger.Warn("remote completion failed", "agent", a.ID(), "error", err)
		return nil, domain.NewAgentError(domain.KindInferenceError, "remote completion failed", err)
	}
	if a.Health().State == domain.HealthDegraded {
		a.markReady()
	}
	if strings.TrimSpace(text) == "" {
		return domain.NewResponse().
			Status(domain.StatusInsufficientConfidence).
			Text("The remote service returned no answer.").
			Build(), nil
	}

	b := domain.NewResponse().Text(text).Confidence(0.9)
	if a.model != "" {
		b.Meta("model", a.model)
	}
	return b.Build(), nil
}

func (a *RemoteAgent) Shutdown(context.Context) error {
	a.markDown("shut down")
	return nil
}

var _ domain.Agent = (*RemoteAgent)(nil)
