package agent

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"jomra/internal/domain"
)

var (
	calcWords   = regexp.MustCompile(`(?i)calculate|math`)
	searchWords = regexp.MustCompile(`(?i)search|find`)
)

// ToolAgent dispatches a request to one tool chosen by keyword.
type ToolAgent struct {
	*base
	tools  domain.ToolRegistry
	logger *slog.Logger
}

// NewToolAgent creates the tool-using agent. When the execution context
// carries a tool registry it takes precedence over tools.
func NewToolAgent(tools domain.ToolRegistry, logger *slog.Logger) *ToolAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolAgent{
		base:   newBase("tool_agent", "Tool Agent", 500*time.Millisecond, domain.CapToolUsage),
		tools:  tools,
		logger: logger,
	}
}

func (a *ToolAgent) Initialize(context.Context) error {
	a.markReady()
	return nil
}

func (a *ToolAgent) Process(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	query := input.Text
	if strings.TrimSpace(query) == "" {
		return domain.ErrorResponse("Empty input"), nil
	}

	name, params := pickTool(query)
	if name == "" {
		return domain.NewResponse().
			Status(domain.StatusInsufficientConfidence).
			Text("I'm not sure which tool to use for this request.").
			Build(), nil
	}

	registry := a.tools
	if r := ec.Tools(); r != nil {
		registry = r
	}
	if registry == nil {
		return domain.ErrorResponse("Tool not found: " + name), nil
	}
	tool, err := registry.Get(name)
	if err != nil {
		return domain.ErrorResponse("Tool not found: " + name), nil
	}

	res, err := tool.Execute(ctx, params)
	if err != nil {
		a.logger.Warn("tool execution failed", "tool", name, "error", err)
		if errors.Is(err, domain.ErrRateLimit) {
			a.markDegraded("tool rate limited")
		}
		return domain.ErrorResponse("Tool execution failed: " + err.Error()), nil
	}
	if a.Health().State == domain.HealthDegraded {
		a.markReady()
	}

	b := domain.NewResponse().
		Text(res.Text).
		Confidence(1).
		Metadata(res.Data)
	if !res.Success {
		b.Error(res.ErrorMessage)
	}
	return b.Build(), nil
}

func (a *ToolAgent) Shutdown(context.Context) error {
	a.markDown("Not initialized")
	return nil
}

// pickTool maps a query onto a tool name and its parameters. An empty name
// means no tool fits.
func pickTool(query string) (string, map[string]any) {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "calculate") || strings.Contains(lower, "math"):
		return "calculator", map[string]any{
			"expression": strings.TrimSpace(calcWords.ReplaceAllString(query, "")),
		}
	case strings.Contains(lower, "system") || strings.Contains(lower, "device"):
		return "system_info", map[string]any{}
	case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
		return "web_search", map[string]any{
			"query": strings.TrimSpace(searchWords.ReplaceAllString(query, "")),
		}
	}
	return "", nil
}

var _ domain.Agent = (*ToolAgent)(nil)
