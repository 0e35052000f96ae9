package tool

import (
	"context"
	"strings"

	"jomra/internal/domain"
)

// WebSearch is an offline search stub that echoes the query. It marks the
// place where a real search backend plugs in.
type WebSearch struct{}

func NewWebSearch() *WebSearch { return &WebSearch{} }

func (*WebSearch) Name() string        { return "web_search" }
func (*WebSearch) Description() string { return "Search web" }
func (*WebSearch) Parameters() []domain.ToolParameter {
	return []domain.ToolParameter{{Name: "query", Description: "Search query", Required: true}}
}

func (*WebSearch) Execute(_ context.Context, params map[string]any) (*domain.ToolResult, error) {
	q := strings.TrimSpace(stringParam(params, "query"))
	return &domain.ToolResult{
		Success: true,
		Text:    "Results for " + q,
		Data:    map[string]any{"query": q},
	}, nil
}
