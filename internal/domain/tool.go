package domain

import (
	"context"
	"time"
)

// ToolParameter describes one named input a tool accepts.
type ToolParameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	Success       bool           `json:"success"`
	Text          string         `json:"text"`
	Data          map[string]any `json:"data,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Execute(ctx context.Context, params map[string]any) (*ToolResult, error)
}

// ToolRegistry abstracts tool lookup.
type ToolRegistry interface {
	Get(name string) (Tool, error)
	List() []Tool
}
