package tool

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"jomra/internal/domain"
	"jomra/internal/infra/tracer"
)

// ExecError is a tool failure carrying a user-facing message. It unwraps to
// domain.ErrToolFailure.
type ExecError struct {
	Tool string
	Msg  string
}

func (e *ExecError) Error() string { return e.Msg }
func (e *ExecError) Unwrap() error { return domain.ErrToolFailure }

func failf(tool, msg string) error {
	return &ExecError{Tool: tool, Msg: msg}
}

// instrumented wraps a tool with a trace span and execution timing.
type instrumented struct {
	domain.Tool
	logger *slog.Logger
}

func (t *instrumented) Execute(ctx context.Context, params map[string]any) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+t.Name(),
		trace.WithAttributes(tracer.StringAttr("tool.name", t.Name())),
	)
	defer span.End()

	start := time.Now()
	res, err := t.Tool.Execute(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		tracer.RecordError(span, err)
		t.logger.Warn("tool failed", "tool", t.Name(), "error", err, "duration", elapsed)
		return nil, err
	}
	if res == nil {
		res = &domain.ToolResult{Success: true}
	}
	if res.ExecutionTime == 0 {
		res.ExecutionTime = elapsed
	}
	if res.Success {
		tracer.SetOK(span)
	} else {
		span.SetAttributes(tracer.StringAttr("tool.error", res.ErrorMessage))
	}
	return res, nil
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
