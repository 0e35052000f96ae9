package tool

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"jomra/internal/domain"
)

// RateLimited wraps a tool with a token-bucket limiter. Calls over the limit
// fail fast with domain.ErrRateLimit rather than queueing.
type RateLimited struct {
	domain.Tool
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls per second with the given burst.
// A non-positive rate returns the tool unwrapped.
func NewRateLimited(t domain.Tool, perSecond float64, burst int) domain.Tool {
	if perSecond <= 0 {
		return t
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Tool: t, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Execute(ctx context.Context, params map[string]any) (*domain.ToolResult, error) {
	if !r.limiter.Allow() {
		return nil, fmt.Errorf("%w: tool %s", domain.ErrRateLimit, r.Name())
	}
	return r.Tool.Execute(ctx, params)
}
