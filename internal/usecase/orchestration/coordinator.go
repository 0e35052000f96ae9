package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"jomra/internal/domain"
	"jomra/internal/infra/tracer"
	"jomra/internal/usecase/eventbus"
)

// BreakerConfig configures the per-agent circuit breaker.
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// CoordinatorConfig bounds agent execution.
type CoordinatorConfig struct {
	Workers       int
	TimeoutFactor int
	MinTimeout    time.Duration
	MaxTimeout    time.Duration
	EnsembleWait  time.Duration
	Breaker       BreakerConfig
}

// DefaultCoordinatorConfig returns three workers, a 5s to 30s per-call
// window and a 15s ensemble wait.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Workers:       3,
		TimeoutFactor: 3,
		MinTimeout:    5 * time.Second,
		MaxTimeout:    30 * time.Second,
		EnsembleWait:  15 * time.Second,
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
	}
}

func (c *CoordinatorConfig) applyDefaults() {
	d := DefaultCoordinatorConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.TimeoutFactor <= 0 {
		c.TimeoutFactor = d.TimeoutFactor
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = d.MinTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = d.MaxTimeout
	}
	if c.EnsembleWait <= 0 {
		c.EnsembleWait = d.EnsembleWait
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = d.Breaker.MaxFailures
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = d.Breaker.Timeout
	}
	if c.Breaker.Interval <= 0 {
		c.Breaker.Interval = d.Breaker.Interval
	}
}

// AgentLookup resolves agent ids for pipelines.
type AgentLookup interface {
	Get(id string) (domain.Agent, bool)
}

// Coordinator runs agents on a bounded worker pool with per-call deadlines.
// It never returns raw errors: every outcome is an AgentResponse.
type Coordinator struct {
	cfg    CoordinatorConfig
	sem    *semaphore.Weighted
	agents AgentLookup
	bus    domain.EventBus
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*domain.AgentResponse]

	latency   metric.Float64Histogram
	responses metric.Int64Counter
}

// NewCoordinator creates a Coordinator. bus may be nil.
func NewCoordinator(cfg CoordinatorConfig, agents AgentLookup, bus domain.EventBus, logger *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	meter := tracer.Meter("orchestration")
	lat, _ := meter.Float64Histogram("jomra.agent.latency",
		metric.WithDescription("Agent call latency (ms)"),
		metric.WithUnit("ms"),
	)
	resp, _ := meter.Int64Counter("jomra.agent.responses",
		metric.WithDescription("Agent responses by status"),
	)
	return &Coordinator{
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
		agents:    agents,
		bus:       bus,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*domain.AgentResponse]),
		latency:   lat,
		responses: resp,
	}
}

// Timeout is the per-call bound for a: latency × factor clamped to
// [MinTimeout, MaxTimeout].
func (c *Coordinator) Timeout(a domain.Agent) time.Duration {
	t := a.EstimatedLatency() * time.Duration(c.cfg.TimeoutFactor)
	if t < c.cfg.MinTimeout {
		t = c.cfg.MinTimeout
	}
	if t > c.cfg.MaxTimeout {
		t = c.cfg.MaxTimeout
	}
	return t
}

// RunSingle executes a under its per-call timeout. On expiry the call's
// context is cancelled and a TIMEOUT response returned.
func (c *Coordinator) RunSingle(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, a domain.Agent) *domain.AgentResponse {
	return c.runWithin(ctx, ec, input, a, c.Timeout(a))
}

// RunEnsemble fans input out to every agent concurrently, each under the
// ensemble wait bound, and aggregates the SUCCESS responses.
func (c *Coordinator) RunEnsemble(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, agents []domain.Agent) *domain.AgentResponse {
	results := make([]*domain.AgentResponse, len(agents))
	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			results[i] = c.runWithin(ctx, ec, input, a, c.cfg.EnsembleWait)
			return nil
		})
	}
	_ = g.Wait()

	contribs := make([]Contribution, 0, len(agents))
	for i, r := range results {
		if r.IsSuccess() {
			contribs = append(contribs, Contribution{AgentID: agents[i].ID(), Response: r})
			continue
		}
		c.logger.WarnContext(ctx, "ensemble member dropped", "agent", agents[i].ID(), "status", statusOf(r))
	}
	return Aggregate(contribs)
}

// RunPipeline runs the agents named by ids in order, feeding each success's
// text and metadata to the next. It stops at the first non-success. Unknown
// ids are skipped.
func (c *Coordinator) RunPipeline(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, ids []string) *domain.AgentResponse {
	var current *domain.AgentResponse
	for _, id := range ids {
		a, ok := c.agents.Get(id)
		if !ok {
			c.logger.WarnContext(ctx, "pipeline agent not found", "agent", id)
			continue
		}
		if current.IsSuccess() {
			input = domain.NewAgentInput(current.Text, domain.InputText, current.Metadata)
		}
		current = c.RunSingle(ctx, ec, input, a)
		if !current.IsSuccess() {
			c.logger.WarnContext(ctx, "pipeline stopped", "agent", id, "status", statusOf(current))
			break
		}
	}
	if current == nil {
		return domain.ErrorResponse("Pipeline failed")
	}
	return current
}

type outcome struct {
	resp *domain.AgentResponse
	err  error
}

func (c *Coordinator) runWithin(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, a domain.Agent, timeout time.Duration) *domain.AgentResponse {
	ctx, span := tracer.StartSpan(ctx, "agent.process",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", a.ID()),
			tracer.IntAttr("agent.timeout_ms", int(timeout.Milliseconds())),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp := c.execute(callCtx, ctx, ec, input, a)
	elapsed := time.Since(start)

	status := statusOf(resp)
	attrs := metric.WithAttributes(attribute.String("agent.id", a.ID()), attribute.String("status", status))
	c.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	c.responses.Add(ctx, 1, attrs)

	span.SetAttributes(tracer.StringAttr("agent.status", status))
	if resp.IsSuccess() {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, errors.New(resp.Text))
	}
	return resp
}

func (c *Coordinator) execute(callCtx, parent context.Context, ec *domain.ExecutionContext, input domain.AgentInput, a domain.Agent) *domain.AgentResponse {
	if err := c.sem.Acquire(callCtx, 1); err != nil {
		return c.expired(parent, a, "waiting for a worker")
	}

	done := make(chan outcome, 1)
	go func() {
		defer c.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				c.logger.ErrorContext(parent, "agent panicked", "agent", a.ID(), "panic", r)
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		resp, err := c.invoke(callCtx, ec, input, a)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if callCtx.Err() != nil {
				return c.expired(parent, a, "agent returned after deadline")
			}
			c.logger.ErrorContext(parent, "agent failed", "agent", a.ID(), "error", o.err)
			eventbus.Emit(parent, c.bus, domain.EventAgentError, domain.AgentErrorPayload{AgentID: a.ID(), Error: o.err.Error()})
			return domain.ErrorResponse("Agent error: " + o.err.Error())
		}
		if o.resp == nil {
			return domain.ErrorResponse("Agent error: empty response")
		}
		return o.resp
	case <-callCtx.Done():
		return c.expired(parent, a, "deadline exceeded")
	}
}

// expired distinguishes the call's own deadline from cancellation by the
// caller.
func (c *Coordinator) expired(parent context.Context, a domain.Agent, why string) *domain.AgentResponse {
	if err := parent.Err(); err != nil {
		c.logger.WarnContext(parent, "agent call cancelled", "agent", a.ID(), "error", err)
		return domain.ErrorResponse("Agent error: " + err.Error())
	}
	c.logger.WarnContext(parent, "agent timed out", "agent", a.ID(), "reason", why)
	return domain.TimeoutResponse()
}

func (c *Coordinator) invoke(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, a domain.Agent) (*domain.AgentResponse, error) {
	if !c.cfg.Breaker.Enabled {
		return a.Process(ctx, ec, input)
	}
	resp, err := c.breaker(a.ID()).Execute(func() (*domain.AgentResponse, error) {
		return a.Process(ctx, ec, input)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: agent %q circuit open: %v", domain.ErrResourceExhausted, a.ID(), err)
	}
	return resp, err
}

func (c *Coordinator) breaker(id string) *gobreaker.CircuitBreaker[*domain.AgentResponse] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[id]; ok {
		return cb
	}
	maxFailures := c.cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*domain.AgentResponse](gobreaker.Settings{
		Name:        "agent:" + id,
		MaxRequests: 1,
		Interval:    c.cfg.Breaker.Interval,
		Timeout:     c.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Bad input is the caller's fault, not the agent's.
			return err == nil || errors.Is(err, domain.ErrInvalidInput)
		},
	})
	c.breakers[id] = cb
	return cb
}

func statusOf(r *domain.AgentResponse) string {
	if r == nil {
		return "NONE"
	}
	return string(r.Status)
}
