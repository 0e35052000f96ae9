package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jomra/internal/domain"
	"jomra/internal/usecase/eventbus"
)

type fakeAgent struct {
	id      string
	caps    []domain.Capability
	latency time.Duration
	state   domain.HealthState
	initErr error
	process func(ctx context.Context, in domain.AgentInput) (*domain.AgentResponse, error)

	calls    atomic.Int32
	shutdown atomic.Bool
}

func (f *fakeAgent) ID() string                        { return f.id }
func (f *fakeAgent) Name() string                      { return "fake " + f.id }
func (f *fakeAgent) Capabilities() []domain.Capability { return f.caps }
func (f *fakeAgent) Initialize(context.Context) error  { return f.initErr }
func (f *fakeAgent) EstimatedLatency() time.Duration   { return f.latency }
func (f *fakeAgent) Health() domain.HealthStatus       { return domain.HealthStatus{State: f.state} }

func (f *fakeAgent) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	return nil
}

func (f *fakeAgent) Process(ctx context.Context, _ *domain.ExecutionContext, in domain.AgentInput) (*domain.AgentResponse, error) {
	f.calls.Add(1)
	if f.process == nil {
		return domain.Success(f.id+": "+in.Text, 0.5), nil
	}
	return f.process(ctx, in)
}

func healthy(id string, latency time.Duration, caps ...domain.Capability) *fakeAgent {
	return &fakeAgent{id: id, caps: caps, latency: latency, state: domain.HealthHealthy}
}

func replying(id, text string, conf float64) *fakeAgent {
	a := healthy(id, 10*time.Millisecond, domain.CapQuestionAnswering)
	a.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
		return domain.Success(text, conf), nil
	}
	return a
}

func fastConfig() CoordinatorConfig {
	cfg := DefaultCoordinatorConfig()
	cfg.MinTimeout = 30 * time.Millisecond
	cfg.MaxTimeout = 60 * time.Millisecond
	cfg.EnsembleWait = 60 * time.Millisecond
	return cfg
}

func newRegistry(t *testing.T, agents ...domain.Agent) *Registry {
	t.Helper()
	r := NewRegistry(nil, slog.Default())
	for _, a := range agents {
		require.NoError(t, r.Register(context.Background(), a))
	}
	return r
}

func TestSelectorCapabilityFor(t *testing.T) {
	s := NewSelector()
	tests := []struct {
		text string
		want domain.Capability
	}{
		{"Calculate 2+2", domain.CapToolUsage},
		{"please remember this", domain.CapReinforcementLearning},
		{"find my keys", domain.CapToolUsage},
		{"deploy to vercel", domain.CapToolUsage},
		{"plan a trip", domain.CapPlanning},
		{"why is the sky blue", domain.CapReasoning},
		{"describe this photo", domain.CapVision},
		{"transcribe the audio", domain.CapAudio},
		{"what is the capital of France", domain.CapQuestionAnswering},
		{"", domain.CapQuestionAnswering},
		// calculate rule precedes the planning rule
		{"calculate the plan budget", domain.CapToolUsage},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CapabilityFor(tt.text))
		})
	}
}

func TestSelectorRanking(t *testing.T) {
	s := NewSelector()
	in := domain.TextInput("what time is it")

	slow := healthy("slow", 500*time.Millisecond, domain.CapQuestionAnswering)
	fast := healthy("fast", 50*time.Millisecond, domain.CapQuestionAnswering)
	degraded := &fakeAgent{id: "degraded", caps: []domain.Capability{domain.CapQuestionAnswering}, latency: time.Millisecond, state: domain.HealthDegraded}
	down := &fakeAgent{id: "down", caps: []domain.Capability{domain.CapQuestionAnswering}, latency: time.Millisecond, state: domain.HealthUnhealthy}
	tools := healthy("tools", time.Millisecond, domain.CapToolUsage)

	got, ok := s.Select(in, []domain.Agent{slow, fast, degraded})
	require.True(t, ok)
	assert.Equal(t, "fast", got.ID(), "healthy and faster wins")

	got, _ = s.Select(in, []domain.Agent{down, degraded})
	assert.Equal(t, "degraded", got.ID(), "degraded beats unhealthy")

	twin := healthy("twin", 50*time.Millisecond, domain.CapQuestionAnswering)
	got, _ = s.Select(in, []domain.Agent{fast, twin})
	assert.Equal(t, "fast", got.ID(), "ties keep first-seen")

	got, _ = s.Select(in, []domain.Agent{tools})
	assert.Equal(t, "tools", got.ID(), "no capable agent falls back to first")

	got, _ = s.Select(domain.TextInput(""), []domain.Agent{tools, slow})
	assert.Equal(t, "slow", got.ID(), "empty input needs question answering")

	_, ok = s.Select(in, nil)
	assert.False(t, ok)
}

func TestRegistryRegister(t *testing.T) {
	bus := eventbus.New(slog.Default())
	defer bus.Close()
	registered := make(chan string, 4)
	bus.Subscribe(domain.EventAgentRegistered, func(_ context.Context, ev domain.Event) {
		registered <- string(ev.Payload)
	})

	r := NewRegistry(bus, slog.Default())
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, healthy("a", 0)))
	err := r.Register(ctx, healthy("a", 0))
	assert.True(t, errors.Is(err, domain.ErrDuplicate))

	broken := healthy("broken", 0)
	broken.initErr = domain.NewAgentError(domain.KindModelLoadFailed, "no weights", nil)
	err = r.Register(ctx, broken)
	assert.True(t, errors.Is(err, domain.ErrModelLoad))

	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("broken")
	assert.False(t, ok)

	select {
	case payload := <-registered:
		assert.Contains(t, payload, `"a"`)
	case <-time.After(time.Second):
		t.Fatal("no registration event")
	}
}

func TestRegistryHealthAndShutdown(t *testing.T) {
	a := healthy("a", 0)
	b := &fakeAgent{id: "b", state: domain.HealthDegraded}
	r := newRegistry(t, a, b)

	h := r.Health()
	assert.Equal(t, domain.HealthHealthy, h["a"].State)
	assert.Equal(t, domain.HealthDegraded, h["b"].State)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, a.shutdown.Load())
	assert.True(t, b.shutdown.Load())
}

func TestCoordinatorTimeoutClamp(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig(), nil, nil, slog.Default())
	assert.Equal(t, 5*time.Second, c.Timeout(healthy("x", 100*time.Millisecond)))
	assert.Equal(t, 6*time.Second, c.Timeout(healthy("x", 2*time.Second)))
	assert.Equal(t, 30*time.Second, c.Timeout(healthy("x", time.Minute)))
}

func TestRunSingleTimeout(t *testing.T) {
	slow := healthy("slow", time.Millisecond)
	var cancelled atomic.Bool
	slow.process = func(ctx context.Context, _ domain.AgentInput) (*domain.AgentResponse, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	}
	c := NewCoordinator(fastConfig(), nil, nil, slog.Default())

	resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), slow)
	assert.Equal(t, domain.StatusTimeout, resp.Status)
	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond, "call context is cancelled")
}

func TestRunSingleAgentError(t *testing.T) {
	bus := eventbus.New(slog.Default())
	defer bus.Close()
	errs := make(chan domain.Event, 1)
	bus.Subscribe(domain.EventAgentError, func(_ context.Context, ev domain.Event) { errs <- ev })

	failing := healthy("failing", time.Millisecond)
	failing.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
		return nil, errors.New("model exploded")
	}
	c := NewCoordinator(fastConfig(), nil, bus, slog.Default())

	resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), failing)
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Equal(t, "Agent error: model exploded", resp.Text)

	select {
	case ev := <-errs:
		assert.Contains(t, string(ev.Payload), "failing")
	case <-time.After(time.Second):
		t.Fatal("no agent.error event")
	}
}

func TestRunSinglePanic(t *testing.T) {
	p := healthy("panicky", time.Millisecond)
	p.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
		panic("boom")
	}
	c := NewCoordinator(fastConfig(), nil, nil, slog.Default())

	resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), p)
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Equal(t, "Agent error: panic: boom", resp.Text)

	// The worker slot was released.
	ok := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), healthy("ok", time.Millisecond))
	assert.True(t, ok.IsSuccess())
}

func TestRunSingleNilResponse(t *testing.T) {
	a := healthy("nil", time.Millisecond)
	a.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) { return nil, nil }
	c := NewCoordinator(fastConfig(), nil, nil, slog.Default())

	resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), a)
	assert.Equal(t, domain.StatusError, resp.Status)
}

func TestCircuitBreakerOpens(t *testing.T) {
	cfg := fastConfig()
	cfg.Breaker.MaxFailures = 2
	c := NewCoordinator(cfg, nil, nil, slog.Default())

	a := healthy("flaky", time.Millisecond)
	a.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
		return nil, errors.New("down")
	}

	for range 2 {
		resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), a)
		assert.Equal(t, "Agent error: down", resp.Text)
	}
	resp := c.RunSingle(context.Background(), nil, domain.TextInput("hi"), a)
	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Contains(t, resp.Text, "circuit open")
	assert.Equal(t, int32(2), a.calls.Load(), "open breaker skips the agent")
}

func TestRunEnsemble(t *testing.T) {
	c := NewCoordinator(fastConfig(), nil, nil, slog.Default())
	ctx := context.Background()
	in := domain.TextInput("q")

	t.Run("none succeed", func(t *testing.T) {
		bad := healthy("bad", time.Millisecond)
		bad.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
			return domain.ErrorResponse("nope"), nil
		}
		resp := c.RunEnsemble(ctx, nil, in, []domain.Agent{bad})
		assert.Equal(t, domain.StatusError, resp.Status)
		assert.Equal(t, "No successful responses", resp.Text)
	})

	t.Run("single passes through", func(t *testing.T) {
		resp := c.RunEnsemble(ctx, nil, in, []domain.Agent{replying("only", "alone", 0.4)})
		assert.Equal(t, "alone", resp.Text)
		assert.NotContains(t, resp.Metadata, domain.MetaEnsembleSize)
	})

	t.Run("highest confidence wins", func(t *testing.T) {
		slow := healthy("slow", time.Millisecond)
		slow.process = func(ctx context.Context, _ domain.AgentInput) (*domain.AgentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		agents := []domain.Agent{
			replying("a", "first", 0.6),
			replying("b", "second", 0.9),
			replying("c", "third", 0.9),
			slow,
		}
		resp := c.RunEnsemble(ctx, nil, in, agents)
		require.True(t, resp.IsSuccess())
		assert.Equal(t, "second", resp.Text)
		assert.Equal(t, 0.9, resp.Confidence)
		assert.Equal(t, 3, resp.Metadata[domain.MetaEnsembleSize])

		list, ok := resp.Metadata[domain.MetaResponses].([]map[string]any)
		require.True(t, ok)
		require.Len(t, list, 3)
		assert.Equal(t, "a", list[0][domain.MetaAgentID])
		assert.Equal(t, "first", list[0]["text"])
	})
}

func TestAggregateEmpty(t *testing.T) {
	resp := Aggregate(nil)
	assert.Equal(t, domain.StatusError, resp.Status)
}

func TestRunPipeline(t *testing.T) {
	upper := healthy("upper", time.Millisecond)
	upper.process = func(_ context.Context, in domain.AgentInput) (*domain.AgentResponse, error) {
		return domain.NewResponse().Text(strings.ToUpper(in.Text)).Confidence(0.8).Meta("stage", "upper").Build(), nil
	}
	var sawStage atomic.Value
	exclaim := healthy("exclaim", time.Millisecond)
	exclaim.process = func(_ context.Context, in domain.AgentInput) (*domain.AgentResponse, error) {
		if v, ok := in.Param("stage"); ok {
			sawStage.Store(v)
		}
		return domain.Success(in.Text+"!", 0.7), nil
	}
	refuse := healthy("refuse", time.Millisecond)
	refuse.process = func(context.Context, domain.AgentInput) (*domain.AgentResponse, error) {
		return domain.NewResponse().Status(domain.StatusInsufficientConfidence).Text("unsure").Build(), nil
	}

	reg := newRegistry(t, upper, exclaim, refuse)
	c := NewCoordinator(fastConfig(), reg, nil, slog.Default())
	ctx := context.Background()

	resp := c.RunPipeline(ctx, nil, domain.TextInput("hello"), []string{"upper", "ghost", "exclaim"})
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "HELLO!", resp.Text)
	assert.Equal(t, "upper", sawStage.Load())

	resp = c.RunPipeline(ctx, nil, domain.TextInput("hello"), []string{"upper", "refuse", "exclaim"})
	assert.Equal(t, domain.StatusInsufficientConfidence, resp.Status)
	assert.Equal(t, int32(1), exclaim.calls.Load(), "pipeline stops at the first non-success")

	resp = c.RunPipeline(ctx, nil, domain.TextInput("hello"), []string{"ghost"})
	assert.Equal(t, "Pipeline failed", resp.Text)
}

func TestOrchestratorProcessSingle(t *testing.T) {
	ctx := context.Background()

	empty := NewOrchestrator(NewRegistry(nil, nil), fastConfig(), nil, slog.Default())
	resp := empty.ProcessSingle(ctx, nil, domain.TextInput("hi"))
	assert.Equal(t, "No suitable agent found", resp.Text)

	qa := replying("qa", "answer", 0.8)
	tools := healthy("tools", time.Millisecond, domain.CapToolUsage)
	o := NewOrchestrator(newRegistry(t, qa, tools), fastConfig(), nil, slog.Default())

	resp = o.ProcessSingle(ctx, nil, domain.TextInput("calculate 1+1"))
	assert.Equal(t, "tools: calculate 1+1", resp.Text)

	resp = o.ProcessSingle(ctx, nil, domain.TextInput("who wrote Hamlet"))
	assert.Equal(t, "answer", resp.Text)

	resp = o.ProcessEnsemble(ctx, nil, domain.TextInput("who wrote Hamlet"))
	assert.Equal(t, "answer", resp.Text)
	assert.Equal(t, 2, resp.Metadata[domain.MetaEnsembleSize])

	assert.Len(t, o.Health(), 2)
	require.NoError(t, o.Shutdown(ctx))
	assert.True(t, qa.shutdown.Load())
}
