package agent

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"jomra/internal/domain"
)

const (
	stateDim   = 50
	numActions = 10
	replaySize = 1000

	// Preference weights fill the state vector from this slot on.
	prefSlot = 10
)

// QModel scores every action for an encoded state vector.
type QModel interface {
	Name() string
	Load(ctx context.Context) error
	Infer(ctx context.Context, state []float32) ([]float32, error)
	Close() error
}

// LinearQModel is a deterministic stand-in Q network: one linear layer whose
// weights are derived from the model name.
type LinearQModel struct {
	name    string
	weights [][]float32
	bias    []float32
}

// NewLinearQModel returns an unloaded LinearQModel.
func NewLinearQModel(name string) *LinearQModel {
	if name == "" {
		name = "linear-dqn"
	}
	return &LinearQModel{name: name}
}

func (m *LinearQModel) Name() string { return m.name }

func (m *LinearQModel) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.weights = make([][]float32, numActions)
	m.bias = make([]float32, numActions)
	for a := range numActions {
		m.weights[a] = make([]float32, stateDim)
		for i := range stateDim {
			// Weights in [-0.1, 0.1).
			m.weights[a][i] = float32(m.seed(a, i)%2000)/10000 - 0.1
		}
		// Bias in [0.3, 0.9).
		m.bias[a] = 0.3 + float32(m.seed(a, -1)%600)/1000
	}
	return nil
}

func (m *LinearQModel) seed(action, slot int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(m.name))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(action))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(slot)))
	h.Write(buf[:])
	return h.Sum64()
}

func (m *LinearQModel) Infer(ctx context.Context, state []float32) ([]float32, error) {
	if m.weights == nil {
		return nil, fmt.Errorf("model %s not loaded", m.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(state) != stateDim {
		return nil, fmt.Errorf("state has %d dims, want %d", len(state), stateDim)
	}
	out := make([]float32, numActions)
	for a := range numActions {
		q := m.bias[a]
		for i, v := range state {
			q += m.weights[a][i] * v
		}
		out[a] = q
	}
	return out, nil
}

func (m *LinearQModel) Close() error {
	m.weights, m.bias = nil, nil
	return nil
}

// encodeState maps app state onto a fixed-size vector: time of day and day
// of week first, then preference weights in sorted category order.
func encodeState(state domain.AppState, now time.Time) []float32 {
	vec := make([]float32, stateDim)
	vec[0] = float32(now.Hour()) / 24
	vec[1] = float32(now.Weekday()) / 7
	if state.Locale != "" {
		vec[2] = 1
	}
	if state.UserID != "" {
		vec[3] = 1
	}
	slot := prefSlot
	for _, k := range slices.Sorted(maps.Keys(state.Preferences)) {
		if slot >= stateDim {
			break
		}
		vec[slot] = float32(domain.ClampUnit(state.Preferences[k]))
		slot++
	}
	return vec
}

type transition struct {
	state  []float32
	action int
	reward float64
}

// replayBuffer keeps the most recent transitions up to its capacity.
type replayBuffer struct {
	mu    sync.Mutex
	items []transition
	next  int
	size  int
}

func newReplayBuffer(size int) *replayBuffer {
	return &replayBuffer{items: make([]transition, 0, size), size: size}
}

func (b *replayBuffer) add(t transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.size {
		b.items = append(b.items, t)
		return
	}
	b.items[b.next] = t
	b.next = (b.next + 1) % b.size
}

func (b *replayBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// RLAgent suggests a next action from the app state with a Q network and
// records FEEDBACK rewards against its last suggestion.
type RLAgent struct {
	*base
	model  QModel
	replay *replayBuffer
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	lastState  []float32
	lastAction int
}

// NewRLAgent creates the reinforcement-learning agent backed by model.
func NewRLAgent(model QModel, logger *slog.Logger) *RLAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &RLAgent{
		base: newBase("rl_agent", "RL Agent", 50*time.Millisecond,
			domain.CapReinforcementLearning, domain.CapPlanning),
		model:  model,
		replay: newReplayBuffer(replaySize),
		now:    time.Now,
		logger: logger,
	}
}

func (a *RLAgent) Initialize(ctx context.Context) error {
	if err := a.model.Load(ctx); err != nil {
		a.markDown("model load failed")
		return domain.NewAgentError(domain.KindModelLoadFailed, "load "+a.model.Name(), err)
	}
	a.markReady()
	a.logger.Debug("agent initialized", "agent", a.ID(), "model", a.model.Name())
	return nil
}

func (a *RLAgent) Process(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	if input.Kind == domain.InputFeedback {
		a.recordReward(input)
		return domain.Success("Reward processed", 1.0), nil
	}

	state := encodeState(ec.AppState(), a.now())
	q, err := a.model.Infer(ctx, state)
	if err == nil && len(q) == 0 {
		err = fmt.Errorf("model %s returned no action values", a.model.Name())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewAgentError(domain.KindTimeout, "inference cancelled", ctx.Err())
		}
		return nil, domain.NewAgentError(domain.KindInferenceError, "DQN inference failed", err)
	}

	best := 0
	for i, v := range q {
		if v > q[best] {
			best = i
		}
	}
	a.mu.Lock()
	a.lastState, a.lastAction = state, best
	a.mu.Unlock()

	action := decodeAction(best)
	return domain.NewResponse().
		Text("RL Agent suggested: " + action.Description).
		Confidence(float64(q[best])).
		Action(action).
		Meta("action_index", best).
		Meta("q_value", float64(q[best])).
		Build(), nil
}

// recordReward stores the reward against the previous suggestion. Feedback
// that arrives before any suggestion is dropped.
func (a *RLAgent) recordReward(input domain.AgentInput) {
	reward := rewardParam(input)
	a.mu.Lock()
	state, action := a.lastState, a.lastAction
	a.mu.Unlock()
	if state == nil {
		a.logger.Debug("reward without prior suggestion", "agent", a.ID())
		return
	}
	a.replay.add(transition{state: state, action: action, reward: reward})
}

func rewardParam(input domain.AgentInput) float64 {
	v, _ := input.Param("reward")
	switch r := v.(type) {
	case float64:
		return r
	case float32:
		return float64(r)
	case int:
		return float64(r)
	}
	return 0
}

func decodeAction(i int) *domain.Action {
	switch i {
	case 0:
		return domain.UseToolAction("web_search", nil)
	case 1:
		return domain.UseToolAction("system_info", nil)
	}
	return &domain.Action{
		Type:        "GENERIC",
		Description: fmt.Sprintf("Perform action %d", i),
		Params:      map[string]any{"index": i},
	}
}

func (a *RLAgent) Shutdown(context.Context) error {
	a.markDown("shut down")
	return a.model.Close()
}

var _ domain.Agent = (*RLAgent)(nil)
