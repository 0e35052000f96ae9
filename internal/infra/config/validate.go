package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateOrchestrator(cfg, ve)
	validateMemory(cfg, ve)
	validateConversation(cfg, ve)
	validateSupreme(cfg, ve)
	validateSecurity(cfg, ve)
	validateEmbedding(cfg, ve)
	validateAgents(cfg, ve)
	validateTools(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.Workers <= 0 {
		ve.Add("orchestrator.workers must be > 0")
	}
	if o.TimeoutFactor <= 0 {
		ve.Add("orchestrator.timeout_factor must be > 0")
	}
	if o.MinTimeout <= 0 {
		ve.Add("orchestrator.min_timeout must be > 0")
	}
	if o.MaxTimeout < o.MinTimeout {
		ve.Add("orchestrator.max_timeout (%s) must be >= min_timeout (%s)", o.MaxTimeout, o.MinTimeout)
	}
	if o.EnsembleWait <= 0 {
		ve.Add("orchestrator.ensemble_wait must be > 0")
	}
	if o.CircuitBreaker.Enabled && o.CircuitBreaker.MaxFailures == 0 {
		ve.Add("orchestrator.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

var validMemoryBackends = map[string]bool{
	"sqlite": true,
	"inmem":  true,
}

func validateMemory(cfg *Config, ve *ValidationError) {
	m := cfg.Memory
	if !validMemoryBackends[m.Backend] {
		ve.Add("memory.backend %q is not supported (valid: sqlite, inmem)", m.Backend)
	}
	if m.Backend == "sqlite" && m.DataDir == "" {
		ve.Add("memory.data_dir is required for the sqlite backend")
	}
	if m.ShortTermCapacity <= 0 {
		ve.Add("memory.short_term_capacity must be > 0")
	}
	if !inUnit(m.RetentionThreshold) {
		ve.Add("memory.retention_threshold must be in [0,1], got %v", m.RetentionThreshold)
	}
	if !inUnit(m.RecallImportance) {
		ve.Add("memory.recall_importance must be in [0,1], got %v", m.RecallImportance)
	}
	if !inUnit(m.SimilarityWeight) {
		ve.Add("memory.similarity_weight must be in [0,1], got %v", m.SimilarityWeight)
	}
	if m.RecallCandidates <= 0 {
		ve.Add("memory.recall_candidates must be > 0")
	}
	if m.RecallWindow <= 0 {
		ve.Add("memory.recall_window must be > 0")
	}
	if m.RecencyHorizon <= 0 {
		ve.Add("memory.recency_horizon must be > 0")
	}
	if m.WriteQueueSize <= 0 {
		ve.Add("memory.write_queue_size must be > 0")
	}
	if m.Prune.Enabled {
		if m.Prune.Schedule == "" {
			ve.Add("memory.prune.schedule is required when pruning is enabled")
		}
		if m.Prune.MaxAge <= 0 {
			ve.Add("memory.prune.max_age must be > 0")
		}
	}
}

func validateConversation(cfg *Config, ve *ValidationError) {
	c := cfg.Conversation
	if c.MaxTurns <= 0 {
		ve.Add("conversation.max_turns must be > 0")
	}
	if c.MaxTokens <= 0 {
		ve.Add("conversation.max_tokens must be > 0")
	}
	switch c.Estimator {
	case "chars", "":
	case "tiktoken":
		if c.Encoding == "" {
			ve.Add("conversation.encoding is required for the tiktoken estimator")
		}
	default:
		ve.Add("conversation.estimator %q is not supported (valid: chars, tiktoken)", c.Estimator)
	}
}

func validateSupreme(cfg *Config, ve *ValidationError) {
	s := cfg.Supreme
	if s.MaxSteps <= 0 {
		ve.Add("supreme.max_steps must be > 0")
	}
	if !inUnit(s.ConfidenceFloor) {
		ve.Add("supreme.confidence_floor must be in [0,1], got %v", s.ConfidenceFloor)
	}
	if s.SmoothingFactor <= 0 || s.SmoothingFactor > 1 {
		ve.Add("supreme.smoothing_factor must be in (0,1], got %v", s.SmoothingFactor)
	}
	if !inUnit(s.InitialAccuracy) {
		ve.Add("supreme.initial_accuracy must be in [0,1], got %v", s.InitialAccuracy)
	}
	if s.RecallTopK < 0 {
		ve.Add("supreme.recall_top_k must be >= 0")
	}
	if s.DefaultAgent == "" {
		ve.Add("supreme.default_agent is required")
	}
}

func validateSecurity(cfg *Config, ve *ValidationError) {
	s := cfg.Security
	if s.MinOpaqueRun <= 0 {
		ve.Add("security.min_opaque_run must be > 0")
	}
	if s.MinInputLen < 0 {
		ve.Add("security.min_input_len must be >= 0")
	}
	for i, phrase := range s.Denylist {
		if strings.TrimSpace(phrase) == "" {
			ve.Add("security.denylist[%d] is empty", i)
		}
	}
	if s.Audit.Enabled && s.Audit.Path == "" {
		ve.Add("security.audit.path is required when audit is enabled")
	}
}

func validateEmbedding(cfg *Config, ve *ValidationError) {
	e := cfg.Embedding
	if e.Provider != "hash" {
		ve.Add("embedding.provider %q is not supported (valid: hash)", e.Provider)
	}
	if e.Dimensions <= 0 {
		ve.Add("embedding.dimensions must be > 0")
	}
	if e.CacheSize < 0 {
		ve.Add("embedding.cache_size must be >= 0")
	}
}

var knownAgents = map[string]bool{
	"qa_agent":         true,
	"tool_agent":       true,
	"chain_of_thought": true,
	"planning":         true,
	"rl_agent":         true,
	"multimodal":       true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for _, id := range cfg.Agents.Enabled {
		if !knownAgents[id] {
			ve.Add("agents.enabled: unknown agent %q", id)
		}
		if seen[id] {
			ve.Add("agents.enabled: duplicate agent %q", id)
		}
		seen[id] = true
	}
	r := cfg.Agents.Remote
	if r.Enabled {
		if r.ID == "" {
			ve.Add("agents.remote.id is required when the remote agent is enabled")
		}
		if knownAgents[r.ID] {
			ve.Add("agents.remote.id %q collides with a built-in agent", r.ID)
		}
		if r.APIKey == "" {
			ve.Add("agents.remote.api_key is required when the remote agent is enabled")
		}
		if r.Model == "" {
			ve.Add("agents.remote.model is required when the remote agent is enabled")
		}
		if r.MaxTokens <= 0 {
			ve.Add("agents.remote.max_tokens must be > 0")
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.RateLimit < 0 {
		ve.Add("tools.rate_limit must be >= 0")
	}
	if cfg.Tools.RateLimit > 0 && cfg.Tools.Burst <= 0 {
		ve.Add("tools.burst must be > 0 when rate_limit is set")
	}
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is not supported (valid: text, json)", cfg.Logger.Format)
	}
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func validateTracer(cfg *Config, ve *ValidationError) {
	t := cfg.Tracer
	if !t.Enabled {
		return
	}
	switch t.Exporter {
	case "", "noop", "stdout":
	case "otlp":
		if t.Endpoint == "" {
			ve.Add("tracer.endpoint is required for the otlp exporter")
		}
	default:
		ve.Add("tracer.exporter %q is not supported (valid: noop, stdout, otlp)", t.Exporter)
	}
	if !inUnit(t.SampleRatio) {
		ve.Add("tracer.sample_ratio must be in [0, 1], got %g", t.SampleRatio)
	}
}
