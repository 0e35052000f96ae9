package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Orchestrator.Workers = 0
	cfg.Memory.ShortTermCapacity = -1
	cfg.Supreme.SmoothingFactor = 0

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max timeout below min", func(c *Config) { c.Orchestrator.MaxTimeout = time.Second }, "orchestrator.max_timeout"},
		{"breaker without failures", func(c *Config) { c.Orchestrator.CircuitBreaker.MaxFailures = 0 }, "circuit_breaker.max_failures"},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "redis" }, "memory.backend"},
		{"retention out of range", func(c *Config) { c.Memory.RetentionThreshold = 1.5 }, "memory.retention_threshold"},
		{"prune without schedule", func(c *Config) { c.Memory.Prune.Schedule = "" }, "memory.prune.schedule"},
		{"unknown estimator", func(c *Config) { c.Conversation.Estimator = "words" }, "conversation.estimator"},
		{"tiktoken without encoding", func(c *Config) {
			c.Conversation.Estimator = "tiktoken"
			c.Conversation.Encoding = ""
		}, "conversation.encoding"},
		{"floor out of range", func(c *Config) { c.Supreme.ConfidenceFloor = -0.1 }, "supreme.confidence_floor"},
		{"no default agent", func(c *Config) { c.Supreme.DefaultAgent = "" }, "supreme.default_agent"},
		{"empty denylist phrase", func(c *Config) { c.Security.Denylist = append(c.Security.Denylist, " ") }, "security.denylist"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "otlp"
		}, "tracer.endpoint"},
		{"sample ratio out of range", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.SampleRatio = 2
		}, "tracer.sample_ratio"},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "onnx" }, "embedding.provider"},
		{"unknown agent", func(c *Config) { c.Agents.Enabled = []string{"mystery"} }, "unknown agent"},
		{"duplicate agent", func(c *Config) { c.Agents.Enabled = []string{"qa_agent", "qa_agent"} }, "duplicate agent"},
		{"remote without key", func(c *Config) {
			c.Agents.Remote.Enabled = true
			c.Agents.Remote.APIKey = ""
		}, "agents.remote.api_key"},
		{"remote id collision", func(c *Config) {
			c.Agents.Remote.Enabled = true
			c.Agents.Remote.APIKey = "k"
			c.Agents.Remote.ID = "qa_agent"
		}, "collides"},
		{"burst missing", func(c *Config) { c.Tools.Burst = 0 }, "tools.burst"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}
