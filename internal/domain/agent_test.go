package domain

import (
	"math"
	"testing"
	"time"
)

func TestNewAgentInputCopiesParams(t *testing.T) {
	params := map[string]any{"expression": "2+2"}
	in := NewAgentInput("calculate 2+2", "", params)

	params["expression"] = "mutated"
	got, ok := in.Param("expression")
	if !ok || got != "2+2" {
		t.Errorf("Param(expression) = %v, %v; want 2+2", got, ok)
	}
	if in.Kind != InputText {
		t.Errorf("Kind = %q, want TEXT", in.Kind)
	}

	out := in.Params()
	out["expression"] = "again"
	if v, _ := in.Param("expression"); v != "2+2" {
		t.Errorf("Params() leaked internal map, got %v", v)
	}
}

func TestResponseBuilderClampsConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.7, 1},
		{-0.3, 0},
		{0.42, 0.42},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got := NewResponse().Confidence(tt.in).Build().Confidence
		if got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResponseHelpers(t *testing.T) {
	if r := TimeoutResponse(); r.Status != StatusTimeout || r.Text != "Agent processing timed out" {
		t.Errorf("TimeoutResponse = %+v", r)
	}
	r := ErrorResponse("boom")
	if r.Status != StatusError || r.ErrorMessage != "boom" || r.IsSuccess() {
		t.Errorf("ErrorResponse = %+v", r)
	}
	if s := Success("ok", 0.8); !s.IsSuccess() || s.Metadata == nil {
		t.Errorf("Success = %+v", s)
	}
	var nilResp *AgentResponse
	if nilResp.IsSuccess() {
		t.Error("nil response must not be success")
	}
}

func TestMemoryItemImportanceClamped(t *testing.T) {
	item := NewMemoryItem("id", "u", "a", time.Unix(0, 0), 3, nil)
	if item.Importance() != 1 {
		t.Errorf("Importance = %v, want 1", item.Importance())
	}
	if item.Metadata == nil {
		t.Error("Metadata should default to empty map")
	}
}

func TestExecutionContextBuildCopiesMetadata(t *testing.T) {
	meta := map[string]string{"user_feedback": "positive"}
	ec := NewExecutionContext().Metadata(meta).Training(true).Build()
	meta["user_feedback"] = "negative"

	if v, _ := ec.Metadata("user_feedback"); v != "positive" {
		t.Errorf("Metadata = %q, want positive", v)
	}
	if !ec.Training() {
		t.Error("Training should be true")
	}
}

func TestPolicyActionAgentIDs(t *testing.T) {
	a := PolicyAction{
		Roles:  []string{"writer", "analyst", "missing"},
		Agents: map[string][]string{"writer": {"qa_agent"}, "analyst": {"chain_of_thought"}},
	}
	got := a.AgentIDs()
	if len(got) != 2 || got[0] != "qa_agent" || got[1] != "chain_of_thought" {
		t.Errorf("AgentIDs = %v", got)
	}
	if ids := (PolicyAction{}).AgentIDs(); len(ids) != 0 {
		t.Errorf("empty action AgentIDs = %v", ids)
	}
}
