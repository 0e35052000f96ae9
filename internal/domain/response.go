package domain

// ResponseStatus is the outcome class of an agent call.
type ResponseStatus string

const (
	StatusSuccess                ResponseStatus = "SUCCESS"
	StatusTimeout                ResponseStatus = "TIMEOUT"
	StatusError                  ResponseStatus = "ERROR"
	StatusFallback               ResponseStatus = "FALLBACK"
	StatusInsufficientConfidence ResponseStatus = "INSUFFICIENT_CONFIDENCE"
)

// Metadata keys written by the orchestration layer.
const (
	MetaEnsembleSize = "ensemble_size"
	MetaResponses    = "responses"
	MetaAgentID      = "agent_id"
)

// Action is a follow-up an agent suggests to the caller.
type Action struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
}

// UseToolAction suggests invoking the named tool.
func UseToolAction(tool string, params map[string]any) *Action {
	return &Action{
		Type:        "USE_TOOL",
		Description: "Execute tool: " + tool,
		Params:      map[string]any{"tool": tool, "params": params},
	}
}

// AgentResponse is the result of one agent call. Build it with NewResponse.
type AgentResponse struct {
	Status          ResponseStatus `json:"status"`
	Text            string         `json:"text"`
	Confidence      float64        `json:"confidence"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SuggestedAction *Action        `json:"suggested_action,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// IsSuccess reports whether the response has SUCCESS status.
func (r *AgentResponse) IsSuccess() bool {
	return r != nil && r.Status == StatusSuccess
}

// ResponseBuilder is a fluent builder for AgentResponse.
type ResponseBuilder struct {
	r AgentResponse
}

// NewResponse starts a builder with SUCCESS status and zero confidence.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{r: AgentResponse{Status: StatusSuccess}}
}

func (b *ResponseBuilder) Status(s ResponseStatus) *ResponseBuilder {
	b.r.Status = s
	return b
}

func (b *ResponseBuilder) Text(t string) *ResponseBuilder {
	b.r.Text = t
	return b
}

// Confidence sets the confidence, clamped to [0,1].
func (b *ResponseBuilder) Confidence(c float64) *ResponseBuilder {
	b.r.Confidence = ClampUnit(c)
	return b
}

func (b *ResponseBuilder) Metadata(m map[string]any) *ResponseBuilder {
	b.r.Metadata = m
	return b
}

// Meta sets a single metadata entry.
func (b *ResponseBuilder) Meta(key string, v any) *ResponseBuilder {
	if b.r.Metadata == nil {
		b.r.Metadata = make(map[string]any)
	}
	b.r.Metadata[key] = v
	return b
}

func (b *ResponseBuilder) Action(a *Action) *ResponseBuilder {
	b.r.SuggestedAction = a
	return b
}

// Error marks the response as ERROR with the given message.
func (b *ResponseBuilder) Error(msg string) *ResponseBuilder {
	b.r.Status = StatusError
	b.r.ErrorMessage = msg
	return b
}

func (b *ResponseBuilder) Build() *AgentResponse {
	r := b.r
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return &r
}

// Success returns a SUCCESS response.
func Success(text string, confidence float64) *AgentResponse {
	return NewResponse().Text(text).Confidence(confidence).Build()
}

// ErrorResponse returns an ERROR response. The message is carried both as
// text and as the error message so callers printing either see it.
func ErrorResponse(msg string) *AgentResponse {
	return NewResponse().Text(msg).Error(msg).Build()
}

// TimeoutResponse returns the canonical TIMEOUT response.
func TimeoutResponse() *AgentResponse {
	return NewResponse().Status(StatusTimeout).Text("Agent processing timed out").Build()
}

// ClampUnit clamps v to [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
