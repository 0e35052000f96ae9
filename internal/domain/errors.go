package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrNoSuitableAgent    = fmt.Errorf("no suitable agent")
	ErrAgentNotReady      = fmt.Errorf("agent not initialized")
	ErrModelLoad          = fmt.Errorf("model load failed")
	ErrInference          = fmt.Errorf("inference failed")
	ErrResourceExhausted  = fmt.Errorf("resource exhausted")
	ErrPolicyViolation    = fmt.Errorf("security policy violation")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrToolFailure        = fmt.Errorf("tool execution failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrMemoryStore        = fmt.Errorf("memory store failed")
	ErrMemoryClosed       = fmt.Errorf("memory store closed")
	ErrEmbeddingFailed    = fmt.Errorf("embedding generation failed")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")
	ErrPolicyTableInvalid = fmt.Errorf("policy table invalid")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Coordinator.RunSingle")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent", "memory"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AgentErrorKind classifies failures raised by agents.
type AgentErrorKind string

const (
	KindModelLoadFailed    AgentErrorKind = "MODEL_LOAD_FAILED"
	KindInferenceError     AgentErrorKind = "INFERENCE_ERROR"
	KindInvalidInput       AgentErrorKind = "INVALID_INPUT"
	KindTimeout            AgentErrorKind = "TIMEOUT"
	KindResourceExhausted  AgentErrorKind = "RESOURCE_EXHAUSTED"
	KindConfigurationError AgentErrorKind = "CONFIGURATION_ERROR"
)

// kindSentinels maps each agent error kind onto the sentinel it unwraps to.
var kindSentinels = map[AgentErrorKind]error{
	KindModelLoadFailed:    ErrModelLoad,
	KindInferenceError:     ErrInference,
	KindInvalidInput:       ErrInvalidInput,
	KindTimeout:            ErrTimeout,
	KindResourceExhausted:  ErrResourceExhausted,
	KindConfigurationError: ErrAgentNotReady,
}

// AgentError is the typed failure an agent returns from Initialize or Process.
type AgentError struct {
	Kind    AgentErrorKind
	Message string
	Err     error // optional cause
}

// NewAgentError creates an AgentError of the given kind.
func NewAgentError(kind AgentErrorKind, message string, cause error) *AgentError {
	return &AgentError{Kind: kind, Message: message, Err: cause}
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind's sentinel and the cause to errors.Is.
func (e *AgentError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AgentErrorKindOf returns the kind of the first AgentError in err's chain.
func AgentErrorKindOf(err error) (AgentErrorKind, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrResourceExhausted)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNoSuitableAgent   ErrorCode = "NO_SUITABLE_AGENT"
	CodeConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	CodeModelLoad         ErrorCode = "MODEL_LOAD_FAILED"
	CodeInference         ErrorCode = "INFERENCE_ERROR"
	CodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	CodePolicyViolation   ErrorCode = "POLICY_VIOLATION"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure       ErrorCode = "TOOL_FAILURE"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeMemoryStore       ErrorCode = "MEMORY_STORE"
	CodeMemoryClosed      ErrorCode = "MEMORY_CLOSED"
	CodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	CodeAuditWrite        ErrorCode = "AUDIT_WRITE"
	CodePolicyTable       ErrorCode = "POLICY_TABLE_INVALID"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate ErrorCode = "AGENT_DUPLICATE"
	CodeAgentTimeout   ErrorCode = "AGENT_TIMEOUT"
	CodeToolInvalid    ErrorCode = "TOOL_INVALID_INPUT"

	// Category error codes, fallback when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrNoSuitableAgent:    CodeNoSuitableAgent,
	ErrAgentNotReady:      CodeConfiguration,
	ErrModelLoad:          CodeModelLoad,
	ErrInference:          CodeInference,
	ErrResourceExhausted:  CodeResourceExhausted,
	ErrPolicyViolation:    CodePolicyViolation,
	ErrToolNotFound:       CodeToolNotFound,
	ErrToolFailure:        CodeToolFailure,
	ErrRateLimit:          CodeRateLimit,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrMemoryStore:        CodeMemoryStore,
	ErrMemoryClosed:       CodeMemoryClosed,
	ErrEmbeddingFailed:    CodeEmbeddingFailed,
	ErrAuditWrite:         CodeAuditWrite,
	ErrPolicyTableInvalid: CodePolicyTable,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent": CodeAgentNotFound,
		"tool":  CodeToolNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"agent": CodeAgentTimeout,
	},
	ErrInvalidInput: {
		"tool": CodeToolInvalid,
	},
	ErrProviderError: {
		"embedding": CodeEmbeddingFailed,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	if kind, ok := AgentErrorKindOf(err); ok {
		if code, ok := errorCodeMap[kindSentinels[kind]]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
