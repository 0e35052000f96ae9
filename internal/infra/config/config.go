package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Memory       MemoryConfig       `yaml:"memory"`
	Conversation ConversationConfig `yaml:"conversation"`
	Supreme      SupremeConfig      `yaml:"supreme"`
	Security     SecurityConfig     `yaml:"security"`
	Policy       PolicyConfig       `yaml:"policy"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Agents       AgentsConfig       `yaml:"agents"`
	Tools        ToolsConfig        `yaml:"tools"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
}

// OrchestratorConfig controls the execution coordinator.
type OrchestratorConfig struct {
	Workers        int                  `yaml:"workers"`
	TimeoutFactor  int                  `yaml:"timeout_factor"` // per-call timeout = latency * factor, clamped
	MinTimeout     time.Duration        `yaml:"min_timeout"`
	MaxTimeout     time.Duration        `yaml:"max_timeout"`
	EnsembleWait   time.Duration        `yaml:"ensemble_wait"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds per-agent circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// MemoryConfig holds two-tier memory settings.
type MemoryConfig struct {
	Backend            string        `yaml:"backend"` // "sqlite", "inmem"
	DataDir            string        `yaml:"data_dir"`
	ShortTermCapacity  int           `yaml:"short_term_capacity"`
	RetentionThreshold float64       `yaml:"retention_threshold"` // persist when importance > threshold
	RecallWindow       time.Duration `yaml:"recall_window"`
	RecallImportance   float64       `yaml:"recall_importance"`
	RecallCandidates   int           `yaml:"recall_candidates"`
	RecencyHorizon     time.Duration `yaml:"recency_horizon"`
	SimilarityWeight   float64       `yaml:"similarity_weight"`
	WriteQueueSize     int           `yaml:"write_queue_size"`
	EmbeddingCacheSize int           `yaml:"embedding_cache_size"`
	Prune              PruneConfig   `yaml:"prune"`
}

// PruneConfig controls scheduled removal of stale, unimportant memories.
type PruneConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Schedule        string        `yaml:"schedule"` // cron expression or descriptor, e.g. "@daily"
	MaxAge          time.Duration `yaml:"max_age"`
	ImportanceBelow float64       `yaml:"importance_below"`
}

// ConversationConfig bounds the rolling conversation window.
type ConversationConfig struct {
	MaxTurns  int    `yaml:"max_turns"`
	MaxTokens int    `yaml:"max_tokens"`
	Estimator string `yaml:"estimator"` // "chars", "tiktoken"
	Encoding  string `yaml:"encoding"`  // tiktoken encoding name
}

// SupremeConfig controls the supervising orchestrator.
type SupremeConfig struct {
	MaxSteps        int               `yaml:"max_steps"`
	ConfidenceFloor float64           `yaml:"confidence_floor"`
	RecallTopK      int               `yaml:"recall_top_k"`
	SmoothingFactor float64           `yaml:"smoothing_factor"`
	InitialAccuracy float64           `yaml:"initial_accuracy"`
	DefaultAgent    string            `yaml:"default_agent"`
	ArithmeticAgent string            `yaml:"arithmetic_agent"` // added when the query contains '+' or '-'
	CoderAgent      string            `yaml:"coder_agent"`
	ReasoningAgent  string            `yaml:"reasoning_agent"`
	Roles           map[string]string `yaml:"roles"` // policy role -> agent id
}

// SecurityConfig holds screening and audit settings.
type SecurityConfig struct {
	Denylist     []string    `yaml:"denylist"`
	MinOpaqueRun int         `yaml:"min_opaque_run"`
	MinInputLen  int         `yaml:"min_input_len"` // opaque-run check applies above this length
	Audit        AuditConfig `yaml:"audit"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`  // 0 = keep forever
	MaxSize string        `yaml:"max_size"` // e.g. "10MB"; empty = unbounded
}

// PolicyConfig locates the learned routing table.
type PolicyConfig struct {
	Path        string `yaml:"path"` // empty = embedded default
	Environment string `yaml:"environment"`
	Complexity  string `yaml:"complexity"`
	PerfProfile string `yaml:"perf_profile"`
}

// EmbeddingConfig holds text encoder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "hash"
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // 0 = disabled
}

// AgentsConfig toggles the built-in agents.
type AgentsConfig struct {
	Enabled []string     `yaml:"enabled"`
	Remote  RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds settings for the hosted-model agent.
type RemoteConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ID           string        `yaml:"id"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	MaxTokens    int64         `yaml:"max_tokens"`
	SystemPrompt string        `yaml:"system_prompt"`
	Latency      time.Duration `yaml:"latency"`
}

// ToolsConfig holds tool settings.
type ToolsConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // calls per second per tool, 0 = unlimited
	Burst     int     `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing and metrics export settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // noop, stdout or otlp
	Endpoint    string  `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns the persistent data directory under $HOME/.jomra/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".jomra", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Orchestrator: OrchestratorConfig{
			Workers:       3,
			TimeoutFactor: 3,
			MinTimeout:    5 * time.Second,
			MaxTimeout:    30 * time.Second,
			EnsembleWait:  15 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Memory: MemoryConfig{
			Backend:            "sqlite",
			DataDir:            filepath.Join(dataDir, "memory"),
			ShortTermCapacity:  10,
			RetentionThreshold: 0.3,
			RecallWindow:       7 * 24 * time.Hour,
			RecallImportance:   0.7,
			RecallCandidates:   100,
			RecencyHorizon:     30 * 24 * time.Hour,
			SimilarityWeight:   0.7,
			WriteQueueSize:     64,
			EmbeddingCacheSize: 1000,
			Prune: PruneConfig{
				Enabled:         true,
				Schedule:        "@daily",
				MaxAge:          30 * 24 * time.Hour,
				ImportanceBelow: 0.5,
			},
		},
		Conversation: ConversationConfig{
			MaxTurns:  20,
			MaxTokens: 4096,
			Estimator: "chars",
			Encoding:  "cl100k_base",
		},
		Supreme: SupremeConfig{
			MaxSteps:        5,
			ConfidenceFloor: 0.7,
			RecallTopK:      3,
			SmoothingFactor: 0.2,
			InitialAccuracy: 0.9,
			DefaultAgent:    "qa_agent",
			ArithmeticAgent: "tool_agent",
			CoderAgent:      "remote_agent",
			ReasoningAgent:  "chain_of_thought",
			Roles: map[string]string{
				"writer":     "qa_agent",
				"researcher": "tool_agent",
				"analyst":    "chain_of_thought",
				"planner":    "planning",
			},
		},
		Security: SecurityConfig{
			Denylist: []string{
				"unrestricted ai",
				"evil ai",
				"no restrictions",
				"ignore previous instructions",
				"bypass security",
			},
			MinOpaqueRun: 30,
			MinInputLen:  20,
			Audit: AuditConfig{
				Enabled: true,
				Path:    filepath.Join(dataDir, "audit.jsonl"),
				MaxAge:  90 * 24 * time.Hour,
				MaxSize: "10MB",
			},
		},
		Policy: PolicyConfig{
			Environment: "env_coordination",
			Complexity:  "medium",
			PerfProfile: "high_perf",
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 128,
			CacheSize:  1000,
		},
		Agents: AgentsConfig{
			Enabled: []string{"qa_agent", "tool_agent", "chain_of_thought", "planning", "rl_agent", "multimodal"},
			Remote: RemoteConfig{
				Enabled:      false,
				ID:           "remote_agent",
				Model:        "claude-sonnet-4-20250514",
				MaxTokens:    1024,
				SystemPrompt: "You are a concise assistant. Answer the user's request directly.",
				Latency:      2 * time.Second,
			},
		},
		Tools: ToolsConfig{
			RateLimit: 5,
			Burst:     10,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			SampleRatio: 1.0,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("JOMRA_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps JOMRA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOMRA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("JOMRA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("JOMRA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("JOMRA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("JOMRA_TRACER_ENDPOINT"); v != "" {
		cfg.Tracer.Endpoint = v
	}
	if v := os.Getenv("JOMRA_MEMORY_BACKEND"); v != "" {
		cfg.Memory.Backend = v
	}
	if v := os.Getenv("JOMRA_MEMORY_DATA_DIR"); v != "" {
		cfg.Memory.DataDir = v
	}
	if v := os.Getenv("JOMRA_ORCHESTRATOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.Workers = n
		}
	}
	if v := os.Getenv("JOMRA_CONVERSATION_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Conversation.MaxTokens = n
		}
	}
	if v := os.Getenv("JOMRA_CONVERSATION_ESTIMATOR"); v != "" {
		cfg.Conversation.Estimator = v
	}
	if v := os.Getenv("JOMRA_POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("JOMRA_AUDIT_PATH"); v != "" {
		cfg.Security.Audit.Path = v
	}
	if v := os.Getenv("JOMRA_AGENTS_ENABLED"); v != "" {
		cfg.Agents.Enabled = splitAndTrim(v, ",")
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Agents.Remote.APIKey == "" {
		cfg.Agents.Remote.APIKey = v
	}
	if v := os.Getenv("JOMRA_REMOTE_ENABLED"); v == "true" {
		cfg.Agents.Remote.Enabled = true
	}
	if v := os.Getenv("JOMRA_REMOTE_MODEL"); v != "" {
		cfg.Agents.Remote.Model = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets replaces "enc:..." values with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	key := cfg.Agents.Remote.APIKey
	if strings.HasPrefix(key, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("remote agent api_key: %w", err)
		}
		cfg.Agents.Remote.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
