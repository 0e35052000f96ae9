package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Orchestrator.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Orchestrator.Workers)
	}
	if cfg.Orchestrator.MinTimeout != 5*time.Second || cfg.Orchestrator.MaxTimeout != 30*time.Second {
		t.Errorf("timeouts = %s/%s, want 5s/30s", cfg.Orchestrator.MinTimeout, cfg.Orchestrator.MaxTimeout)
	}
	if cfg.Memory.ShortTermCapacity != 10 {
		t.Errorf("ShortTermCapacity = %d, want 10", cfg.Memory.ShortTermCapacity)
	}
	if cfg.Conversation.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.Conversation.MaxTokens)
	}
	if cfg.Supreme.MaxSteps != 5 || cfg.Supreme.ConfidenceFloor != 0.7 {
		t.Errorf("Supreme bounds = %d/%v, want 5/0.7", cfg.Supreme.MaxSteps, cfg.Supreme.ConfidenceFloor)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.Workers != 3 {
		t.Errorf("expected defaults, got Workers=%d", cfg.Orchestrator.Workers)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
orchestrator:
  workers: 6
  ensemble_wait: 2s
memory:
  backend: inmem
conversation:
  max_turns: 4
supreme:
  roles:
    writer: planning
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.Workers != 6 {
		t.Errorf("Workers = %d, want 6", cfg.Orchestrator.Workers)
	}
	if cfg.Orchestrator.EnsembleWait != 2*time.Second {
		t.Errorf("EnsembleWait = %s, want 2s", cfg.Orchestrator.EnsembleWait)
	}
	if cfg.Memory.Backend != "inmem" {
		t.Errorf("Backend = %q, want inmem", cfg.Memory.Backend)
	}
	if cfg.Conversation.MaxTurns != 4 {
		t.Errorf("MaxTurns = %d, want 4", cfg.Conversation.MaxTurns)
	}
	if cfg.Supreme.Roles["writer"] != "planning" {
		t.Errorf("Roles[writer] = %q, want planning", cfg.Supreme.Roles["writer"])
	}
	// Untouched sections keep their defaults.
	if cfg.Memory.ShortTermCapacity != 10 {
		t.Errorf("ShortTermCapacity = %d, want default 10", cfg.Memory.ShortTermCapacity)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("orchestrator: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("orchestrator:\n  workers: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "orchestrator.workers") {
		t.Errorf("error = %v, want mention of orchestrator.workers", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for world-writable config")
	}
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0644, false},
		{0664, true},
		{0666, true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.mode.String())
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, tt.mode); err != nil {
			t.Fatal(err)
		}
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JOMRA_LOGGER_LEVEL", "debug")
	t.Setenv("JOMRA_MEMORY_BACKEND", "inmem")
	t.Setenv("JOMRA_ORCHESTRATOR_WORKERS", "8")
	t.Setenv("JOMRA_CONVERSATION_ESTIMATOR", "tiktoken")
	t.Setenv("JOMRA_AGENTS_ENABLED", "qa_agent, planning,")
	t.Setenv("JOMRA_TRACER_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.Memory.Backend != "inmem" {
		t.Errorf("Memory.Backend = %q, want inmem", cfg.Memory.Backend)
	}
	if cfg.Orchestrator.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Orchestrator.Workers)
	}
	if cfg.Conversation.Estimator != "tiktoken" {
		t.Errorf("Estimator = %q, want tiktoken", cfg.Conversation.Estimator)
	}
	if got := cfg.Agents.Enabled; len(got) != 2 || got[0] != "qa_agent" || got[1] != "planning" {
		t.Errorf("Agents.Enabled = %v", got)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
}

func TestEnvOverridesIgnoresBadInt(t *testing.T) {
	t.Setenv("JOMRA_ORCHESTRATOR_WORKERS", "many")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Orchestrator.Workers != 3 {
		t.Errorf("Workers = %d, want default 3", cfg.Orchestrator.Workers)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-ant-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptValue(encrypted, "wrong-pass"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptValueMalformed(t *testing.T) {
	for _, in := range []string{"no-separator", "zz:00", "00:zz", "00:00"} {
		if _, err := DecryptValue(in, "pass"); err == nil {
			t.Errorf("DecryptValue(%q) should fail", in)
		}
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	passphrase := "config-key"
	encrypted, err := EncryptValue("sk-ant-real", passphrase)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "agents:\n  remote:\n    enabled: true\n    api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOMRA_CONFIG_KEY", passphrase)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents.Remote.APIKey != "sk-ant-real" {
		t.Errorf("APIKey = %q, want decrypted value", cfg.Agents.Remote.APIKey)
	}
}

func TestDecryptSecretsLeavesPlainKey(t *testing.T) {
	cfg := Defaults()
	cfg.Agents.Remote.APIKey = "sk-plain"
	if err := decryptSecrets(cfg, "any"); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.Agents.Remote.APIKey != "sk-plain" {
		t.Error("plain key should be unchanged")
	}
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.Agents.Remote.APIKey = "enc:notvalidhex"
	if err := decryptSecrets(cfg, "passphrase"); err == nil {
		t.Error("expected error for invalid ciphertext")
	}
}
