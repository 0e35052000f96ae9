package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jomra/internal/infra/config"
)

func TestCheckConfigFile_NotFound(t *testing.T) {
	result := checkConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)(config.Defaults())
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing file, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	result := checkConfigFile("config.yaml", errors.New("bad yaml"))(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, path, "logger:\n  level: debug\n"); err != nil {
		t.Fatal(err)
	}
	result := checkConfigFile(path, nil)(config.Defaults())
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckMemoryBackend(t *testing.T) {
	if r := checkMemoryBackend(nil); r.Status != StatusFail {
		t.Errorf("nil config: got %s", r.Status)
	}

	cfg := config.Defaults()
	cfg.Memory.Backend = "inmem"
	if r := checkMemoryBackend(cfg); r.Status != StatusPass {
		t.Errorf("inmem: got %s", r.Status)
	}

	cfg.Memory.Backend = "sqlite"
	cfg.Memory.DataDir = filepath.Join(t.TempDir(), "memory")
	if r := checkMemoryBackend(cfg); r.Status != StatusPass {
		t.Errorf("writable dir: got %s: %s", r.Status, r.Message)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := writeTestFile(t, blocker, "x"); err != nil {
		t.Fatal(err)
	}
	cfg.Memory.DataDir = blocker
	if r := checkMemoryBackend(cfg); r.Status != StatusFail {
		t.Errorf("file as dir: got %s", r.Status)
	}
}

func TestCheckAuditLog(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.Audit.Path = filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	if r := checkAuditLog(cfg); r.Status != StatusPass {
		t.Errorf("got %s: %s", r.Status, r.Message)
	}

	cfg.Security.Audit.MaxSize = "lots"
	if r := checkAuditLog(cfg); r.Status != StatusFail {
		t.Errorf("bad size: got %s", r.Status)
	}

	cfg.Security.Audit.Enabled = false
	if r := checkAuditLog(cfg); r.Status != StatusWarn {
		t.Errorf("disabled: got %s", r.Status)
	}
}

func TestCheckPolicy(t *testing.T) {
	cfg := config.Defaults()
	if r := checkPolicy(cfg); r.Status != StatusPass {
		t.Errorf("built-in table: got %s: %s", r.Status, r.Message)
	}

	cfg.Policy.Environment = "env_unknown"
	if r := checkPolicy(cfg); r.Status != StatusWarn {
		t.Errorf("missing key: got %s", r.Status)
	}

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := writeTestFile(t, path, "policies:\n  - environment: a\n"); err != nil {
		t.Fatal(err)
	}
	cfg.Policy.Path = path
	if r := checkPolicy(cfg); r.Status != StatusFail {
		t.Errorf("incomplete entry: got %s", r.Status)
	}

	cfg.Policy.Path = filepath.Join(t.TempDir(), "absent.yaml")
	if r := checkPolicy(cfg); r.Status != StatusWarn {
		t.Errorf("unreadable file: got %s", r.Status)
	}
}

func TestCheckRemoteAgent(t *testing.T) {
	cfg := config.Defaults()
	if r := checkRemoteAgent(cfg); r.Status != StatusPass {
		t.Errorf("disabled: got %s", r.Status)
	}

	cfg.Agents.Remote.Enabled = true
	cfg.Agents.Remote.APIKey = ""
	if r := checkRemoteAgent(cfg); r.Status != StatusFail {
		t.Errorf("no key: got %s", r.Status)
	}

	cfg.Agents.Remote.APIKey = "enc:abcd"
	if r := checkRemoteAgent(cfg); r.Status != StatusFail {
		t.Errorf("encrypted key: got %s", r.Status)
	}

	cfg.Agents.Remote.APIKey = "sk-ant-test"
	if r := checkRemoteAgent(cfg); r.Status != StatusPass {
		t.Errorf("with key: got %s", r.Status)
	}
}

func TestCheckDiskSpace_NonexistentDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Memory.DataDir = "/nonexistent/path/doctor-test"
	if r := checkDiskSpace(cfg); r.Status != StatusPass {
		t.Errorf("expected PASS for nonexistent dir, got %s: %s", r.Status, r.Message)
	}
}

func TestStatusIcon(t *testing.T) {
	if statusIcon(StatusPass) != "[PASS]" {
		t.Error("wrong icon for PASS")
	}
	if statusIcon(StatusWarn) != "[WARN]" {
		t.Error("wrong icon for WARN")
	}
	if statusIcon(StatusFail) != "[FAIL]" {
		t.Error("wrong icon for FAIL")
	}
}

func TestRunDoctorReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "memory:\n  backend: inmem\n  data_dir: " + filepath.Join(dir, "mem") +
		"\nsecurity:\n  audit:\n    path: " + filepath.Join(dir, "audit.jsonl") + "\n"
	if err := writeTestFile(t, path, yaml); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runDoctor(path, &out); err != nil {
		t.Fatalf("runDoctor: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Results:") {
		t.Errorf("missing summary:\n%s", out.String())
	}
}

// writeTestFile creates a file readable only by the owner.
func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0600)
}
