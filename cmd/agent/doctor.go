package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"jomra/internal/adapter/policy"
	"jomra/internal/infra/config"
	"jomra/internal/security"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// runDoctor executes all health checks and reports results.
func runDoctor(cfgPath string, w io.Writer) error {
	// Some checks work without a valid config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Memory backend", Fn: checkMemoryBackend},
		{Name: "Audit log", Fn: checkAuditLog},
		{Name: "Routing policy", Fn: checkPolicy},
		{Name: "Remote agent", Fn: checkRemoteAgent},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	fmt.Fprintln(w, "jomra doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parsed. A missing
// file is only a warning since the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkMemoryBackend verifies the memory data directory exists and is writable.
func checkMemoryBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Memory.Backend == "inmem" {
		return CheckResult{Status: StatusPass, Message: "in-memory backend (no persistence)"}
	}
	if err := checkWritableDir(cfg.Memory.DataDir); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     fmt.Sprintf("Create the directory or fix permissions: mkdir -p %s", cfg.Memory.DataDir),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("data directory %s writable (backend: %s)", cfg.Memory.DataDir, cfg.Memory.Backend),
	}
}

// checkAuditLog verifies the audit directory and the retention size.
func checkAuditLog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	audit := cfg.Security.Audit
	if !audit.Enabled {
		return CheckResult{Status: StatusWarn, Message: "audit logging disabled"}
	}
	if _, err := security.ParseSize(audit.MaxSize); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("invalid max_size: %v", err),
			Fix:     `Use a size such as "10MB"`,
		}
	}
	if err := checkWritableDir(filepath.Dir(audit.Path)); err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("audit log at %s", audit.Path)}
}

// checkPolicy parses the routing table and confirms the lookup key exists.
func checkPolicy(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	source := "built-in table"
	var table *policy.Table
	if cfg.Policy.Path == "" {
		table = policy.Load("", cfg.Supreme.Roles, nil)
	} else {
		data, err := os.ReadFile(cfg.Policy.Path)
		if err != nil {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("policy file unreadable, routing uses the built-in table: %v", err),
			}
		}
		table, err = policy.Parse(data, cfg.Supreme.Roles)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Fix the policy YAML"}
		}
		source = cfg.Policy.Path
	}

	key := policyKey(cfg)
	if len(table.Lookup(key).Roles) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s has no entry for %s", source, key),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d policies from %s, key %s found", table.Len(), source, key),
	}
}

// checkRemoteAgent verifies the remote agent has an API key when enabled.
func checkRemoteAgent(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	r := cfg.Agents.Remote
	if !r.Enabled {
		return CheckResult{Status: StatusPass, Message: "remote agent disabled"}
	}
	if r.APIKey == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "remote agent enabled without an API key",
			Fix:     "Set ANTHROPIC_API_KEY or agents.remote.api_key",
		}
	}
	if strings.HasPrefix(r.APIKey, "enc:") {
		return CheckResult{
			Status:  StatusFail,
			Message: "API key is encrypted but JOMRA_CONFIG_KEY is not set",
			Fix:     "Export JOMRA_CONFIG_KEY with the passphrase used to encrypt it",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("remote agent %s using %s", r.ID, r.Model)}
}

// checkDiskSpace checks available disk space in the data directory.
func checkDiskSpace(cfg *config.Config) CheckResult {
	dataDir := "./data"
	if cfg != nil && cfg.Memory.DataDir != "" {
		dataDir = cfg.Memory.DataDir
	}
	absDir, _ := filepath.Abs(dataDir)

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusPass,
			Message: "data directory does not exist yet, space check skipped",
		}
	}

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "could not determine disk space (df command failed)"}
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	if len(lines) < 2 || len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available, usePercent := fields[3], fields[4]
	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	switch {
	case pct >= 95:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("disk almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up disk space or move memory.data_dir to another partition",
		}
	case pct >= 85:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available),
	}
}

// checkWritableDir creates dir if needed and probes it with a temp file.
func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no directory configured")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("directory %s cannot be created: %v", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat %s: %v", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory %s is not writable: %v", dir, err)
	}
	os.Remove(probe)
	return nil
}
