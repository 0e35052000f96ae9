package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"jomra/internal/domain"
	"jomra/internal/infra/config"
	"jomra/internal/security"
)

// securityComponents holds the screener and the optional audit log.
type securityComponents struct {
	Screener *security.Screener
	Audit    *security.FileAuditLogger // nil when audit is disabled
}

// initSecurity builds the input screener and, when enabled, opens the audit
// log, trims it to the retention policy and subscribes it to bus.
func initSecurity(ctx context.Context, cfg *config.Config, bus domain.EventBus, log *slog.Logger) (*securityComponents, func(), error) {
	comp := &securityComponents{
		Screener: security.NewScreener(security.ScreenOptions{
			Denylist:     cfg.Security.Denylist,
			MinOpaqueRun: cfg.Security.MinOpaqueRun,
			MinInputLen:  cfg.Security.MinInputLen,
		}),
	}
	if !cfg.Security.Audit.Enabled {
		return comp, func() {}, nil
	}

	auditCfg := cfg.Security.Audit
	if err := os.MkdirAll(filepath.Dir(auditCfg.Path), 0700); err != nil {
		return nil, nil, fmt.Errorf("create audit dir: %w", err)
	}
	audit, err := security.NewFileAuditLogger(auditCfg.Path)
	if err != nil {
		return nil, nil, err
	}

	maxSize, err := security.ParseSize(auditCfg.MaxSize)
	if err != nil {
		audit.Close()
		return nil, nil, fmt.Errorf("audit max_size: %w", err)
	}
	audit.SetRetention(security.RetentionPolicy{MaxAge: auditCfg.MaxAge, MaxSize: maxSize})
	if removed, err := audit.EnforceRetention(ctx); err != nil {
		log.Warn("audit retention failed", "error", err)
	} else if removed > 0 {
		log.Info("audit log trimmed", "removed", removed)
	}

	unsubscribe := security.Subscribe(bus, audit, log)
	comp.Audit = audit
	log.Info("audit logging enabled", "path", auditCfg.Path)

	return comp, func() {
		unsubscribe()
		audit.Close()
	}, nil
}
