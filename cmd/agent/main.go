package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jomra/internal/infra/config"
	"jomra/internal/infra/logger"
	"jomra/internal/infra/tracer"
	"jomra/internal/usecase/eventbus"
)

func main() {
	cfgPath, args := splitConfigFlag(os.Args[1:])

	if len(args) > 0 {
		switch args[0] {
		case "--help", "-h", "help":
			showUsage(os.Stdout)
			return
		case "doctor":
			if err := runDoctor(cfgPath, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(cfgPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `jomra - multi-agent orchestration core

USAGE:
    jomra [--config PATH] [COMMAND] [ARGS]

COMMANDS:
    (none)                    Interactive session through the supreme orchestrator
    ask TEXT                  Answer one request through the supreme orchestrator
    ensemble TEXT             Run every agent and keep the most confident answer
    pipeline IDS TEXT         Chain agents (comma-separated ids), each feeding the next
    health                    Show agent health
    memory clear              Wipe short-term, long-term and preference memory
    doctor                    Check configuration and storage
    help                      Show this message

CONFIGURATION:
    Config file: ./config.yaml (or $JOMRA_CONFIG)
    Environment: JOMRA_* variables override config; ANTHROPIC_API_KEY feeds the remote agent`)
}

// splitConfigFlag removes --config from args and returns the config path.
func splitConfigFlag(args []string) (string, []string) {
	path := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
		}
	}
	if path == "" {
		path = os.Getenv("JOMRA_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	return path, rest
}

func run(cfgPath string, args []string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Components
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.close(shutdownCtx)
	}()

	// 4. Command
	return a.dispatch(ctx, args, os.Stdin, os.Stdout)
}

// app owns every long-lived component.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	bus    *eventbus.Bus
	sec    *securityComponents
	mem    *memoryComponents
	agents *agentComponents

	secCleanup func()
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	bus := eventbus.New(log)

	sec, secCleanup, err := initSecurity(ctx, cfg, bus, log)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("security: %w", err)
	}

	mem, err := initMemory(ctx, cfg, bus, log)
	if err != nil {
		bus.Close()
		secCleanup()
		return nil, fmt.Errorf("memory: %w", err)
	}

	agents, err := initAgents(ctx, cfg, mem, sec, bus, log)
	if err != nil {
		mem.close(ctx, log)
		bus.Close()
		secCleanup()
		return nil, fmt.Errorf("agents: %w", err)
	}

	return &app{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		sec:        sec,
		mem:        mem,
		agents:     agents,
		secCleanup: secCleanup,
	}, nil
}

// close shuts components down in dependency order: agents, memory, then the
// bus so in-flight audit handlers finish before the audit log closes.
func (a *app) close(ctx context.Context) {
	if err := a.agents.Orchestrator.Shutdown(ctx); err != nil {
		a.log.Warn("agent shutdown error", "error", err)
	}
	a.mem.close(ctx, a.log)
	a.bus.Close()
	a.secCleanup()
}
