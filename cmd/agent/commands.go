package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"jomra/internal/domain"
)

var errUsage = errors.New("usage")

// dispatch runs one CLI command. No command starts the interactive session.
func (a *app) dispatch(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 || args[0] == "chat" {
		return a.repl(ctx, in, out)
	}

	cmd, rest := args[0], args[1:]
	text := strings.TrimSpace(strings.Join(rest, " "))

	switch cmd {
	case "ask":
		if text == "" {
			return fmt.Errorf("%w: jomra ask TEXT", errUsage)
		}
		a.ask(ctx, text, out)
		return nil
	case "ensemble":
		if text == "" {
			return fmt.Errorf("%w: jomra ensemble TEXT", errUsage)
		}
		resp := a.agents.Orchestrator.ProcessEnsemble(ctx, a.execContext(), domain.TextInput(text))
		printResponse(out, resp)
		return nil
	case "pipeline":
		if len(rest) < 2 {
			return fmt.Errorf("%w: jomra pipeline ID[,ID...] TEXT", errUsage)
		}
		ids := splitIDs(rest[0])
		input := domain.TextInput(strings.Join(rest[1:], " "))
		resp := a.agents.Orchestrator.ProcessPipeline(ctx, a.execContext(), input, ids)
		printResponse(out, resp)
		return nil
	case "health":
		a.printHealth(out)
		return nil
	case "memory":
		if len(rest) != 1 || rest[0] != "clear" {
			return fmt.Errorf("%w: jomra memory clear", errUsage)
		}
		return a.clearMemory(ctx, out)
	default:
		return fmt.Errorf("unknown command: %s (run 'jomra help')", cmd)
	}
}

func (a *app) ask(ctx context.Context, text string, out io.Writer) {
	resp, err := a.agents.Supreme.Process(ctx, domain.TextInput(text))
	if err != nil {
		a.log.Debug("request rejected", "code", domain.ErrorCodeOf(err))
	}
	printResponse(out, resp)
}

func (a *app) clearMemory(ctx context.Context, out io.Writer) error {
	if err := a.mem.Store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	a.mem.Window.Clear()
	fmt.Fprintln(out, "Memory cleared.")
	return nil
}

// execContext builds the per-request bundle for the direct orchestration
// commands. The supreme orchestrator builds its own.
func (a *app) execContext() *domain.ExecutionContext {
	return domain.NewExecutionContext().
		Tools(a.agents.Tools).
		APIClient(a.agents.APIClient).
		History(a.mem.Window).
		Build()
}

// repl reads one request per line until EOF, "exit" or "quit". Lines starting
// with '/' are session commands.
func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "jomra ready. Type /help for commands, exit to quit.")
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(out, "/health  agent health\n/clear   wipe memory\n/turns   show the conversation window\n/quit    leave")
			continue
		case "/health":
			a.printHealth(out)
			continue
		case "/clear":
			if err := a.clearMemory(ctx, out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		case "/turns":
			a.printTurns(out)
			continue
		}
		a.ask(ctx, line, out)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) printHealth(out io.Writer) {
	health := a.agents.Orchestrator.Health()
	ids := make([]string, 0, len(health))
	for id := range health {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h := health[id]
		if h.Reason != "" {
			fmt.Fprintf(out, "%-18s %-12s %s\n", id, h.State, h.Reason)
		} else {
			fmt.Fprintf(out, "%-18s %s\n", id, h.State)
		}
	}
}

func (a *app) printTurns(out io.Writer) {
	turns := a.mem.Window.Turns()
	if len(turns) == 0 {
		fmt.Fprintln(out, "(no turns)")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(out, "[%s] you: %s\n         agent: %s\n", t.Timestamp.Format("15:04:05"), t.UserText, t.AgentText)
	}
	fmt.Fprintf(out, "%d turns, ~%d tokens\n", len(turns), a.mem.Window.TotalTokens())
}

func printResponse(out io.Writer, r *domain.AgentResponse) {
	if r == nil {
		fmt.Fprintln(out, "[NONE]")
		return
	}
	fmt.Fprintf(out, "[%s %.2f] %s\n", r.Status, r.Confidence, r.Text)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
