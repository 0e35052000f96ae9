package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"jomra/internal/domain"
	"jomra/internal/infra/tracer"
)

// RetentionPolicy bounds the audit log.
type RetentionPolicy struct {
	MaxAge  time.Duration // 0 = no limit
	MaxSize int64         // bytes; 0 = no limit
}

// FileAuditLogger implements domain.AuditLogger as an append-only JSONL file.
type FileAuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention *RetentionPolicy
}

// NewFileAuditLogger opens path for appending, creating it with 0600.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// SetRetention sets the policy applied by EnforceRetention.
func (a *FileAuditLogger) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = &policy
}

// Log appends event as one JSON line and mirrors it onto the active span.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = domain.RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(event.Detail))
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// Close closes the log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// Subscribe records security rejections, agent failures and memory wipes
// published on bus. It returns the unsubscribe function.
func Subscribe(bus domain.EventBus, audit domain.AuditLogger, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	handler := func(ctx context.Context, ev domain.Event) {
		entry, ok := auditEntry(ev)
		if !ok {
			return
		}
		if err := audit.Log(ctx, entry); err != nil {
			logger.Warn("audit write failed", "event", string(ev.Type), "error", err)
		}
	}

	unsubs := []func(){
		bus.Subscribe(domain.EventSecurityRejected, handler),
		bus.Subscribe(domain.EventAgentError, handler),
		bus.Subscribe(domain.EventMemoryCleared, handler),
		bus.Subscribe(domain.EventMemoryPruned, handler),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func auditEntry(ev domain.Event) (domain.AuditEvent, bool) {
	entry := domain.AuditEvent{Timestamp: ev.Timestamp, RequestID: ev.RequestID, Detail: map[string]string{}}
	switch ev.Type {
	case domain.EventSecurityRejected:
		var p domain.SecurityRejectedPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return entry, false
		}
		entry.Type = domain.AuditSecurityRejected
		entry.Outcome = "rejected"
		entry.Detail["reason"] = p.Reason
		entry.Detail["confidence"] = strconv.FormatFloat(p.Confidence, 'f', 2, 64)
		entry.Detail["input_len"] = strconv.Itoa(p.InputLen)
	case domain.EventAgentError:
		var p domain.AgentErrorPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return entry, false
		}
		entry.Type = domain.AuditAgentFailure
		entry.Outcome = "error"
		entry.Detail["agent_id"] = p.AgentID
		entry.Detail["error"] = p.Error
	case domain.EventMemoryCleared:
		entry.Type = domain.AuditMemoryClear
		entry.Outcome = "success"
	case domain.EventMemoryPruned:
		entry.Type = domain.AuditMemoryPrune
		entry.Outcome = "success"
		var p struct {
			Removed int64 `json:"removed"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil {
			entry.Detail["removed"] = strconv.FormatInt(p.Removed, 10)
		}
	default:
		return entry, false
	}
	return entry, true
}

// EnforceRetention rewrites the log keeping only entries the policy allows,
// dropping the oldest first. It returns how many entries were removed.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (removed int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	policy := a.retention
	if policy == nil || (policy.MaxAge == 0 && policy.MaxSize == 0) {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = time.Now().Add(-policy.MaxAge)
	}

	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close for retention: %w", err)
	}
	// Whatever happens below, leave the logger writable.
	defer func() {
		if a.file == nil {
			a.file, _ = openAppend(a.path)
		}
	}()
	a.file = nil

	kept, keptSize, removed, err := readRetained(a.path, cutoff)
	if err != nil {
		return 0, err
	}
	for policy.MaxSize > 0 && keptSize > policy.MaxSize && len(kept) > 0 {
		keptSize -= int64(len(kept[0])) + 1
		kept = kept[1:]
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := a.path + ".tmp"
	if err := writeLines(tmp, kept); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	return removed, nil
}

func readRetained(path string, cutoff time.Time) (kept [][]byte, size int64, removed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open for reading: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && !entry.Timestamp.IsZero() && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
		size += int64(len(line)) + 1
	}
	if err := sc.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("scan audit log: %w", err)
	}
	return kept, size, removed, nil
}

func writeLines(path string, lines [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	return f.Close()
}

// ParseSize parses a human-readable size such as "512KB", "10MB" or "1GB".
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSuffix(s, u.suffix), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return n * mult, nil
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)
