package llm

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DebugLogger writes a timestamped trace of requests, stream events and
// tool round-trips. All methods are safe on a nil receiver so callers can
// leave debugging unwired.
type DebugLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDebugLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{w: w}
}

func (l *DebugLogger) Logf(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

func (l *DebugLogger) LogRequest(provider, model string, messages, iteration int) {
	l.Logf("request provider=%s model=%s messages=%d iteration=%d", provider, model, messages, iteration)
}

func (l *DebugLogger) LogEvent(event Event) {
	if l == nil {
		return
	}
	switch event.Type {
	case EventTextDelta, EventThinkingDelta:
		l.Logf("event %s %q", event.Type, truncateDebug(event.Text, 80))
	case EventToolCallStart:
		l.Logf("event %s index=%d id=%s name=%s", event.Type, event.ToolIndex, event.ToolID, event.ToolName)
	case EventToolCallDelta:
		l.Logf("event %s index=%d fragment=%q", event.Type, event.ToolIndex, truncateDebug(event.Text, 80))
	case EventUsage:
		if event.Use != nil {
			l.Logf("event usage in=%d out=%d cached=%d", event.Use.InputTokens, event.Use.OutputTokens, event.Use.CachedInputTokens)
		}
	case EventRetry:
		l.Logf("event retry attempt=%d/%d wait=%.1fs", event.RetryAttempt, event.RetryMaxAttempts, event.RetryWaitSecs)
	case EventError:
		l.Logf("event error: %v", event.Err)
	default:
		l.Logf("event %s", event.Type)
	}
}

func (l *DebugLogger) LogToolResult(id, name, result string, isError bool) {
	status := "ok"
	if isError {
		status = "error"
	}
	l.Logf("tool %s id=%s %s: %s", name, id, status, truncateDebug(result, 200))
}

func truncateDebug(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
