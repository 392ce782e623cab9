package session

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// LoggingStore wraps a Store and logs write failures to stderr instead of
// propagating them. Session persistence is best-effort: a full disk or a
// locked database should never kill an active chat.
type LoggingStore struct {
	Store

	mu     sync.Mutex
	warned map[string]bool
}

// NewLoggingStore wraps the given store.
func NewLoggingStore(s Store) *LoggingStore {
	return &LoggingStore{Store: s, warned: make(map[string]bool)}
}

// logOnce prints at most one warning per operation name so a broken store
// doesn't flood the terminal on every message.
func (l *LoggingStore) logOnce(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.warned[op] {
		return
	}
	l.warned[op] = true
	fmt.Fprintf(os.Stderr, "warning: session %s failed (further warnings suppressed): %v\n", op, err)
}

func (l *LoggingStore) Create(ctx context.Context, s *Session) error {
	if err := l.Store.Create(ctx, s); err != nil {
		l.logOnce("create", err)
	}
	return nil
}

func (l *LoggingStore) Update(ctx context.Context, s *Session) error {
	if err := l.Store.Update(ctx, s); err != nil {
		l.logOnce("update", err)
	}
	return nil
}

func (l *LoggingStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	if err := l.Store.AddMessage(ctx, sessionID, msg); err != nil {
		l.logOnce("add message", err)
	}
	return nil
}

func (l *LoggingStore) UpdateMetrics(ctx context.Context, id string, llmTurns, toolCalls, inputTokens, cachedInputTokens, outputTokens int) error {
	if err := l.Store.UpdateMetrics(ctx, id, llmTurns, toolCalls, inputTokens, cachedInputTokens, outputTokens); err != nil {
		l.logOnce("update metrics", err)
	}
	return nil
}

func (l *LoggingStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	if err := l.Store.UpdateStatus(ctx, id, status); err != nil {
		l.logOnce("update status", err)
	}
	return nil
}

func (l *LoggingStore) IncrementUserTurns(ctx context.Context, id string) error {
	if err := l.Store.IncrementUserTurns(ctx, id); err != nil {
		l.logOnce("increment user turns", err)
	}
	return nil
}

func (l *LoggingStore) SetCurrent(ctx context.Context, sessionID string) error {
	if err := l.Store.SetCurrent(ctx, sessionID); err != nil {
		l.logOnce("set current", err)
	}
	return nil
}

func (l *LoggingStore) ClearCurrent(ctx context.Context) error {
	if err := l.Store.ClearCurrent(ctx); err != nil {
		l.logOnce("clear current", err)
	}
	return nil
}
