package session

import "context"

// NoopStore is a Store that does nothing. Used when sessions are disabled.
type NoopStore struct{}

func (n *NoopStore) Create(ctx context.Context, s *Session) error         { return nil }
func (n *NoopStore) Get(ctx context.Context, id string) (*Session, error) { return nil, nil }
func (n *NoopStore) Update(ctx context.Context, s *Session) error         { return nil }
func (n *NoopStore) Delete(ctx context.Context, id string) error          { return nil }

func (n *NoopStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	return nil, nil
}

func (n *NoopStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return nil, nil
}

func (n *NoopStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	return nil
}

func (n *NoopStore) GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error) {
	return nil, nil
}

func (n *NoopStore) UpdateMetrics(ctx context.Context, id string, llmTurns, toolCalls, inputTokens, cachedInputTokens, outputTokens int) error {
	return nil
}

func (n *NoopStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	return nil
}

func (n *NoopStore) IncrementUserTurns(ctx context.Context, id string) error { return nil }

func (n *NoopStore) SetCurrent(ctx context.Context, sessionID string) error { return nil }
func (n *NoopStore) GetCurrent(ctx context.Context) (*Session, error)       { return nil, nil }
func (n *NoopStore) ClearCurrent(ctx context.Context) error                 { return nil }

func (n *NoopStore) Close() error { return nil }
