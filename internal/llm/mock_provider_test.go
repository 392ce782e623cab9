package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// sliceStream replays a fixed event slice, then io.EOF.
type sliceStream struct {
	events []Event
	index  int
}

func (s *sliceStream) Recv() (Event, error) {
	if s.index >= len(s.events) {
		return Event{}, io.EOF
	}
	event := s.events[s.index]
	s.index++
	return event, nil
}

func (s *sliceStream) Close() error {
	return nil
}

// fakeProvider scripts one event slice per backend call. streamErr, when
// set, fails dispatch itself.
type fakeProvider struct {
	script    func(call int, req Request) []Event
	streamErr error
	calls     []Request
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	p.calls = append(p.calls, req)
	call := len(p.calls) - 1
	return &sliceStream{events: p.script(call, req)}, nil
}

// textTurn scripts a plain text answer ending the exchange.
func textTurn(text string) []Event {
	return []Event{
		{Type: EventTextDelta, Text: text},
		{Type: EventTurnEnd},
	}
}

// toolTurn scripts a single complete tool call with streamed arguments.
func toolTurn(id, name, args string) []Event {
	return []Event{
		{Type: EventToolCallStart, ToolIndex: 0, ToolID: id, ToolName: name},
		{Type: EventToolCallDelta, ToolIndex: 0, Text: args},
		{Type: EventTurnEnd},
	}
}

// countingTool records executions and returns a fixed payload.
type countingTool struct {
	name   string
	output string
	calls  int
}

func (t *countingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        t.name,
		Description: "Counts executions",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *countingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.calls++
	if t.output != "" {
		return t.output, nil
	}
	return fmt.Sprintf("result %d", t.calls), nil
}

// failingTool always returns the configured error.
type failingTool struct {
	name  string
	err   error
	calls int
}

func (t *failingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        t.name,
		Description: "Always fails",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *failingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.calls++
	return "", t.err
}

// recordingTool captures the order and arguments of executions. Shared by
// multiple registered names to verify cross-tool ordering.
type recordingTool struct {
	name string
	log  *executionLog
}

type executionLog struct {
	mu      sync.Mutex
	entries []string
	args    []string
}

func (l *executionLog) record(name string, args json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, name)
	l.args = append(l.args, string(args))
}

func (t *recordingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        t.name,
		Description: "Records executions",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *recordingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.log.record(t.name, args)
	return "ok", nil
}

// panickingTool always panics when executed.
type panickingTool struct{ name string }

func (t *panickingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        t.name,
		Description: "Always panics",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *panickingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	panic("unexpected nil pointer")
}
