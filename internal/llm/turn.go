package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// turnState accumulates one stream's worth of events into a Turn. It is an
// explicit value threaded through the consume loop; reduce has no side
// effects beyond mutating the receiver.
type turnState struct {
	parts    []Part
	openKind PartType
	open     strings.Builder
	openSig  string

	calls   []*pendingCall
	byIndex map[int]*pendingCall

	usage *Usage
	ended bool
}

// pendingCall collects streamed argument fragments for one tool call until
// the turn ends and they can be parsed.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// Turn is the frozen output of one streaming call, before tool execution.
type Turn struct {
	Parts     []Part
	Calls     []ToolCall
	Usage     *Usage
	Malformed []string // names of calls whose streamed arguments failed to parse
}

func newTurnState() *turnState {
	return &turnState{byIndex: make(map[int]*pendingCall)}
}

// reduce folds one stream event into the accumulator. Events after turn-end
// are ignored.
func (t *turnState) reduce(event Event) {
	if t.ended {
		return
	}
	switch event.Type {
	case EventTextDelta:
		t.appendDelta(PartText, event.Text)
	case EventThinkingDelta:
		t.appendDelta(PartThought, event.Text)
	case EventSignature:
		// A signature binds the open thought part; close it so nothing
		// merges into the signed chunk.
		if t.openKind != PartThought {
			t.closeOpen()
			t.openKind = PartThought
		}
		t.openSig = event.Text
		t.closeOpen()
	case EventToolCallStart:
		call := &pendingCall{id: event.ToolID, name: event.ToolName}
		t.byIndex[event.ToolIndex] = call
		t.calls = append(t.calls, call)
	case EventToolCallDelta:
		if call, ok := t.byIndex[event.ToolIndex]; ok {
			call.args.WriteString(event.Text)
		}
	case EventUsage:
		if event.Use != nil {
			if t.usage == nil {
				t.usage = &Usage{}
			}
			t.usage.Add(event.Use)
		}
	case EventTurnEnd:
		t.ended = true
	}
}

// appendDelta accumulates into the open part of the given kind, closing a
// part of the other kind first. Text and thought content never share a part.
func (t *turnState) appendDelta(kind PartType, text string) {
	if t.openKind != kind {
		t.closeOpen()
		t.openKind = kind
	}
	t.open.WriteString(text)
}

func (t *turnState) closeOpen() {
	if t.openKind == "" {
		return
	}
	if t.open.Len() > 0 || t.openSig != "" {
		t.parts = append(t.parts, Part{
			Type:      t.openKind,
			Text:      t.open.String(),
			Signature: t.openSig,
		})
	}
	t.open.Reset()
	t.openKind = ""
	t.openSig = ""
}

// finalize freezes the turn: any open part is closed, accumulated argument
// fragments are parsed (malformed fragments fall back to an empty object),
// missing call ids are synthesized, and duplicate ids are dropped.
func (t *turnState) finalize() Turn {
	t.ended = true
	t.closeOpen()

	turn := Turn{Parts: t.parts, Usage: t.usage}
	seen := make(map[string]bool)
	for i, call := range t.calls {
		id := call.id
		if id == "" {
			id = fmt.Sprintf("toolcall-%d", i)
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		raw := strings.TrimSpace(call.args.String())
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			turn.Malformed = append(turn.Malformed, call.name)
			raw = "{}"
		}
		turn.Calls = append(turn.Calls, ToolCall{
			ID:        id,
			Name:      call.name,
			Arguments: json.RawMessage(raw),
		})
	}
	return turn
}

// Text returns the concatenated narrative text of the turn.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Thinking returns the concatenated reasoning text of the turn.
func (t Turn) Thinking() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Type == PartThought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Message folds the turn into an assistant message: content parts in stream
// order followed by one tool_call part per requested call.
func (t Turn) Message() Message {
	parts := append([]Part{}, t.Parts...)
	for i := range t.Calls {
		call := t.Calls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	msg := AssistantText("")
	msg.Parts = parts
	return msg
}

// Empty reports whether the turn produced no content and no calls.
func (t Turn) Empty() bool {
	return len(t.Parts) == 0 && len(t.Calls) == 0
}
