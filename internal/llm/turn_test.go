package llm

import (
	"testing"
)

func reduceAll(events ...Event) Turn {
	state := newTurnState()
	for _, event := range events {
		state.reduce(event)
	}
	return state.finalize()
}

func TestTurnStateAccumulatesTextDeltas(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventTextDelta, Text: "Hello, "},
		Event{Type: EventTextDelta, Text: "world"},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(turn.Parts))
	}
	if turn.Parts[0].Type != PartText || turn.Parts[0].Text != "Hello, world" {
		t.Fatalf("unexpected part: %+v", turn.Parts[0])
	}
	if turn.Text() != "Hello, world" {
		t.Fatalf("Text() = %q", turn.Text())
	}
}

func TestTurnStateSeparatesTextAndThought(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventThinkingDelta, Text: "let me think"},
		Event{Type: EventTextDelta, Text: "the answer"},
		Event{Type: EventThinkingDelta, Text: "more thinking"},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(turn.Parts), turn.Parts)
	}
	want := []struct {
		typ  PartType
		text string
	}{
		{PartThought, "let me think"},
		{PartText, "the answer"},
		{PartThought, "more thinking"},
	}
	for i, w := range want {
		if turn.Parts[i].Type != w.typ || turn.Parts[i].Text != w.text {
			t.Errorf("part %d = %+v, want {%s %q}", i, turn.Parts[i], w.typ, w.text)
		}
	}
}

func TestTurnStateSignatureClosesThoughtPart(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventThinkingDelta, Text: "signed reasoning"},
		Event{Type: EventSignature, Text: "sig-abc"},
		Event{Type: EventThinkingDelta, Text: "unsigned reasoning"},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %+v", len(turn.Parts), turn.Parts)
	}
	if turn.Parts[0].Signature != "sig-abc" {
		t.Errorf("expected signature on first part, got %q", turn.Parts[0].Signature)
	}
	if turn.Parts[0].Text != "signed reasoning" {
		t.Errorf("first part text = %q", turn.Parts[0].Text)
	}
	if turn.Parts[1].Signature != "" {
		t.Errorf("second part should carry no signature, got %q", turn.Parts[1].Signature)
	}
}

func TestTurnStateAccumulatesToolCallArguments(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolID: "call-1", ToolName: "list-tracks"},
		Event{Type: EventToolCallDelta, ToolIndex: 0, Text: `{"proj`},
		Event{Type: EventToolCallDelta, ToolIndex: 0, Text: `ect":"demo"}`},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(turn.Calls))
	}
	call := turn.Calls[0]
	if call.ID != "call-1" || call.Name != "list-tracks" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if string(call.Arguments) != `{"project":"demo"}` {
		t.Fatalf("arguments = %s", call.Arguments)
	}
	if len(turn.Malformed) != 0 {
		t.Fatalf("unexpected malformed calls: %v", turn.Malformed)
	}
}

func TestTurnStateMalformedArgumentsFallBackToEmptyObject(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolID: "call-1", ToolName: "add-clip"},
		Event{Type: EventToolCallDelta, ToolIndex: 0, Text: `{"track": 1,`},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(turn.Calls))
	}
	if string(turn.Calls[0].Arguments) != "{}" {
		t.Fatalf("expected empty-object fallback, got %s", turn.Calls[0].Arguments)
	}
	if len(turn.Malformed) != 1 || turn.Malformed[0] != "add-clip" {
		t.Fatalf("expected add-clip reported malformed, got %v", turn.Malformed)
	}
}

func TestTurnStateEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolID: "call-1", ToolName: "list-tracks"},
		Event{Type: EventTurnEnd},
	)

	if string(turn.Calls[0].Arguments) != "{}" {
		t.Fatalf("arguments = %s", turn.Calls[0].Arguments)
	}
	if len(turn.Malformed) != 0 {
		t.Fatalf("missing arguments are not malformed: %v", turn.Malformed)
	}
}

func TestTurnStateSynthesizesMissingCallIDs(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolName: "first"},
		Event{Type: EventToolCallStart, ToolIndex: 1, ToolName: "second"},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(turn.Calls))
	}
	if turn.Calls[0].ID != "toolcall-0" || turn.Calls[1].ID != "toolcall-1" {
		t.Fatalf("unexpected ids: %q, %q", turn.Calls[0].ID, turn.Calls[1].ID)
	}
}

func TestTurnStateDedupesCallsByID(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolID: "call-1", ToolName: "list-tracks"},
		Event{Type: EventToolCallStart, ToolIndex: 1, ToolID: "call-1", ToolName: "list-tracks"},
		Event{Type: EventTurnEnd},
	)

	if len(turn.Calls) != 1 {
		t.Fatalf("expected 1 call after dedupe, got %d", len(turn.Calls))
	}
}

func TestTurnStateIgnoresEventsAfterTurnEnd(t *testing.T) {
	state := newTurnState()
	state.reduce(Event{Type: EventTextDelta, Text: "before"})
	state.reduce(Event{Type: EventTurnEnd})
	state.reduce(Event{Type: EventTextDelta, Text: " after"})
	turn := state.finalize()

	if turn.Text() != "before" {
		t.Fatalf("Text() = %q, want %q", turn.Text(), "before")
	}
}

func TestTurnStateAccumulatesUsage(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventUsage, Use: &Usage{InputTokens: 100, OutputTokens: 5}},
		Event{Type: EventUsage, Use: &Usage{OutputTokens: 20, CachedInputTokens: 50}},
		Event{Type: EventTurnEnd},
	)

	if turn.Usage == nil {
		t.Fatal("expected usage")
	}
	if turn.Usage.InputTokens != 100 || turn.Usage.OutputTokens != 25 || turn.Usage.CachedInputTokens != 50 {
		t.Fatalf("unexpected usage: %+v", turn.Usage)
	}
}

func TestTurnMessageOrdersContentBeforeCalls(t *testing.T) {
	turn := reduceAll(
		Event{Type: EventTextDelta, Text: "checking the project"},
		Event{Type: EventToolCallStart, ToolIndex: 0, ToolID: "call-1", ToolName: "list-tracks"},
		Event{Type: EventTurnEnd},
	)

	msg := turn.Message()
	if msg.Role != RoleAssistant {
		t.Fatalf("role = %v", msg.Role)
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(msg.Parts))
	}
	if msg.Parts[0].Type != PartText || msg.Parts[1].Type != PartToolCall {
		t.Fatalf("unexpected part order: %v, %v", msg.Parts[0].Type, msg.Parts[1].Type)
	}
	if msg.Parts[1].ToolCall.ID != "call-1" {
		t.Fatalf("tool call id = %q", msg.Parts[1].ToolCall.ID)
	}
}
