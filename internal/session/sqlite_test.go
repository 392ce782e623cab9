package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dawdle-sh/dawdle/internal/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		Provider: "Anthropic",
		Model:    "claude-sonnet-4-5",
		Summary:  "mute the drum bus",
		MCP:      "reaper",
	}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("create did not assign an ID")
	}
	if sess.Status != StatusActive {
		t.Fatalf("status = %q, want active", sess.Status)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("session not found after create")
	}
	if got.MCP != "reaper" || got.Summary != "mute the drum bus" {
		t.Fatalf("unexpected session: %+v", got)
	}

	got.Name = "drum session"
	got.Status = StatusComplete
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, _ := store.Get(ctx, sess.ID)
	if got2.Name != "drum session" || got2.Status != StatusComplete {
		t.Fatalf("update not persisted: %+v", got2)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if gone != nil {
		t.Fatal("session still present after delete")
	}
}

func TestGetMissingSessionIsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing session")
	}
}

func TestUpdateMissingSessionErrors(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), &Session{ID: "missing"})
	if err == nil {
		t.Fatal("expected error updating missing session")
	}
}

func TestUpdateMetricsAccumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "OpenAI", Model: "gpt-5.2"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateMetrics(ctx, sess.ID, 2, 1, 100, 40, 50); err != nil {
		t.Fatalf("update metrics: %v", err)
	}
	if err := store.UpdateMetrics(ctx, sess.ID, 1, 0, 30, 0, 20); err != nil {
		t.Fatalf("update metrics: %v", err)
	}
	if err := store.IncrementUserTurns(ctx, sess.ID); err != nil {
		t.Fatalf("increment user turns: %v", err)
	}

	got, _ := store.Get(ctx, sess.ID)
	if got.LLMTurns != 3 || got.ToolCalls != 1 {
		t.Fatalf("turns/calls = %d/%d", got.LLMTurns, got.ToolCalls)
	}
	if got.InputTokens != 130 || got.CachedInputTokens != 40 || got.OutputTokens != 70 {
		t.Fatalf("tokens = %d/%d/%d", got.InputTokens, got.CachedInputTokens, got.OutputTokens)
	}
	if got.UserTurns != 1 {
		t.Fatalf("user turns = %d", got.UserTurns)
	}
}

func TestMessagePartsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "Anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	assistant := llm.Message{
		Role: llm.RoleAssistant,
		Parts: []llm.Part{
			{Type: llm.PartText, Text: "Muting the drum bus now."},
			{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{
				ID:        "call_1",
				Name:      "reaper__set-track-mute",
				Arguments: json.RawMessage(`{"track":"Drum Bus","mute":true}`),
			}},
		},
	}

	if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, assistant, -1)); err != nil {
		t.Fatalf("add message: %v", err)
	}

	tool := llm.Message{
		Role: llm.RoleTool,
		Parts: []llm.Part{
			{Type: llm.PartToolResult, ToolResult: &llm.ToolResult{
				ID:      "call_1",
				Name:    "reaper__set-track-mute",
				Content: "muted",
			}},
		},
	}
	if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, tool, -1)); err != nil {
		t.Fatalf("add message: %v", err)
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Sequence != 0 || messages[1].Sequence != 1 {
		t.Fatalf("sequences = %d, %d", messages[0].Sequence, messages[1].Sequence)
	}

	restored := messages[0].ToLLMMessage()
	if restored.Role != llm.RoleAssistant || len(restored.Parts) != 2 {
		t.Fatalf("unexpected restored message: %+v", restored)
	}
	call := restored.Parts[1].ToolCall
	if call == nil || call.ID != "call_1" || string(call.Arguments) != `{"track":"Drum Bus","mute":true}` {
		t.Fatalf("tool call not preserved: %+v", call)
	}

	result := messages[1].ToLLMMessage().Parts[0].ToolResult
	if result == nil || result.Content != "muted" {
		t.Fatalf("tool result not preserved: %+v", result)
	}
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "Gemini", Model: "gemini-2.5-flash", Name: "mixing"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	msg := llm.Message{
		Role:  llm.RoleUser,
		Parts: []llm.Part{{Type: llm.PartText, Text: "add a compressor to the vocal chain"}},
	}
	if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, msg, -1)); err != nil {
		t.Fatalf("add message: %v", err)
	}

	results, err := store.Search(ctx, "compressor", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SessionID != sess.ID {
		t.Fatalf("session id = %q", results[0].SessionID)
	}
	if !strings.Contains(results[0].Snippet, "compressor") {
		t.Fatalf("snippet = %q", results[0].Snippet)
	}

	none, err := store.Search(ctx, "sidechain", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no results, got %d", len(none))
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &Session{Provider: "Anthropic", Model: "claude-sonnet-4-5"}
	b := &Session{Provider: "OpenAI", Model: "gpt-5.2", Status: StatusComplete}
	archived := &Session{Provider: "Anthropic", Model: "claude-sonnet-4-5", Archived: true}
	for _, s := range []*Session{a, b, archived} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("default list should exclude archived, got %d", len(all))
	}

	openai, err := store.List(ctx, ListOptions{Provider: "OpenAI"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(openai) != 1 || openai[0].ID != b.ID {
		t.Fatalf("provider filter failed: %+v", openai)
	}

	withArchived, err := store.List(ctx, ListOptions{Archived: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(withArchived) != 3 {
		t.Fatalf("archived list should include all, got %d", len(withArchived))
	}
}

func TestCurrentSessionTracking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cur, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if cur != nil {
		t.Fatal("expected no current session initially")
	}

	sess := &Session{Provider: "Anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetCurrent(ctx, sess.ID); err != nil {
		t.Fatalf("set current: %v", err)
	}

	cur, err = store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if cur == nil || cur.ID != sess.ID {
		t.Fatalf("current = %+v", cur)
	}

	if err := store.ClearCurrent(ctx); err != nil {
		t.Fatalf("clear current: %v", err)
	}
	cur, _ = store.GetCurrent(ctx)
	if cur != nil {
		t.Fatal("current session not cleared")
	}
}

func TestDeleteCascadesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "Anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	msg := llm.Message{Role: llm.RoleUser, Parts: []llm.Part{{Type: llm.PartText, Text: "hi"}}}
	if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, msg, -1)); err != nil {
		t.Fatalf("add message: %v", err)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages survived session delete: %d", len(messages))
	}
}

func TestNoopStoreWhenDisabled(t *testing.T) {
	store, err := NewStore(Config{Enabled: false})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok := store.(*NoopStore); !ok {
		t.Fatalf("expected NoopStore, got %T", store)
	}
}

func TestExtractTextContent(t *testing.T) {
	msg := NewMessage("s1", llm.Message{
		Role: llm.RoleAssistant,
		Parts: []llm.Part{
			{Type: llm.PartText, Text: "first"},
			{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{ID: "c1", Name: "t"}},
			{Type: llm.PartText, Text: "second"},
		},
	}, -1)
	if msg.TextContent != "first\nsecond" {
		t.Fatalf("text content = %q", msg.TextContent)
	}
}

func TestTruncateSummary(t *testing.T) {
	if got := TruncateSummary("  hello\nworld  "); got != "hello" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 150)
	got := TruncateSummary(long)
	if len(got) != 100 || !strings.HasSuffix(got, "...") {
		t.Fatalf("got len %d, %q", len(got), got[:10])
	}
}
