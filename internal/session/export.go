package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dawdle-sh/dawdle/internal/llm"
)

// Export is the YAML document written by `dawdle sessions export`.
type Export struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name,omitempty"`
	Provider  string          `yaml:"provider"`
	Model     string          `yaml:"model"`
	MCP       string          `yaml:"mcp,omitempty"`
	CreatedAt time.Time       `yaml:"created_at"`
	UpdatedAt time.Time       `yaml:"updated_at"`
	Metrics   ExportMetrics   `yaml:"metrics"`
	Messages  []ExportMessage `yaml:"messages"`
}

// ExportMetrics holds the session counters for export.
type ExportMetrics struct {
	UserTurns         int `yaml:"user_turns"`
	LLMTurns          int `yaml:"llm_turns"`
	ToolCalls         int `yaml:"tool_calls"`
	InputTokens       int `yaml:"input_tokens"`
	CachedInputTokens int `yaml:"cached_input_tokens,omitempty"`
	OutputTokens      int `yaml:"output_tokens"`
}

// ExportMessage is one message in the export document.
type ExportMessage struct {
	Role      string       `yaml:"role"`
	CreatedAt time.Time    `yaml:"created_at"`
	Parts     []ExportPart `yaml:"parts"`
}

// ExportPart is one message part. Fields are omitted when empty so text-only
// messages stay readable.
type ExportPart struct {
	Type     string `yaml:"type"`
	Text     string `yaml:"text,omitempty"`
	ToolID   string `yaml:"tool_id,omitempty"`
	ToolName string `yaml:"tool_name,omitempty"`
	Input    string `yaml:"input,omitempty"`
	IsError  bool   `yaml:"is_error,omitempty"`
}

// WriteExport writes a session and its messages as YAML to w.
func WriteExport(ctx context.Context, store Store, sessionID string, w io.Writer) error {
	sess, err := store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	messages, err := store.GetMessages(ctx, sessionID, 0, 0)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	doc := Export{
		ID:        sess.ID,
		Name:      sess.Name,
		Provider:  sess.Provider,
		Model:     sess.Model,
		MCP:       sess.MCP,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Metrics: ExportMetrics{
			UserTurns:         sess.UserTurns,
			LLMTurns:          sess.LLMTurns,
			ToolCalls:         sess.ToolCalls,
			InputTokens:       sess.InputTokens,
			CachedInputTokens: sess.CachedInputTokens,
			OutputTokens:      sess.OutputTokens,
		},
	}

	for _, m := range messages {
		em := ExportMessage{
			Role:      string(m.Role),
			CreatedAt: m.CreatedAt,
		}
		for _, p := range m.Parts {
			em.Parts = append(em.Parts, exportPart(p))
		}
		doc.Messages = append(doc.Messages, em)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}

func exportPart(p llm.Part) ExportPart {
	ep := ExportPart{Type: string(p.Type)}
	switch p.Type {
	case llm.PartText, llm.PartThought, llm.PartError:
		ep.Text = p.Text
	case llm.PartToolCall:
		if p.ToolCall != nil {
			ep.ToolID = p.ToolCall.ID
			ep.ToolName = p.ToolCall.Name
			ep.Input = string(p.ToolCall.Arguments)
		}
	case llm.PartToolResult:
		if p.ToolResult != nil {
			ep.ToolID = p.ToolResult.ID
			ep.ToolName = p.ToolResult.Name
			ep.Text = p.ToolResult.Content
			ep.IsError = p.ToolResult.IsError
		}
	}
	return ep
}
