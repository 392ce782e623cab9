package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Provider streams model output events for a request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF. The final event before io.EOF is
// always EventTurnEnd, even when the backend cut off early.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
	Debug           bool
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartThought    PartType = "thought"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartError      PartType = "error"
)

// Message holds a role with structured parts.
type Message struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Part represents a single content part. Exactly one payload field is set
// according to Type. A thought part with a non-empty Signature carries an
// opaque marker from the backend that must round-trip unmodified; such
// parts are never merged with neighbors.
type Part struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	Signature  string      `json:"signature,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolCallRecord pairs a completed tool call with its execution outcome.
// Result is set exactly once, by the engine's executor.
type ToolCallRecord struct {
	ID      string
	Name    string
	Args    json.RawMessage
	Result  string
	IsError bool
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventThinkingDelta  EventType = "thinking_delta"
	EventSignature      EventType = "signature"
	EventToolCallStart  EventType = "tool_call_start"
	EventToolCallDelta  EventType = "tool_call_delta"
	EventTurnEnd        EventType = "turn_end"
	EventToolExecStart  EventType = "tool_exec_start"
	EventToolExecEnd    EventType = "tool_exec_end"
	EventUsage          EventType = "usage"
	EventError          EventType = "error"
	EventRetry          EventType = "retry"
)

// Event represents a streamed output update. Text carries the delta for
// text/thinking events and the argument fragment for tool_call_delta.
// ToolIndex keys a tool call across its start/delta events within one turn;
// backends that only provide ids use the id as the key via ToolID.
type Event struct {
	Type      EventType
	Text      string
	ToolIndex int
	ToolID    string
	ToolName  string
	Use       *Usage
	Err       error

	// Retry fields (for EventRetry)
	RetryAttempt     int
	RetryMaxAttempts int
	RetryWaitSecs    float64

	// Tool execution fields (for EventToolExecEnd)
	ToolSuccess bool
	ToolOutput  string
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// Add accumulates usage across iterations of one exchange.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedInputTokens += other.CachedInputTokens
}

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:      RoleUser,
		Parts:     []Part{{Type: PartText, Text: text}},
		Timestamp: time.Now(),
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:      RoleAssistant,
		Parts:     []Part{{Type: PartText, Text: text}},
		Timestamp: time.Now(),
	}
}

func ToolResultMessage(id, name, content string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: content,
			},
		}},
		Timestamp: time.Now(),
	}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error is fed back to the model so it can respond gracefully instead
// of aborting the exchange.
func ToolErrorMessage(id, name, errorText string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: errorText,
				IsError: true,
			},
		}},
		Timestamp: time.Now(),
	}
}
