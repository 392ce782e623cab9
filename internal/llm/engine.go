package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultMaxIterations caps how many backend round-trips one exchange may
// perform before forced termination. A safety valve against runaway
// tool-call cycles, not a user-facing feature.
const DefaultMaxIterations = 10

// SendOptions tunes one exchange. OnEvent is an advisory live-update
// callback for incremental rendering; correctness never depends on it.
type SendOptions struct {
	MaxIterations int
	OnEvent       func(Event)
}

// Result is the outcome of one exchange. Capped and Cancelled are
// conditions, not errors: the caller always gets a well-formed (possibly
// partial) answer.
type Result struct {
	Text       string
	Thinking   string
	ToolCalls  []ToolCallRecord
	Iterations int
	Capped     bool
	Cancelled  bool
	Usage      Usage
}

// Conversation is the ordered message history for one session. It is owned
// by a single Send call for the duration of an exchange and is append-only
// while the exchange runs.
type Conversation struct {
	System   string
	Messages []Message
}

func NewConversation(system string) *Conversation {
	return &Conversation{System: system}
}

func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Engine orchestrates provider calls and external tool execution for a
// conversation. One Engine may serve many independent conversations
// concurrently; it holds no per-exchange state.
type Engine struct {
	provider        Provider
	tools           *ToolRegistry
	model           string
	maxOutputTokens int
	debugLogger     *DebugLogger
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{provider: provider, tools: tools}
}

// SetModel selects the model passed to the provider on every request.
func (e *Engine) SetModel(model string) {
	e.model = model
}

func (e *Engine) SetMaxOutputTokens(n int) {
	e.maxOutputTokens = n
}

func (e *Engine) SetDebugLogger(logger *DebugLogger) {
	e.debugLogger = logger
}

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) {
	e.tools.Register(tool)
}

// UnregisterTool removes a tool from the engine's registry.
func (e *Engine) UnregisterTool(name string) {
	e.tools.Unregister(name)
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// Send appends text as a user message and drives the tool-calling loop to
// completion: stream a model turn, execute any requested tools, feed the
// results back, repeat. It returns an error only when the backend cannot be
// reached at all (ErrBackendUnavailable); tool failures, malformed
// arguments, cancellation and the iteration cap are all folded into the
// conversation and the returned Result.
func (e *Engine) Send(ctx context.Context, conv *Conversation, text string, opts SendOptions) (*Result, error) {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	emit := opts.OnEvent
	if emit == nil {
		emit = func(Event) {}
	}

	conv.Append(UserText(text))
	result := &Result{}

	for iteration := 1; ; iteration++ {
		result.Iterations = iteration

		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}

		req := e.buildRequest(conv)
		e.debugLogger.LogRequest(e.provider.Name(), req.Model, len(req.Messages), iteration)

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			return nil, backendUnavailable(err)
		}

		turn, streamErr := e.consumeStream(ctx, stream, emit)
		if turn.Usage != nil {
			result.Usage.Add(turn.Usage)
		}
		for _, name := range turn.Malformed {
			e.debugLogger.Logf("malformed arguments for tool %q, substituting empty object", name)
		}

		if streamErr != nil {
			cancelled := errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded)
			if cancelled {
				// Keep partial text already delivered; tool calls requested
				// but not yet executed are discarded.
				if len(turn.Parts) > 0 {
					conv.Append(Message{Role: RoleAssistant, Parts: turn.Parts, Timestamp: time.Now()})
				}
				result.Text = turn.Text()
				result.Thinking = turn.Thinking()
				result.Cancelled = true
				return result, nil
			}
			if turn.Empty() {
				// Nothing streamed before the failure: the dispatch never
				// really started.
				return nil, backendUnavailable(streamErr)
			}
			parts := append(turn.Parts, Part{Type: PartError, Text: streamErr.Error()})
			conv.Append(Message{Role: RoleAssistant, Parts: parts, Timestamp: time.Now()})
			result.Text = turn.Text()
			result.Thinking = turn.Thinking()
			return result, nil
		}

		if len(turn.Calls) == 0 {
			if !turn.Empty() {
				conv.Append(turn.Message())
			}
			result.Text = turn.Text()
			result.Thinking = turn.Thinking()
			return result, nil
		}

		turnIdx := conv.Len()
		conv.Append(turn.Message())
		records := e.executeToolCalls(ctx, turn.Calls, emit)
		for _, rec := range records {
			result.ToolCalls = append(result.ToolCalls, rec)
			if rec.IsError {
				conv.Append(ToolErrorMessage(rec.ID, rec.Name, rec.Result))
			} else {
				conv.Append(ToolResultMessage(rec.ID, rec.Name, rec.Result))
			}
		}
		result.Text = turn.Text()
		result.Thinking = turn.Thinking()

		if ctx.Err() != nil {
			// Cancellation between sequential calls: calls that never ran have
			// no result message, and a call without a paired result is
			// rejected by the backends on the next request. Drop them from the
			// recorded turn, same as calls discarded on mid-stream
			// cancellation.
			e.dropUnexecutedCalls(conv, turnIdx, records)
			result.Cancelled = true
			return result, nil
		}
		if iteration >= maxIterations {
			e.debugLogger.Logf("iteration cap reached (%d), terminating exchange", maxIterations)
			result.Capped = true
			return result, nil
		}
	}
}

// dropUnexecutedCalls rewrites the assistant message at turnIdx so it keeps
// only the tool-call parts that have a matching execution record. If no calls
// ran and the message carried no content, the message is removed entirely.
func (e *Engine) dropUnexecutedCalls(conv *Conversation, turnIdx int, records []ToolCallRecord) {
	executed := make(map[string]bool, len(records))
	for _, rec := range records {
		executed[rec.ID] = true
	}

	msg := conv.Messages[turnIdx]
	kept := msg.Parts[:0]
	for _, part := range msg.Parts {
		if part.Type == PartToolCall && part.ToolCall != nil && !executed[part.ToolCall.ID] {
			e.debugLogger.Logf("dropping unexecuted tool call id=%s name=%s after cancellation", part.ToolCall.ID, part.ToolCall.Name)
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 && turnIdx == conv.Len()-1 {
		conv.Messages = conv.Messages[:turnIdx]
		return
	}
	msg.Parts = kept
	conv.Messages[turnIdx] = msg
}

func (e *Engine) buildRequest(conv *Conversation) Request {
	var messages []Message
	if conv.System != "" {
		messages = append(messages, SystemText(conv.System))
	}
	messages = append(messages, conv.Messages...)
	return Request{
		Model:           e.model,
		Messages:        messages,
		Tools:           e.tools.AllSpecs(),
		MaxOutputTokens: e.maxOutputTokens,
	}
}

// consumeStream drives the reducer over one backend stream. It returns the
// frozen turn together with the terminating condition: nil for a clean end,
// a context error for cancellation, or the mid-stream failure.
func (e *Engine) consumeStream(ctx context.Context, stream Stream, emit func(Event)) (Turn, error) {
	defer stream.Close()

	state := newTurnState()
	for {
		select {
		case <-ctx.Done():
			return state.finalize(), ctx.Err()
		default:
		}

		event, err := stream.Recv()
		if err == io.EOF {
			return state.finalize(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return state.finalize(), ctx.Err()
			}
			return state.finalize(), err
		}
		if event.Type == EventError && event.Err != nil {
			if ctx.Err() != nil {
				return state.finalize(), ctx.Err()
			}
			return state.finalize(), event.Err
		}

		state.reduce(event)
		e.debugLogger.LogEvent(event)
		emit(event)
	}
}

// executeToolCalls runs the turn's calls strictly sequentially, in request
// order: later calls in one turn may depend on earlier ones' side effects
// in the tool domain. A failing tool never aborts the exchange; its error
// text becomes the record's result with IsError set. Cancellation is
// checked between calls; the in-flight call is allowed to finish.
func (e *Engine) executeToolCalls(ctx context.Context, calls []ToolCall, emit func(Event)) []ToolCallRecord {
	records := make([]ToolCallRecord, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}

		emit(Event{Type: EventToolExecStart, ToolID: call.ID, ToolName: call.Name})

		rec := ToolCallRecord{ID: call.ID, Name: call.Name, Args: call.Arguments}
		tool, ok := e.tools.Get(call.Name)
		if !ok {
			rec.Result = fmt.Sprintf("Error: tool not registered: %s", call.Name)
			rec.IsError = true
		} else {
			// Tools are not preemptible: the running call finishes even if
			// the exchange is cancelled meanwhile.
			output, err := safeExecute(context.WithoutCancel(ctx), tool, call.Arguments)
			if err != nil {
				rec.Result = fmt.Sprintf("Error: %v", err)
				rec.IsError = true
			} else {
				rec.Result = output
			}
		}

		e.debugLogger.LogToolResult(rec.ID, rec.Name, rec.Result, rec.IsError)
		emit(Event{
			Type:        EventToolExecEnd,
			ToolID:      rec.ID,
			ToolName:    rec.Name,
			ToolSuccess: !rec.IsError,
			ToolOutput:  rec.Result,
		})
		records = append(records, rec)
	}
	return records
}

// safeExecute runs a tool and converts a panic into an ordinary tool error.
func safeExecute(ctx context.Context, tool Tool, args json.RawMessage) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}
