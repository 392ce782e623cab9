package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dawdle-sh/dawdle/internal/llm"
)

// Sink consumes engine events for display. Handle is called synchronously
// from the engine callback; implementations must not block on it.
type Sink interface {
	Handle(event llm.Event)
	// Finish is called after the exchange completes with the final text,
	// giving the sink a chance to re-render (e.g. as markdown).
	Finish(finalText string)
}

// TerminalSink streams output to a terminal with styling. Text deltas are
// written raw as they arrive; when the exchange finishes the accumulated
// text is cleared and re-rendered as markdown so code blocks and lists come
// out formatted.
type TerminalSink struct {
	w     io.Writer
	theme *Theme
	width int

	linesStreamed int
	thinkingOpen  bool
	sawText       bool
	showThinking  bool
	showUsage     bool
}

// TerminalSinkOptions configures a TerminalSink.
type TerminalSinkOptions struct {
	Width        int // 0 = detect from terminal
	ShowThinking bool
	ShowUsage    bool
}

// NewTerminalSink creates a sink writing styled output to w.
func NewTerminalSink(w io.Writer, opts TerminalSinkOptions) *TerminalSink {
	width := opts.Width
	if width <= 0 {
		width = TerminalWidth(100)
	}
	return &TerminalSink{
		w:            w,
		theme:        GetTheme(),
		width:        width,
		showThinking: opts.ShowThinking,
		showUsage:    opts.ShowUsage,
	}
}

func (s *TerminalSink) Handle(event llm.Event) {
	switch event.Type {
	case llm.EventTextDelta:
		s.closeThinking()
		s.sawText = true
		s.linesStreamed += strings.Count(event.Text, "\n")
		fmt.Fprint(s.w, event.Text)

	case llm.EventThinkingDelta:
		if !s.showThinking {
			return
		}
		if !s.thinkingOpen {
			s.thinkingOpen = true
			fmt.Fprintln(s.w, s.muted("· thinking"))
		}
		fmt.Fprint(s.w, s.muted(event.Text))
		s.linesStreamed += strings.Count(event.Text, "\n") + 1

	case llm.EventToolExecStart:
		s.closeThinking()
		s.newline()
		fmt.Fprintf(s.w, "%s %s\n", s.accent("→"), s.accent(event.ToolName))
		s.linesStreamed = 0
		s.sawText = false

	case llm.EventToolExecEnd:
		marker := s.styled("✓", s.theme.Success)
		if !event.ToolSuccess {
			marker = s.styled("✗", s.theme.Error)
		}
		fmt.Fprintf(s.w, "%s %s\n", marker, event.ToolName)

	case llm.EventRetry:
		fmt.Fprintf(s.w, "%s\n", s.styled(
			fmt.Sprintf("retrying (%d/%d) in %.1fs", event.RetryAttempt, event.RetryMaxAttempts, event.RetryWaitSecs),
			s.theme.Warning))

	case llm.EventUsage:
		if s.showUsage && event.Use != nil {
			fmt.Fprintf(s.w, "%s\n", s.muted(fmt.Sprintf(
				"tokens: %d in (%d cached), %d out",
				event.Use.InputTokens, event.Use.CachedInputTokens, event.Use.OutputTokens)))
		}

	case llm.EventError:
		if event.Err != nil {
			s.newline()
			fmt.Fprintf(s.w, "%s\n", s.styled("error: "+event.Err.Error(), s.theme.Error))
		}
	}
}

// Finish re-renders the final answer as markdown, replacing the raw
// streamed text. When color is off the raw stream is left as-is.
func (s *TerminalSink) Finish(finalText string) {
	s.closeThinking()
	s.newline()
	if finalText == "" || !ColorEnabled() {
		return
	}
	if s.sawText && s.linesStreamed > 0 {
		// Move up over the streamed lines and clear before re-rendering.
		fmt.Fprintf(s.w, "\033[%dA\033[J", s.linesStreamed+1)
	}
	fmt.Fprint(s.w, RenderMarkdown(finalText, s.width))
}

func (s *TerminalSink) closeThinking() {
	if s.thinkingOpen {
		s.thinkingOpen = false
		fmt.Fprintln(s.w)
		s.linesStreamed++
	}
}

// newline ensures the cursor sits at column zero before block output.
func (s *TerminalSink) newline() {
	if s.sawText {
		fmt.Fprintln(s.w)
		s.linesStreamed++
	}
}

func (s *TerminalSink) styled(text string, color lipgloss.Color) string {
	if !ColorEnabled() {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func (s *TerminalSink) accent(text string) string { return s.styled(text, s.theme.Primary) }
func (s *TerminalSink) muted(text string) string  { return s.styled(text, s.theme.Muted) }

// PlainSink streams text deltas verbatim with no styling or markdown.
// Used for piped output and the --plain flag.
type PlainSink struct {
	w io.Writer
}

// NewPlainSink creates a sink writing unstyled text to w.
func NewPlainSink(w io.Writer) *PlainSink {
	return &PlainSink{w: w}
}

func (s *PlainSink) Handle(event llm.Event) {
	switch event.Type {
	case llm.EventTextDelta:
		fmt.Fprint(s.w, event.Text)
	case llm.EventError:
		if event.Err != nil {
			fmt.Fprintf(s.w, "\nerror: %v\n", event.Err)
		}
	}
}

func (s *PlainSink) Finish(finalText string) {
	fmt.Fprintln(s.w)
}
