package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dawdle-sh/dawdle/internal/config"
	"github.com/dawdle-sh/dawdle/internal/llm"
	"github.com/dawdle-sh/dawdle/internal/mcp"
	"github.com/dawdle-sh/dawdle/internal/session"
	"github.com/dawdle-sh/dawdle/internal/signal"
)

var (
	chatProvider      string
	chatMCP           string
	chatMaxIterations int
	chatThinking      bool
	chatResume        bool
	chatSessionID     string
	chatNoSave        bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat with the configured model. Tool servers
enabled with --mcp stay connected for the whole session.

Examples:
  dawdle chat
  dawdle chat --mcp reaper
  dawdle chat --provider gemini --thinking
  dawdle chat --resume                    # pick up the last session

Slash commands:
  /help      Show help
  /clear     Clear the conversation
  /history   Show the conversation so far
  /mcp       Show tool server status
  /quit      Exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "Override provider, optionally with model (e.g. openai:gpt-5.2)")
	chatCmd.Flags().StringVar(&chatMCP, "mcp", "", "Enable MCP server(s), comma-separated")
	chatCmd.Flags().IntVar(&chatMaxIterations, "max-iterations", 0, "Max tool rounds per exchange (0 = config default)")
	chatCmd.Flags().BoolVar(&chatThinking, "thinking", false, "Show model thinking while streaming")
	chatCmd.Flags().BoolVarP(&chatResume, "resume", "r", false, "Resume the most recent session")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume a specific session by id")
	chatCmd.Flags().BoolVar(&chatNoSave, "no-save", false, "Do not persist this session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyProviderOverrides(cfg, chatProvider); err != nil {
		return err
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	manager, err := enableMCPServers(ctx, cmd, engine, chatMCP)
	if err != nil {
		return err
	}
	defer manager.StopAll()

	store := openSessionStore(cmd, cfg)
	defer store.Close()

	chat := &chatLoop{
		cfg:     cfg,
		engine:  engine,
		manager: manager,
		store:   store,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		conv:    llm.NewConversation(cfg.Chat.Instructions),
	}

	if err := chat.restoreSession(ctx); err != nil {
		return err
	}

	return chat.run(ctx)
}

func openSessionStore(cmd *cobra.Command, cfg *config.Config) session.Store {
	if chatNoSave {
		return &session.NoopStore{}
	}
	store, err := session.NewStore(session.Config{
		Enabled:    cfg.Sessions.Enabled,
		MaxAgeDays: cfg.Sessions.MaxAgeDays,
		MaxCount:   cfg.Sessions.MaxCount,
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: session storage unavailable: %v\n", err)
		return &session.NoopStore{}
	}
	return session.NewLoggingStore(store)
}

type chatLoop struct {
	cfg     *config.Config
	engine  *llm.Engine
	manager *mcp.Manager
	store   session.Store
	out     io.Writer
	errOut  io.Writer
	conv    *llm.Conversation
	sess    *session.Session
}

// restoreSession loads a prior session into the conversation when --resume
// or --session was given, otherwise starts a fresh one lazily on the first
// message.
func (c *chatLoop) restoreSession(ctx context.Context) error {
	var prior *session.Session
	var err error

	switch {
	case chatSessionID != "":
		prior, err = c.store.Get(ctx, chatSessionID)
		if err != nil {
			return err
		}
		if prior == nil {
			return fmt.Errorf("session not found: %s", chatSessionID)
		}
	case chatResume:
		prior, err = c.store.GetCurrent(ctx)
		if err != nil {
			return err
		}
		if prior == nil {
			fmt.Fprintln(c.errOut, "No session to resume, starting fresh.")
			return nil
		}
	default:
		return nil
	}

	messages, err := c.store.GetMessages(ctx, prior.ID, 0, 0)
	if err != nil {
		return err
	}
	for _, m := range messages {
		c.conv.Append(m.ToLLMMessage())
	}
	c.sess = prior
	c.sess.Status = session.StatusActive
	_ = c.store.Update(ctx, c.sess)

	fmt.Fprintf(c.out, "Resumed session %s (%d messages)\n", prior.ID[:8], len(messages))
	return nil
}

func (c *chatLoop) run(ctx context.Context) error {
	fmt.Fprintf(c.out, "dawdle chat — %s (%s). /help for commands.\n",
		c.cfg.Provider, c.cfg.ActiveModel())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := c.handleSlash(ctx, line); quit {
				break
			}
			continue
		}

		if err := c.exchange(ctx, line); err != nil {
			fmt.Fprintf(c.errOut, "error: %v\n", err)
		}
	}

	c.finishSession(ctx)
	return scanner.Err()
}

// exchange runs one user turn through the engine and persists the resulting
// messages and metrics.
func (c *chatLoop) exchange(ctx context.Context, text string) error {
	if err := c.ensureSession(ctx, text); err != nil {
		fmt.Fprintf(c.errOut, "warning: %v\n", err)
	}

	before := c.conv.Len()
	sink := newSink(c.out, chatThinking)

	maxIterations := chatMaxIterations
	if maxIterations <= 0 {
		maxIterations = c.cfg.MaxIterations
	}

	exchangeCtx, cancel := signal.Interruptible(ctx)
	result, err := c.engine.Send(exchangeCtx, c.conv, text, llm.SendOptions{
		MaxIterations: maxIterations,
		OnEvent:       sink.Handle,
	})
	cancel()
	if err != nil {
		return err
	}

	sink.Finish(result.Text)

	if result.Capped {
		fmt.Fprintf(c.errOut, "(stopped after %d tool rounds)\n", result.Iterations)
	}
	if result.Cancelled {
		fmt.Fprintln(c.errOut, "(interrupted)")
	}

	c.persistExchange(ctx, before, result)
	return nil
}

func (c *chatLoop) ensureSession(ctx context.Context, firstText string) error {
	if c.sess != nil {
		return nil
	}
	c.sess = &session.Session{
		Provider: c.cfg.Provider,
		Model:    c.cfg.ActiveModel(),
		MCP:      chatMCP,
		Summary:  session.TruncateSummary(firstText),
		Status:   session.StatusActive,
	}
	if err := c.store.Create(ctx, c.sess); err != nil {
		c.sess = nil
		return err
	}
	return c.store.SetCurrent(ctx, c.sess.ID)
}

func (c *chatLoop) persistExchange(ctx context.Context, before int, result *llm.Result) {
	if c.sess == nil {
		return
	}
	for _, msg := range c.conv.Messages[before:] {
		_ = c.store.AddMessage(ctx, c.sess.ID, session.NewMessage(c.sess.ID, msg, -1))
	}
	_ = c.store.IncrementUserTurns(ctx, c.sess.ID)
	_ = c.store.UpdateMetrics(ctx, c.sess.ID,
		result.Iterations, len(result.ToolCalls),
		result.Usage.InputTokens, result.Usage.CachedInputTokens, result.Usage.OutputTokens)
}

func (c *chatLoop) finishSession(ctx context.Context) {
	if c.sess == nil {
		return
	}
	_ = c.store.UpdateStatus(ctx, c.sess.ID, session.StatusComplete)
}

// handleSlash processes a slash command. Returns true when the loop should
// exit.
func (c *chatLoop) handleSlash(ctx context.Context, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		fmt.Fprintln(c.out, "Commands: /clear /history /mcp /quit")

	case "/clear":
		c.conv.Messages = nil
		c.finishSession(ctx)
		c.sess = nil
		fmt.Fprintln(c.out, "Conversation cleared.")

	case "/history":
		c.printHistory()

	case "/mcp":
		c.printMCPStatus()

	default:
		fmt.Fprintf(c.out, "Unknown command %q. Try /help.\n", line)
	}
	return false
}

func (c *chatLoop) printHistory() {
	display, diags := llm.FormatHistory(c.conv.Messages)
	if len(display) == 0 {
		fmt.Fprintln(c.out, "No messages yet.")
		return
	}
	for _, msg := range display {
		fmt.Fprintf(c.out, "[%s]\n", msg.Role)
		for _, part := range msg.Parts {
			fmt.Fprintf(c.out, "  %s\n", formatDisplayPart(part))
		}
	}
	for _, d := range diags {
		fmt.Fprintf(c.errOut, "note: %s\n", d.Message)
	}
}

func formatDisplayPart(part llm.DisplayPart) string {
	switch part.Type {
	case llm.PartToolCall:
		if part.ToolCall == nil {
			return "(tool call)"
		}
		line := fmt.Sprintf("→ %s %s", part.ToolCall.Name, string(part.ToolCall.Arguments))
		if part.Result == nil {
			return line + " (pending)"
		}
		if part.Result.IsError {
			return line + "\n  ✗ " + indent(part.Result.Content)
		}
		return line + "\n  ✓ " + indent(part.Result.Content)
	case llm.PartThought:
		return "· " + indent(part.Text)
	case llm.PartError:
		return "error: " + part.Text
	default:
		return indent(part.Text)
	}
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}

func (c *chatLoop) printMCPStatus() {
	states := c.manager.GetAllStates()
	if len(states) == 0 {
		fmt.Fprintln(c.out, "No MCP servers enabled. Start chat with --mcp <name>.")
		return
	}
	for _, state := range states {
		line := fmt.Sprintf("  %s: %s", state.Name, state.Status)
		if state.Error != nil {
			line += fmt.Sprintf(" (%v)", state.Error)
		}
		if state.Client != nil {
			line += fmt.Sprintf(" — %d tools", len(state.Client.Tools()))
		}
		fmt.Fprintln(c.out, line)
	}
}
