package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dawdle-sh/dawdle/internal/llm"
	"github.com/dawdle-sh/dawdle/internal/signal"
)

var (
	askProvider      string
	askMCP           string
	askMaxIterations int
	askThinking      bool
	askSystem        string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question",
	Long: `Send a single question and print the answer. With --mcp the model can
call tools on the named servers before answering.

Piped stdin is attached to the question as context:

  dawdle ask "summarize this" < notes.txt

Examples:
  dawdle ask "mute the drum bus" --mcp reaper
  dawdle ask "what is 2^32" --provider openai:gpt-5.2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askProvider, "provider", "", "Override provider, optionally with model (e.g. openai:gpt-5.2)")
	askCmd.Flags().StringVar(&askMCP, "mcp", "", "Enable MCP server(s), comma-separated")
	askCmd.Flags().IntVar(&askMaxIterations, "max-iterations", 0, "Max tool rounds per exchange (0 = config default)")
	askCmd.Flags().BoolVar(&askThinking, "thinking", false, "Show model thinking while streaming")
	askCmd.Flags().StringVar(&askSystem, "system", "", "Override the system prompt")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyProviderOverrides(cfg, askProvider); err != nil {
		return err
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	manager, err := enableMCPServers(ctx, cmd, engine, askMCP)
	if err != nil {
		return err
	}
	defer manager.StopAll()

	question := strings.Join(args, " ")
	if stdin := readPipedStdin(); stdin != "" {
		question = question + "\n\n" + stdin
	}

	system := askSystem
	if system == "" {
		system = cfg.Chat.Instructions
	}

	maxIterations := askMaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.MaxIterations
	}

	sink := newSink(cmd.OutOrStdout(), askThinking)
	conv := llm.NewConversation(system)

	exchangeCtx, cancel := signal.Interruptible(ctx)
	defer cancel()

	result, err := engine.Send(exchangeCtx, conv, question, llm.SendOptions{
		MaxIterations: maxIterations,
		OnEvent:       sink.Handle,
	})
	if err != nil {
		return err
	}

	sink.Finish(result.Text)

	if result.Capped {
		fmt.Fprintf(cmd.ErrOrStderr(), "(stopped after %d tool rounds)\n", result.Iterations)
	}
	if result.Cancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "(interrupted)")
		os.Exit(130)
	}
	return nil
}

// readPipedStdin returns stdin content when it is a pipe, empty otherwise.
func readPipedStdin() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
