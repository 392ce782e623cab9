package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	rootPlain bool
	rootDebug bool
	rootUsage bool
)

var rootCmd = &cobra.Command{
	Use:   "dawdle",
	Short: "Drive LLM tool loops from your terminal",
	Long: `dawdle is a terminal client for tool-using LLM conversations.
It connects a model (Anthropic, OpenAI, Gemini, or any OpenAI-compatible
endpoint) to MCP tool servers and runs the ask/act loop for you.

Examples:
  dawdle ask "what tracks are in this project?" --mcp reaper
  dawdle chat --mcp reaper,filesystem
  dawdle mcp add reaper-mcp
  dawdle sessions list`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootPlain, "plain", false, "Plain text output (no colors or markdown)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Write protocol debug log to stderr")
	rootCmd.PersistentFlags().BoolVar(&rootUsage, "usage", false, "Show token usage after each exchange")
	rootCmd.Version = Version
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
