package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dawdle-sh/dawdle/internal/config"
	"github.com/dawdle-sh/dawdle/internal/llm"
	"github.com/dawdle-sh/dawdle/internal/mcp"
	"github.com/dawdle-sh/dawdle/internal/ui"
)

// mcpStartTimeout bounds how long startup waits for MCP servers to come up.
const mcpStartTimeout = 10 * time.Second

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func applyProviderOverrides(cfg *config.Config, providerFlag string) error {
	if providerFlag == "" {
		return nil
	}
	provider, model, err := llm.ParseProviderModel(providerFlag)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(provider, model)
	return nil
}

// buildEngine wires the provider and an optional debug logger into an engine
// ready to register tools against.
func buildEngine(cfg *config.Config) (*llm.Engine, error) {
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	engine := llm.NewEngine(provider, nil)
	if rootDebug {
		engine.SetDebugLogger(llm.NewDebugLogger(os.Stderr))
	}
	return engine, nil
}

// enableMCPServers starts the servers named in the comma-separated flag and
// registers their tools with the engine. Failures are warnings: a chat
// without one of its tool servers is degraded, not broken.
func enableMCPServers(ctx context.Context, cmd *cobra.Command, engine *llm.Engine, flag string) (*mcp.Manager, error) {
	manager := mcp.NewManager()
	if err := manager.LoadConfig(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to load MCP config: %v\n", err)
	}

	requested := 0
	for _, name := range splitCommaList(flag) {
		if err := manager.Enable(ctx, name); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to enable MCP server %q: %v\n", name, err)
			continue
		}
		requested++
	}

	// Enable only kicks off the server starts; the tools are not listable
	// until each server reports ready.
	if requested > 0 {
		for _, state := range manager.WaitUntilSettled(ctx, mcpStartTimeout) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: MCP server %q failed to start: %v\n", state.Name, state.Error)
		}
	}

	mcp.RegisterTools(manager, engine)
	return manager, nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// newSink picks the output sink: plain when asked for or when stdout is not
// a terminal (piped output should never carry ANSI codes).
func newSink(w io.Writer, showThinking bool) ui.Sink {
	if rootPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ui.NewPlainSink(w)
	}
	return ui.NewTerminalSink(w, ui.TerminalSinkOptions{
		ShowThinking: showThinking,
		ShowUsage:    rootUsage,
	})
}
