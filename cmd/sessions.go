package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dawdle-sh/dawdle/internal/llm"
	"github.com/dawdle-sh/dawdle/internal/session"
)

var (
	sessionsLimit    int
	sessionsProvider string
	sessionsArchived bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved chat sessions",
	Long: `List, inspect, search and export saved chat sessions.

Examples:
  dawdle sessions list
  dawdle sessions show 3f2a
  dawdle sessions search "drum bus"
  dawdle sessions export 3f2a > session.yaml
  dawdle sessions delete 3f2a`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE:  sessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionsShow,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across session messages",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionsSearch,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionsExport,
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Max sessions to list")
	sessionsListCmd.Flags().StringVar(&sessionsProvider, "provider", "", "Filter by provider")
	sessionsListCmd.Flags().BoolVar(&sessionsArchived, "archived", false, "Include archived sessions")
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
}

func openStore() (session.Store, error) {
	store, err := session.NewSQLiteStore(session.Config{Enabled: true})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

// resolveSession finds a session by full id or unique prefix.
func resolveSession(cmd *cobra.Command, store session.Store, idOrPrefix string) (*session.Session, error) {
	ctx := cmd.Context()

	sess, err := store.Get(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	summaries, err := store.List(ctx, session.ListOptions{Limit: 1000, Archived: true})
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, s := range summaries {
		if strings.HasPrefix(s.ID, idOrPrefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session not found: %s", idOrPrefix)
	case 1:
		return store.Get(ctx, matches[0])
	default:
		return nil, fmt.Errorf("ambiguous session id %q (%d matches)", idOrPrefix, len(matches))
	}
}

func sessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), session.ListOptions{
		Limit:    sessionsLimit,
		Provider: sessionsProvider,
		Archived: sessionsArchived,
	})
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}

	for _, s := range summaries {
		label := s.Name
		if label == "" {
			label = s.Summary
		}
		if label == "" {
			label = "(untitled)"
		}
		fmt.Printf("  %s  %s  %s\n", s.ID[:8], s.UpdatedAt.Format("2006-01-02 15:04"), label)
		fmt.Printf("            %s/%s  %d msgs  %d tool calls  %s\n",
			s.Provider, s.Model, s.MessageCount, s.ToolCalls, s.Status)
	}
	return nil
}

func sessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}

	messages, err := store.GetMessages(cmd.Context(), sess.ID, 0, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s — %s/%s — %s\n", sess.ID[:8], sess.Provider, sess.Model,
		sess.CreatedAt.Format(time.RFC1123))
	if sess.MCP != "" {
		fmt.Printf("MCP servers: %s\n", sess.MCP)
	}
	fmt.Println()

	var llmMessages []llm.Message
	for _, m := range messages {
		llmMessages = append(llmMessages, m.ToLLMMessage())
	}
	display, _ := llm.FormatHistory(llmMessages)
	for _, msg := range display {
		fmt.Printf("[%s]\n", msg.Role)
		for _, part := range msg.Parts {
			fmt.Printf("  %s\n", formatDisplayPart(part))
		}
		fmt.Println()
	}

	fmt.Printf("tokens: %d in (%d cached), %d out — %d tool calls over %d turns\n",
		sess.InputTokens, sess.CachedInputTokens, sess.OutputTokens,
		sess.ToolCalls, sess.LLMTurns)
	return nil
}

func sessionsSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(cmd.Context(), args[0], 20)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for _, r := range results {
		label := r.SessionName
		if label == "" {
			label = r.Summary
		}
		fmt.Printf("  %s  %s\n", r.SessionID[:8], label)
		fmt.Printf("    %s\n", r.Snippet)
	}
	return nil
}

func sessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context(), sess.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", sess.ID[:8])
	return nil
}

func sessionsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}
	return session.WriteExport(cmd.Context(), store, sess.ID, os.Stdout)
}
