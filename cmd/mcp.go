package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dawdle-sh/dawdle/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage MCP (Model Context Protocol) servers",
	Long: `Manage the MCP tool servers dawdle can drive.

Examples:
  dawdle mcp list                   # list configured servers
  dawdle mcp search reaper          # search the official registry
  dawdle mcp add reaper-mcp         # add a server from the registry
  dawdle mcp remove reaper          # remove a server
  dawdle mcp test reaper            # start the server and list its tools
  dawdle mcp tools reaper           # show cached tools without starting`,
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE:  mcpList,
}

var mcpSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the MCP registry",
	Args:  cobra.ExactArgs(1),
	RunE:  mcpSearch,
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an MCP server from the registry",
	Long: `Search the registry for a server and add the best match to mcp.json.

The name can be a package identifier like @reaper/mcp or a plain search
term like reaper.`,
	Args: cobra.ExactArgs(1),
	RunE: mcpAdd,
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  mcpRemove,
}

var mcpTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Start an MCP server and list its tools",
	Args:  cobra.ExactArgs(1),
	RunE:  mcpTest,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools <name>",
	Short: "Show a server's tools from the local cache",
	Long: `Show the tools a server exposed the last time it ran. This reads the
local tool cache and does not start the server; run 'dawdle mcp test' to
refresh it.`,
	Args: cobra.ExactArgs(1),
	RunE: mcpTools,
}

var mcpPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the MCP configuration file path",
	RunE:  mcpPath,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpSearchCmd)
	mcpCmd.AddCommand(mcpAddCmd)
	mcpCmd.AddCommand(mcpRemoveCmd)
	mcpCmd.AddCommand(mcpTestCmd)
	mcpCmd.AddCommand(mcpToolsCmd)
	mcpCmd.AddCommand(mcpPathCmd)
}

func mcpList(cmd *cobra.Command, args []string) error {
	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Servers) == 0 {
		fmt.Println("No MCP servers configured.")
		fmt.Println()
		fmt.Println("Add one with: dawdle mcp add <name>")
		fmt.Println("Search the registry: dawdle mcp search <query>")
		return nil
	}

	fmt.Printf("Configured MCP servers (%d):\n\n", len(cfg.Servers))
	for _, name := range cfg.ServerNames() {
		server := cfg.Servers[name]
		fmt.Printf("  %s\n", name)
		if server.TransportType() == "http" {
			fmt.Printf("    url: %s\n", server.URL)
		} else {
			fmt.Printf("    command: %s %s\n", server.Command, strings.Join(server.Args, " "))
		}
		if len(server.Env) > 0 {
			fmt.Printf("    env: %d variables\n", len(server.Env))
		}
	}

	path, _ := mcp.DefaultConfigPath()
	fmt.Printf("\nConfig file: %s\n", path)
	return nil
}

func mcpSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	fmt.Printf("Searching MCP registry for %q...\n\n", query)

	registry := mcp.NewRegistryClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	result, err := registry.Search(ctx, query, 50)
	if err != nil {
		return fmt.Errorf("search registry: %w", err)
	}
	if len(result.Servers) == 0 {
		fmt.Println("No servers found.")
		return nil
	}

	cfg, _ := mcp.LoadConfig()

	for _, wrapper := range result.Servers {
		s := wrapper.Server

		status := ""
		if cfg != nil {
			if _, installed := cfg.Servers[s.Name]; installed {
				status = " [installed]"
			}
		}

		fmt.Printf("  %s%s\n", s.Name, status)
		if s.Description != "" {
			desc := s.Description
			if len(desc) > 70 {
				desc = desc[:67] + "..."
			}
			fmt.Printf("    %s\n", desc)
		}
		fmt.Println()
	}

	fmt.Printf("Found %d servers. Install with: dawdle mcp add <name>\n", len(result.Servers))
	return nil
}

func mcpAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	registry := mcp.NewRegistryClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Printf("Searching for %q...\n", name)

	result, err := registry.Search(ctx, name, 50)
	if err != nil {
		return fmt.Errorf("search registry: %w", err)
	}
	if len(result.Servers) == 0 {
		return fmt.Errorf("no servers found matching %q", name)
	}

	// Prefer an exact package identifier match, else take the first result.
	var best *mcp.RegistryServer
	for i := range result.Servers {
		s := &result.Servers[i].Server
		for _, pkg := range s.Packages {
			if pkg.Identifier == name || strings.HasSuffix(pkg.Identifier, "/"+name) {
				best = s
				break
			}
		}
		if best != nil {
			break
		}
	}
	if best == nil {
		best = &result.Servers[0].Server
	}

	fmt.Printf("Found: %s\n", best.Name)
	if best.Description != "" {
		fmt.Printf("  %s\n", best.Description)
	}
	fmt.Println()

	serverConfig, needsInput := best.ToServerConfig()
	if serverConfig.Command == "" {
		return fmt.Errorf("no supported package found for %s (requires npm or pypi)", best.Name)
	}

	localName := localServerName(best.Name, name)

	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, exists := cfg.Servers[localName]; exists {
		return fmt.Errorf("server %q already exists in config", localName)
	}

	cfg.AddServer(localName, serverConfig)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	path, _ := mcp.DefaultConfigPath()
	fmt.Printf("Added %q to %s\n", localName, path)
	if needsInput {
		fmt.Println()
		fmt.Println("This server needs configuration: edit mcp.json and fill in the")
		fmt.Println("arguments marked with <>.")
	}
	fmt.Println()
	fmt.Printf("Test it with: dawdle mcp test %s\n", localName)
	fmt.Printf("Use it: dawdle chat --mcp %s\n", localName)
	return nil
}

// localServerName derives a short config key from a registry name like
// "io.github.someone/reaper-mcp" or a package like "@someone/reaper-mcp".
func localServerName(registryName, requested string) string {
	name := registryName
	if name == "" {
		name = requested
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	name = strings.TrimPrefix(name, "@")
	name = strings.TrimSuffix(name, "-mcp")
	name = strings.TrimPrefix(name, "mcp-")
	if name == "" {
		name = requested
	}
	return name
}

func mcpRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.RemoveServer(name) {
		return fmt.Errorf("server %q not found in config", name)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Removed %q from config\n", name)
	return nil
}

func mcpTest(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	serverCfg, ok := cfg.Servers[name]
	if !ok {
		return fmt.Errorf("server %q not found in config", name)
	}

	fmt.Printf("Testing MCP server %q...\n", name)
	if serverCfg.TransportType() == "http" {
		fmt.Printf("  url: %s\n", serverCfg.URL)
	} else {
		fmt.Printf("  command: %s %s\n", serverCfg.Command, strings.Join(serverCfg.Args, " "))
	}
	fmt.Println()

	client := mcp.NewClient(name, serverCfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Print("Starting server...")
	if err := client.Start(ctx); err != nil {
		fmt.Println(" FAILED")
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Println(" OK")
	defer client.Stop()

	printToolList(client.Tools())
	fmt.Println()
	fmt.Printf("Server %q is working correctly.\n", name)
	return nil
}

func mcpTools(cmd *cobra.Command, args []string) error {
	name := args[0]

	tools := mcp.CachedTools(name)
	if len(tools) == 0 {
		fmt.Printf("No cached tools for %q. Run: dawdle mcp test %s\n", name, name)
		return nil
	}
	printToolList(tools)
	return nil
}

func printToolList(tools []mcp.ToolSpec) {
	fmt.Printf("Available tools (%d):\n", len(tools))
	for _, t := range tools {
		fmt.Printf("  - %s\n", t.Name)
		if t.Description != "" {
			desc := t.Description
			if len(desc) > 60 {
				desc = desc[:57] + "..."
			}
			fmt.Printf("    %s\n", desc)
		}
	}
}

func mcpPath(cmd *cobra.Command, args []string) error {
	path, err := mcp.DefaultConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("%s (not created yet)\n", path)
	} else {
		fmt.Println(path)
	}
	return nil
}
