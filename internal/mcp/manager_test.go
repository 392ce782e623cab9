package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestParseToolName(t *testing.T) {
	tests := []struct {
		full   string
		server string
		tool   string
	}{
		{"reaper__list-tracks", "reaper", "list-tracks"},
		{"fs__read_file", "fs", "read_file"},
		{"no-prefix", "", "no-prefix"},
		{"trailing__", "trailing", ""},
	}

	for _, tt := range tests {
		server, tool := parseToolName(tt.full)
		if server != tt.server || tool != tt.tool {
			t.Errorf("parseToolName(%q) = (%q, %q), want (%q, %q)",
				tt.full, server, tool, tt.server, tt.tool)
		}
	}
}

func TestAllToolsPrefixesServerName(t *testing.T) {
	m := NewManager()
	client := &Client{
		name: "reaper",
		tools: []ToolSpec{
			{Name: "list-tracks", Description: "List all tracks"},
		},
	}
	m.statuses["reaper"] = &ServerState{
		Name:   "reaper",
		Status: StatusReady,
		Client: client,
	}
	m.statuses["down"] = &ServerState{
		Name:   "down",
		Status: StatusFailed,
	}

	tools := m.AllTools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Name != "reaper__list-tracks" {
		t.Fatalf("tool name = %q", tools[0].Name)
	}
	if tools[0].Description != "[reaper] List all tracks" {
		t.Fatalf("description = %q", tools[0].Description)
	}
}

func TestWaitUntilSettledBlocksUntilServersLeaveStarting(t *testing.T) {
	m := NewManager()
	m.statuses["reaper"] = &ServerState{Name: "reaper", Status: StatusStarting}

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.mu.Lock()
		m.statuses["reaper"].Status = StatusReady
		m.statuses["reaper"].Client = &Client{
			name:  "reaper",
			tools: []ToolSpec{{Name: "list-tracks"}},
		}
		m.mu.Unlock()
	}()

	failed := m.WaitUntilSettled(context.Background(), 5*time.Second)
	if len(failed) != 0 {
		t.Fatalf("unexpected failed servers: %+v", failed)
	}
	// The point of waiting: the server's tools are visible afterwards.
	if tools := m.AllTools(); len(tools) != 1 {
		t.Fatalf("expected 1 tool after settle, got %d", len(tools))
	}
}

func TestWaitUntilSettledReportsFailedServers(t *testing.T) {
	m := NewManager()
	m.statuses["down"] = &ServerState{Name: "down", Status: StatusFailed, Error: errors.New("spawn failed")}
	m.statuses["up"] = &ServerState{Name: "up", Status: StatusReady}

	failed := m.WaitUntilSettled(context.Background(), time.Second)
	if len(failed) != 1 || failed[0].Name != "down" {
		t.Fatalf("failed servers = %+v, want just down", failed)
	}
	if failed[0].Error == nil {
		t.Fatal("failure reason missing")
	}
}

func TestWaitUntilSettledTimesOutOnStuckServer(t *testing.T) {
	m := NewManager()
	m.statuses["stuck"] = &ServerState{Name: "stuck", Status: StatusStarting}

	start := time.Now()
	failed := m.WaitUntilSettled(context.Background(), 100*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("wait ignored timeout, took %v", elapsed)
	}
	// Still starting is not failed; the caller just proceeds without it.
	if len(failed) != 0 {
		t.Fatalf("failed servers = %+v", failed)
	}
}

func TestGetAllStatesExposesClient(t *testing.T) {
	m := NewManager()
	m.statuses["reaper"] = &ServerState{
		Name:   "reaper",
		Status: StatusReady,
		Client: &Client{
			name:  "reaper",
			tools: []ToolSpec{{Name: "list-tracks"}, {Name: "add-clip"}},
		},
	}

	states := m.GetAllStates()
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if states[0].Client == nil {
		t.Fatal("state is missing its client")
	}
	if n := len(states[0].Client.Tools()); n != 2 {
		t.Fatalf("tool count = %d, want 2", n)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio ok", ServerConfig{Command: "npx", Args: []string{"-y", "server"}}, false},
		{"http ok", ServerConfig{Type: "http", URL: "https://example.com/mcp"}, false},
		{"stdio missing command", ServerConfig{}, true},
		{"http missing url", ServerConfig{Type: "http"}, true},
		{"both url and command", ServerConfig{URL: "https://x", Command: "npx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")

	cfg := &Config{}
	cfg.AddServer("reaper", ServerConfig{
		Command: "npx",
		Args:    []string{"-y", "reaper-mcp"},
		Env:     map[string]string{"REAPER_PORT": "8765"},
	})
	if err := cfg.SaveToPath(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadConfigFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	server, ok := loaded.Servers["reaper"]
	if !ok {
		t.Fatal("server missing after reload")
	}
	if server.Command != "npx" || server.Env["REAPER_PORT"] != "8765" {
		t.Fatalf("unexpected server config: %+v", server)
	}

	if !loaded.RemoveServer("reaper") {
		t.Fatal("RemoveServer returned false")
	}
	if loaded.RemoveServer("reaper") {
		t.Fatal("RemoveServer should be false for missing server")
	}
}

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg.Servers)
	}
}
