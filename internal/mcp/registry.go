package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	registryBaseURL = "https://registry.modelcontextprotocol.io"
	defaultLimit    = 50
)

// RegistryClient queries the official MCP registry.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient creates a new registry client.
func NewRegistryClient() *RegistryClient {
	return &RegistryClient{
		baseURL: registryBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegistryServer represents a server from the registry.
type RegistryServer struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Version     string        `json:"version"`
	Packages    []PackageInfo `json:"packages,omitempty"`
}

// PackageInfo describes how to install/run a server.
type PackageInfo struct {
	RegistryType string         `json:"registryType"` // npm, pypi, oci
	Identifier   string         `json:"identifier"`
	Version      string         `json:"version"`
	Transport    *TransportInfo `json:"transport,omitempty"`
	Arguments    []ArgumentInfo `json:"packageArguments,omitempty"`
}

// TransportInfo describes the transport type.
type TransportInfo struct {
	Type string `json:"type"` // stdio, sse, streamable-http
	URL  string `json:"url,omitempty"`
}

// ArgumentInfo describes a command-line argument.
type ArgumentInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // positional, named
	IsRequired bool   `json:"isRequired"`
	Default    string `json:"default,omitempty"`
}

// SearchResult contains the response from a registry search.
type SearchResult struct {
	Servers  []RegistryServerWrapper `json:"servers"`
	Metadata SearchMetadata          `json:"metadata"`
}

// RegistryServerWrapper wraps a server entry with registry metadata.
type RegistryServerWrapper struct {
	Server RegistryServer `json:"server"`
}

// SearchMetadata contains pagination info.
type SearchMetadata struct {
	Count      int    `json:"count"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Search queries the registry for MCP servers.
func (r *RegistryClient) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}

	u, err := url.Parse(r.baseURL + "/v0/servers")
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if query != "" {
		q.Set("search", query)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dawdle/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse registry response: %w", err)
	}

	return &result, nil
}

// ToServerConfig converts a registry server to a local configuration.
// Returns the config and a flag indicating if user input is needed for
// required arguments.
func (s *RegistryServer) ToServerConfig() (ServerConfig, bool) {
	runners := map[string]string{"npm": "npx", "pypi": "uvx"}

	for _, registryType := range []string{"npm", "pypi"} {
		for _, pkg := range s.Packages {
			if pkg.RegistryType != registryType {
				continue
			}
			if pkg.Transport != nil && pkg.Transport.Type != "stdio" {
				continue
			}

			cfg := ServerConfig{Command: runners[registryType]}
			if registryType == "npm" {
				cfg.Args = []string{"-y", pkg.Identifier}
			} else {
				cfg.Args = []string{pkg.Identifier}
			}

			needsInput := false
			for _, arg := range pkg.Arguments {
				switch {
				case arg.IsRequired && arg.Default == "":
					needsInput = true
					cfg.Args = append(cfg.Args, fmt.Sprintf("<%s>", arg.Name))
				case arg.Default != "":
					cfg.Args = append(cfg.Args, arg.Default)
				}
			}
			return cfg, needsInput
		}
	}

	return ServerConfig{}, true
}
