package cmd

import (
	"reflect"
	"testing"
)

func TestLocalServerName(t *testing.T) {
	tests := []struct {
		registry  string
		requested string
		want      string
	}{
		{"io.github.someone/reaper-mcp", "reaper", "reaper"},
		{"@someone/reaper-mcp", "reaper", "reaper"},
		{"mcp-filesystem", "filesystem", "filesystem"},
		{"playwright", "playwright", "playwright"},
		{"", "brave-search", "brave-search"},
	}

	for _, tt := range tests {
		if got := localServerName(tt.registry, tt.requested); got != tt.want {
			t.Errorf("localServerName(%q, %q) = %q, want %q",
				tt.registry, tt.requested, got, tt.want)
		}
	}
}

func TestSplitCommaList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"reaper", []string{"reaper"}},
		{"reaper, filesystem", []string{"reaper", "filesystem"}},
		{" , reaper,, ", []string{"reaper"}},
	}

	for _, tt := range tests {
		if got := splitCommaList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommaList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
