package ui

import (
	"os"

	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme defines the color palette for terminal output.
type Theme struct {
	Primary lipgloss.Color // accent (prompt marker, tool names)
	Success lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color
	Muted   lipgloss.Color // thinking text, usage line
	Text    lipgloss.Color
}

// DefaultTheme returns the default palette (gruvbox).
func DefaultTheme() *Theme {
	return &Theme{
		Primary: lipgloss.Color("#b8bb26"),
		Success: lipgloss.Color("#b8bb26"),
		Error:   lipgloss.Color("#fb4934"),
		Warning: lipgloss.Color("#fabd2f"),
		Muted:   lipgloss.Color("#928374"),
		Text:    lipgloss.Color("#ebdbb2"),
	}
}

var currentTheme = DefaultTheme()

// GetTheme returns the active theme.
func GetTheme() *Theme {
	return currentTheme
}

// SetTheme replaces the active theme.
func SetTheme(t *Theme) {
	currentTheme = t
}

// ColorEnabled reports whether the terminal supports color output.
// NO_COLOR and dumb terminals disable styling entirely.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// GlamourStyle builds a glamour style config from the active theme.
func GlamourStyle() ansi.StyleConfig {
	theme := currentTheme
	primary := string(theme.Primary)
	warning := string(theme.Warning)
	muted := string(theme.Muted)
	text := string(theme.Text)

	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &text,
			},
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  &warning,
				Italic: boolPtr(true),
			},
			Indent: uintPtr(2),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{Color: &text},
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockPrefix: "\n",
				Color:       &primary,
				Bold:        boolPtr(true),
			},
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &warning,
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{Color: &text},
				Margin:         uintPtr(1),
			},
			Theme: "gruvbox",
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  &muted,
			Format: "\n--------\n",
		},
		Link: ansi.StylePrimitive{
			Color:     &primary,
			Underline: boolPtr(true),
		},
	}
}

func boolPtr(b bool) *bool { return &b }
func uintPtr(u uint) *uint { return &u }
