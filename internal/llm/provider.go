package llm

import "strings"

// chooseModel returns the per-request model override if set, otherwise the
// provider default.
func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

// collectTextParts joins the text parts of a message into a single string.
func collectTextParts(parts []Part) string {
	var b strings.Builder
	for _, part := range parts {
		if part.Type != PartText || part.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// systemPrompt extracts and joins all system messages.
func systemPrompt(messages []Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := collectTextParts(msg.Parts); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func schemaRequired(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
