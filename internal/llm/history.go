package llm

import (
	"fmt"
)

// DisplayPart is a transcript entry: a message part, plus the paired
// execution result when the part is a tool call. A nil Result on a
// tool-call part means the call is still pending.
type DisplayPart struct {
	Part
	Result *ToolResult
}

// DisplayMessage is one entry of the canonical merged transcript.
type DisplayMessage struct {
	Role  Role
	Parts []DisplayPart
}

// Diagnostic reports a transcript anomaly out of band, never inline.
type Diagnostic struct {
	Code    string
	Message string
}

const DiagOrphanToolResult = "orphan_tool_result"

// callEntry tracks a tool-call part in the output so later results can be
// paired with it.
type callEntry struct {
	msgIdx   int
	partIdx  int
	id       string
	name     string
	resolved bool
}

// FormatHistory projects a raw message sequence onto a canonical transcript:
// consecutive same-kind text/thought parts of a model turn are merged
// (never across a signature marker or the thought/text boundary), tool
// calls are annotated with their paired results, and orphaned results are
// dropped and reported as diagnostics. The projection is pure, deterministic
// and idempotent.
func FormatHistory(msgs []Message) ([]DisplayMessage, []Diagnostic) {
	var (
		out   []DisplayMessage
		diags []Diagnostic
		calls []*callEntry
		byID  = make(map[string]*callEntry)
	)

	attach := func(entry *callEntry, res ToolResult) {
		entry.resolved = true
		r := res
		out[entry.msgIdx].Parts[entry.partIdx].Result = &r
	}

	oldestPending := func(name string) *callEntry {
		for _, entry := range calls {
			if !entry.resolved && entry.name == name {
				return entry
			}
		}
		return nil
	}

	for _, msg := range msgs {
		switch msg.Role {
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				res := *part.ToolResult
				var entry *callEntry
				if res.ID != "" {
					entry = byID[res.ID]
					if entry != nil && entry.resolved {
						entry = nil
					}
				} else {
					entry = oldestPending(res.Name)
				}
				if entry == nil {
					diags = append(diags, Diagnostic{
						Code:    DiagOrphanToolResult,
						Message: fmt.Sprintf("dropped tool result %q (id %q): no matching tool call", res.Name, res.ID),
					})
					continue
				}
				attach(entry, res)
			}

		case RoleAssistant:
			parts := mergeModelParts(msg.Parts)
			if len(parts) == 0 {
				continue
			}
			if onlyErrors(parts) && foldableTarget(out) {
				last := &out[len(out)-1]
				last.Parts = append(last.Parts, parts...)
				continue
			}
			out = append(out, DisplayMessage{Role: RoleAssistant, Parts: parts})
			msgIdx := len(out) - 1
			for partIdx, dp := range parts {
				if dp.Type != PartToolCall || dp.ToolCall == nil {
					continue
				}
				entry := &callEntry{
					msgIdx:  msgIdx,
					partIdx: partIdx,
					id:      dp.ToolCall.ID,
					name:    dp.ToolCall.Name,
				}
				calls = append(calls, entry)
				if entry.id != "" {
					if _, dup := byID[entry.id]; !dup {
						byID[entry.id] = entry
					}
				}
			}

		default:
			if len(msg.Parts) == 0 {
				continue
			}
			parts := make([]DisplayPart, 0, len(msg.Parts))
			for _, p := range msg.Parts {
				parts = append(parts, DisplayPart{Part: p})
			}
			out = append(out, DisplayMessage{Role: msg.Role, Parts: parts})
		}
	}

	return out, diags
}

// mergeModelParts concatenates adjacent same-kind text/thought parts.
// Parts carrying a signature marker never merge in either direction, and
// thought never merges with text.
func mergeModelParts(parts []Part) []DisplayPart {
	var out []DisplayPart
	for _, p := range parts {
		if p.Type == PartToolResult {
			continue
		}
		if len(out) > 0 && canMergeParts(out[len(out)-1].Part, p) {
			out[len(out)-1].Text += p.Text
			continue
		}
		out = append(out, DisplayPart{Part: p})
	}
	return out
}

func canMergeParts(prev, next Part) bool {
	if prev.Type != next.Type {
		return false
	}
	if prev.Type != PartText && prev.Type != PartThought {
		return false
	}
	return prev.Signature == "" && next.Signature == ""
}

func onlyErrors(parts []DisplayPart) bool {
	for _, p := range parts {
		if p.Type != PartError {
			return false
		}
	}
	return len(parts) > 0
}

// foldableTarget reports whether the last display entry is a model message
// with no content yet, into which a bare error entry should fold.
func foldableTarget(out []DisplayMessage) bool {
	if len(out) == 0 {
		return false
	}
	last := out[len(out)-1]
	if last.Role != RoleAssistant {
		return false
	}
	for _, p := range last.Parts {
		if p.Type != PartError {
			return false
		}
	}
	return true
}

// FlattenDisplay converts a formatted transcript back into a raw message
// sequence: each attached tool result becomes a tool message following its
// model turn, pending calls produce none. FormatHistory over the flattened
// form reproduces the transcript unchanged.
func FlattenDisplay(display []DisplayMessage) []Message {
	var out []Message
	for _, dm := range display {
		msg := Message{Role: dm.Role}
		var results []Message
		for _, dp := range dm.Parts {
			msg.Parts = append(msg.Parts, dp.Part)
			if dp.Type == PartToolCall && dp.Result != nil {
				res := *dp.Result
				results = append(results, Message{
					Role:  RoleTool,
					Parts: []Part{{Type: PartToolResult, ToolResult: &res}},
				})
			}
		}
		if len(msg.Parts) > 0 {
			out = append(out, msg)
		}
		out = append(out, results...)
	}
	return out
}
