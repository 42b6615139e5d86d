package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sheetwise/sheetwise/internal/transcript"
)

// export is the document shape shared by the JSON and YAML exporters.
type export struct {
	Session Session           `json:"session" yaml:"session"`
	Turns   []transcript.Turn `json:"turns" yaml:"turns"`
}

// ExportJSON renders a session and its conversation as indented JSON.
func ExportJSON(sess Session, snap Snapshot) ([]byte, error) {
	return json.MarshalIndent(export{Session: sess, Turns: snap.Turns}, "", "  ")
}

// ExportYAML renders a session and its conversation as YAML.
func ExportYAML(sess Session, snap Snapshot) ([]byte, error) {
	return yaml.Marshal(export{Session: sess, Turns: snap.Turns})
}

// ExportMarkdown renders a human-readable transcript.
func ExportMarkdown(sess Session, snap Snapshot) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sess.Name)
	fmt.Fprintf(&b, "- Created: %s\n", sess.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Updated: %s\n", sess.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Tokens: %d in / %d out\n\n", sess.Stats.InputTokens, sess.Stats.OutputTokens)

	for _, turn := range snap.Turns {
		switch turn.Role {
		case transcript.RoleUser:
			b.WriteString("## User\n\n")
		case transcript.RoleAssistant:
			b.WriteString("## Assistant\n\n")
		}
		for _, part := range turn.Parts {
			switch part.Type {
			case transcript.PartText:
				b.WriteString(strings.TrimSpace(part.Text))
				b.WriteString("\n\n")
			case transcript.PartThinking:
				// Reasoning is omitted from exports.
			case transcript.PartToolCall:
				if part.ToolCall == nil {
					continue
				}
				call := part.ToolCall
				fmt.Fprintf(&b, "**Tool: %s** (%s)\n\n", call.Name, call.Status)
				if len(call.Args) > 0 {
					fmt.Fprintf(&b, "```json\n%s\n```\n\n", string(call.Args))
				}
				if call.Result != "" {
					fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimSpace(call.Result))
				}
				if len(call.DirtyRanges) > 0 {
					var refs []string
					for _, d := range call.DirtyRanges {
						refs = append(refs, fmt.Sprintf("sheet %d %s", d.SheetID, d.Ref))
					}
					fmt.Fprintf(&b, "Changed: %s\n\n", strings.Join(refs, ", "))
				}
			}
		}
	}
	return []byte(b.String())
}
