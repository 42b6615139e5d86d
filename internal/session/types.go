package session

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/sheetwise/sheetwise/internal/transcript"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

// DefaultName is the name given to freshly created sessions. While a session
// still carries it, the first user message auto-derives a better one.
const DefaultName = "New chat"

// Session is one persisted conversation scoped to a workspace.
type Session struct {
	ID          string           `json:"id"`
	WorkspaceID string           `json:"workspaceId"`
	Name        string           `json:"name"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Stats       transcript.Stats `json:"stats"`
}

// DefaultNamed reports whether the session still has its placeholder name.
func (s Session) DefaultNamed() bool {
	return s.Name == "" || s.Name == DefaultName
}

// Snapshot is the unit of persistence: the conversation and the workspace
// files it produced, written together or not at all.
type Snapshot struct {
	Turns []transcript.Turn `json:"turns"`
	Stats transcript.Stats  `json:"stats"`
	Files []workspace.File  `json:"files"`
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// TruncateSummary derives a short session name from message text: first line
// only, whitespace collapsed, cut at a word boundary under max runes.
func TruncateSummary(text string, max int) string {
	if line, _, ok := strings.Cut(text, "\n"); ok {
		text = line
	}
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := max
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = max
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
