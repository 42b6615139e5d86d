package transcript

import (
	"encoding/json"
	"time"

	"github.com/sheetwise/sheetwise/internal/grid"
	"github.com/sheetwise/sheetwise/internal/llm"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType tags the Part union.
type PartType string

const (
	PartText     PartType = "text"
	PartThinking PartType = "thinking"
	PartToolCall PartType = "tool_call"
)

// ToolCallStatus is the lifecycle state of a tool call. Transitions only
// move forward: pending, running, then complete or error. Restored history
// may seed parts directly in a terminal state.
type ToolCallStatus string

const (
	StatusPending  ToolCallStatus = "pending"
	StatusRunning  ToolCallStatus = "running"
	StatusComplete ToolCallStatus = "complete"
	StatusError    ToolCallStatus = "error"
)

// Terminal reports whether the status is final.
func (s ToolCallStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// rank orders statuses along the forward lifecycle.
func (s ToolCallStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusComplete, StatusError:
		return 2
	default:
		return -1
	}
}

// Turn is one message in the visible conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// Part is a tagged union of turn content. Exactly the field matching Type is
// set.
type Part struct {
	Type     PartType      `json:"type"`
	Text     string        `json:"text,omitempty"`
	Thinking string        `json:"thinking,omitempty"`
	ToolCall *ToolCallPart `json:"toolCall,omitempty"`
}

// ToolCallPart tracks one tool invocation inside a turn. Its identity is the
// call ID, stable across content updates.
type ToolCallPart struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Args        json.RawMessage   `json:"args,omitempty"`
	Status      ToolCallStatus    `json:"status"`
	Result      string            `json:"result,omitempty"`
	IsError     bool              `json:"isError,omitempty"`
	Images      []llm.ToolImage   `json:"images,omitempty"`
	DirtyRanges []grid.DirtyRange `json:"dirtyRanges,omitempty"`
}

// Stats accumulates usage across a session's completed turns.
type Stats struct {
	InputTokens    int `json:"inputTokens"`
	OutputTokens   int `json:"outputTokens"`
	CompletedTurns int `json:"completedTurns"`
}

func (s *Stats) add(usage *llm.Usage) {
	s.CompletedTurns++
	if usage == nil {
		return
	}
	s.InputTokens += usage.InputTokens
	s.OutputTokens += usage.OutputTokens
}

func clonePart(p Part) Part {
	out := p
	if p.ToolCall != nil {
		call := *p.ToolCall
		call.Args = append(json.RawMessage(nil), p.ToolCall.Args...)
		call.Images = append([]llm.ToolImage(nil), p.ToolCall.Images...)
		call.DirtyRanges = append([]grid.DirtyRange(nil), p.ToolCall.DirtyRanges...)
		out.ToolCall = &call
	}
	return out
}

// CloneTurn deep-copies a turn so UI snapshots cannot alias live state.
func CloneTurn(t Turn) Turn {
	out := t
	out.Parts = make([]Part, len(t.Parts))
	for i, p := range t.Parts {
		out.Parts[i] = clonePart(p)
	}
	return out
}

// CloneTurns deep-copies a turn list.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = CloneTurn(t)
	}
	return out
}
