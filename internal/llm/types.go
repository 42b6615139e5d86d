package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider streams raw model output events for a request.
type Provider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields provider events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model round-trip.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartThinking   PartType = "thinking"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part represents a single content part. Exactly one payload field is set,
// selected by Type.
type Part struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	Thinking   string      `json:"thinking,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model-requested tool invocation. The ID is the stable
// identity of the invocation across all later lifecycle events.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolImage is an image segment returned by a tool.
type ToolImage struct {
	MediaType string `json:"media_type"`
	Base64    string `json:"base64"`
}

// ToolContentPartType identifies a structured tool result segment.
type ToolContentPartType string

const (
	ToolContentPartText  ToolContentPartType = "text"
	ToolContentPartImage ToolContentPartType = "image"
)

// ToolContentPart is one ordered segment of a structured tool result.
type ToolContentPart struct {
	Type  ToolContentPartType `json:"type"`
	Text  string              `json:"text,omitempty"`
	Image *ToolImage          `json:"image,omitempty"`
}

// ToolResult is the output from executing a tool call.
//
// Content carries the display text. ContentParts, when present, carries the
// ordered text/image segments the tool returned. Raw preserves the tool's
// unmodified payload so machine-readable side channels (dirty ranges) survive
// the text coercion.
type ToolResult struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Content      string            `json:"content"`
	ContentParts []ToolContentPart `json:"content_parts,omitempty"`
	Raw          string            `json:"raw,omitempty"`
	IsError      bool              `json:"is_error,omitempty"`
}

// Images returns the image segments of a structured result, in order.
func (r *ToolResult) Images() []ToolImage {
	if r == nil {
		return nil
	}
	var images []ToolImage
	for _, part := range r.ContentParts {
		if part.Type == ToolContentPartImage && part.Image != nil {
			images = append(images, *part.Image)
		}
	}
	return images
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// EventType describes provider streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventThinkingDelta EventType = "thinking_delta"
	EventToolCall      EventType = "tool_call"
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event represents a streamed provider output update.
type Event struct {
	Type EventType
	Text string
	Tool *ToolCall
	Use  *Usage
	Err  error
}

// StopReason describes how an assistant turn terminated.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopError   StopReason = "error"
	StopAborted StopReason = "aborted"
)

// Failed reports whether the stop reason signals an unusable turn.
func (r StopReason) Failed() bool {
	return r == StopError || r == StopAborted
}

// AgentEventType describes agent lifecycle events consumed by the
// transcript reconciler and the session controller.
type AgentEventType string

const (
	AgentTurnStart  AgentEventType = "turn_start"
	AgentTurnUpdate AgentEventType = "turn_update"
	AgentTurnEnd    AgentEventType = "turn_end"
	AgentToolStart  AgentEventType = "tool_start"
	AgentToolUpdate AgentEventType = "tool_update"
	AgentToolEnd    AgentEventType = "tool_end"
	AgentStreamEnd  AgentEventType = "stream_end"
)

// AgentEvent is one lifecycle event of an agent run. Turn updates always
// carry the full content so far, never a delta, so replaying a persisted
// event sequence reproduces the same transcript.
type AgentEvent struct {
	Type   AgentEventType
	TurnID string

	// Cumulative parts for AgentTurnUpdate; final parts for AgentTurnEnd.
	Parts []Part

	// Terminal state for AgentTurnEnd / AgentStreamEnd.
	Stop  StopReason
	Usage *Usage
	Err   error

	// Tool lifecycle for AgentToolStart/Update/End.
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Result     *ToolResult
}

// AgentStream yields agent lifecycle events until io.EOF.
type AgentStream interface {
	Recv() (AgentEvent, error)
	Close() error
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

// ToolResultMessage wraps a tool result in a tool-role message.
func ToolResultMessage(result ToolResult) Message {
	r := result
	return Message{Role: RoleTool, Parts: []Part{{Type: PartToolResult, ToolResult: &r}}}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error text is passed back to the model so it can respond gracefully
// instead of failing the stream.
func ToolErrorMessage(id, name, errorText string) Message {
	return ToolResultMessage(ToolResult{
		ID:      id,
		Name:    name,
		Content: errorText,
		IsError: true,
	})
}

// CollectText concatenates the text parts of a message.
func CollectText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == PartText && p.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ClonePart returns a deep copy of a part. Turn updates hand snapshots to
// consumers that outlive the streaming buffer, so shared pointers would let
// later mutation leak across the boundary.
func ClonePart(p Part) Part {
	out := p
	if p.ToolCall != nil {
		tc := *p.ToolCall
		if p.ToolCall.Arguments != nil {
			tc.Arguments = append(json.RawMessage(nil), p.ToolCall.Arguments...)
		}
		out.ToolCall = &tc
	}
	if p.ToolResult != nil {
		tr := *p.ToolResult
		tr.ContentParts = append([]ToolContentPart(nil), p.ToolResult.ContentParts...)
		out.ToolResult = &tr
	}
	return out
}

// CloneParts deep-copies a slice of parts.
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = ClonePart(p)
	}
	return out
}
