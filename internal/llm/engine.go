package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const defaultMaxTurns = 20

// Engine orchestrates provider calls and tool execution for one
// conversation. It owns the model-facing message history and emits a single
// ordered lifecycle event stream per user send: one assistant turn that
// accumulates text, thinking, and tool-call parts across however many
// provider round-trips the run needs.
type Engine struct {
	provider  Provider
	tools     *ToolRegistry
	maxTurns  int
	maxOutput int

	mu      sync.Mutex
	history []Message
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider: provider,
		tools:    tools,
		maxTurns: defaultMaxTurns,
	}
}

// SetMaxOutputTokens caps the tokens requested per provider call. Zero means
// the provider default.
func (e *Engine) SetMaxOutputTokens(n int) {
	e.maxOutput = n
}

// Provider returns the engine's provider.
func (e *Engine) Provider() Provider {
	return e.provider
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// History returns a copy of the model-facing message history.
func (e *Engine) History() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.history))
	for i, msg := range e.history {
		out[i] = Message{Role: msg.Role, Parts: CloneParts(msg.Parts)}
	}
	return out
}

// ResetHistory replaces the message history. Used when restoring a persisted
// conversation and when rebuilding the engine after a configuration swap.
func (e *Engine) ResetHistory(history []Message) {
	e.mu.Lock()
	e.history = history
	e.mu.Unlock()
}

func (e *Engine) appendHistory(msgs ...Message) {
	e.mu.Lock()
	e.history = append(e.history, msgs...)
	e.mu.Unlock()
}

// Send appends a user message and runs the agent loop, returning the
// lifecycle event stream for the resulting assistant turn.
func (e *Engine) Send(ctx context.Context, text string) AgentStream {
	e.appendHistory(UserText(text))
	return newAgentStream(ctx, func(ctx context.Context, events chan<- AgentEvent) error {
		e.run(ctx, events)
		return nil
	})
}

// run drives the agentic loop. All terminal states are reported through
// events: a turn-end carrying the stop reason, then a stream-end carrying
// the error if the run failed. Round messages are buffered in pending and
// committed to history only when the turn ends cleanly, so a failed or
// aborted run leaves the model-facing context without the discarded turn.
func (e *Engine) run(ctx context.Context, events chan<- AgentEvent) {
	turnID := uuid.NewString()
	events <- AgentEvent{Type: AgentTurnStart, TurnID: turnID}

	var parts []Part
	var usage Usage
	var pending []Message

	fail := func(err error) {
		stop := StopError
		if errors.Is(err, context.Canceled) {
			stop = StopAborted
		}
		events <- AgentEvent{Type: AgentTurnEnd, TurnID: turnID, Stop: stop, Err: err}
		events <- AgentEvent{Type: AgentStreamEnd, TurnID: turnID, Stop: stop, Err: err}
	}

	for attempt := 0; attempt < e.maxTurns; attempt++ {
		req := Request{
			Model:           e.provider.Model(),
			Messages:        append(e.History(), pending...),
			Tools:           e.tools.AllSpecs(),
			MaxOutputTokens: e.maxOutput,
		}

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			fail(err)
			return
		}

		roundParts, toolCalls, roundUsage, err := e.collectRound(ctx, stream, turnID, &parts, events)
		stream.Close()
		if err != nil {
			fail(err)
			return
		}
		usage.Add(roundUsage)

		if len(toolCalls) == 0 {
			pending = append(pending, assistantMessage(roundParts))
			e.appendHistory(pending...)
			events <- AgentEvent{
				Type:   AgentTurnEnd,
				TurnID: turnID,
				Parts:  CloneParts(parts),
				Stop:   StopEndTurn,
				Usage:  &usage,
			}
			events <- AgentEvent{Type: AgentStreamEnd, TurnID: turnID, Stop: StopEndTurn}
			return
		}

		results := make([]Message, 0, len(toolCalls))
		for _, call := range toolCalls {
			result := e.executeTool(ctx, turnID, call, events)
			results = append(results, ToolResultMessage(result))
		}
		pending = append(pending, assistantMessage(roundParts))
		pending = append(pending, results...)
	}

	fail(fmt.Errorf("agent loop exceeded max turns (%d)", e.maxTurns))
}

// collectRound consumes one provider stream, appending to the cumulative
// turn parts and emitting a snapshot update after every visible change.
func (e *Engine) collectRound(ctx context.Context, stream Stream, turnID string, parts *[]Part, events chan<- AgentEvent) ([]Part, []ToolCall, Usage, error) {
	var roundParts []Part
	var toolCalls []ToolCall
	var usage Usage

	// Index into *parts of the text/thinking part currently growing, or -1.
	textIdx, thinkingIdx := -1, -1

	update := func() {
		events <- AgentEvent{Type: AgentTurnUpdate, TurnID: turnID, Parts: CloneParts(*parts)}
	}

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, usage, ctx.Err()
			}
			return nil, nil, usage, err
		}

		switch event.Type {
		case EventTextDelta:
			if event.Text == "" {
				continue
			}
			if textIdx < 0 {
				*parts = append(*parts, Part{Type: PartText})
				textIdx = len(*parts) - 1
			}
			(*parts)[textIdx].Text += event.Text
			update()
		case EventThinkingDelta:
			if event.Text == "" {
				continue
			}
			if thinkingIdx < 0 {
				*parts = append(*parts, Part{Type: PartThinking})
				thinkingIdx = len(*parts) - 1
			}
			(*parts)[thinkingIdx].Thinking += event.Text
			update()
		case EventToolCall:
			if event.Tool == nil {
				continue
			}
			call := *event.Tool
			if strings.TrimSpace(call.ID) == "" {
				call.ID = fmt.Sprintf("toolcall-%d", len(toolCalls)+1)
			}
			toolCalls = append(toolCalls, call)
			c := call
			*parts = append(*parts, Part{Type: PartToolCall, ToolCall: &c})
			// A tool call closes the growing text parts for this round.
			textIdx, thinkingIdx = -1, -1
			update()
		case EventUsage:
			if event.Use != nil {
				usage.Add(*event.Use)
			}
		case EventError:
			if event.Err != nil {
				return nil, nil, usage, event.Err
			}
		case EventDone:
			// Terminal marker; EOF follows.
		}
	}

	// The round's own parts are the tail added during this provider call.
	roundParts = roundPartsFromTurn(*parts, toolCalls)
	return roundParts, toolCalls, usage, nil
}

// roundPartsFromTurn rebuilds the assistant message parts for the most
// recent provider round from the cumulative turn parts: everything after
// the previous round's last tool call.
func roundPartsFromTurn(parts []Part, toolCalls []ToolCall) []Part {
	if len(toolCalls) == 0 {
		// Final round: take trailing non-tool parts.
		start := len(parts)
		for start > 0 && parts[start-1].Type != PartToolCall {
			start--
		}
		return CloneParts(parts[start:])
	}
	// Tool round: take from the first of this round's calls backwards
	// through any text/thinking emitted before it.
	firstID := toolCalls[0].ID
	start := 0
	for i, p := range parts {
		if p.Type == PartToolCall && p.ToolCall != nil && p.ToolCall.ID == firstID {
			start = i
			break
		}
	}
	for start > 0 && parts[start-1].Type != PartToolCall {
		start--
	}
	return CloneParts(parts[start:])
}

// executeTool runs one tool call, emitting start/update/end lifecycle events.
func (e *Engine) executeTool(ctx context.Context, turnID string, call ToolCall, events chan<- AgentEvent) ToolResult {
	events <- AgentEvent{
		Type:       AgentToolStart,
		TurnID:     turnID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       call.Arguments,
	}

	tool, ok := e.tools.Get(call.Name)
	if !ok {
		result := CoerceResult(call.ID, call.Name, fmt.Sprintf("Error: tool not registered: %s", call.Name), true)
		events <- AgentEvent{Type: AgentToolEnd, TurnID: turnID, ToolCallID: call.ID, ToolName: call.Name, Result: &result}
		return result
	}

	var output string
	var err error
	if streamer, ok := tool.(StreamingTool); ok {
		output, err = streamer.ExecuteStreaming(ctx, call.Arguments, func(payload string) {
			partial := CoerceResult(call.ID, call.Name, payload, false)
			events <- AgentEvent{Type: AgentToolUpdate, TurnID: turnID, ToolCallID: call.ID, ToolName: call.Name, Result: &partial}
		})
	} else {
		output, err = tool.Execute(ctx, call.Arguments)
	}

	var result ToolResult
	if err != nil {
		result = CoerceResult(call.ID, call.Name, fmt.Sprintf("Error: %v", err), true)
	} else {
		result = CoerceResult(call.ID, call.Name, output, false)
	}
	events <- AgentEvent{Type: AgentToolEnd, TurnID: turnID, ToolCallID: call.ID, ToolName: call.Name, Result: &result}
	return result
}

func assistantMessage(parts []Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}
