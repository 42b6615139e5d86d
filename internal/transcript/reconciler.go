package transcript

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetwise/sheetwise/internal/grid"
	"github.com/sheetwise/sheetwise/internal/llm"
)

// FollowFunc is invoked when a completed tool call reports mutated regions,
// with the merged display set. Called at most once per tool completion.
type FollowFunc func(ranges []grid.DirtyRange)

// Reconciler consumes the ordered agent lifecycle event stream and maintains
// the canonical conversation. At most one turn is streaming at a time; a turn
// whose stream fails is removed rather than left partial.
//
// The reconciler is not safe for concurrent use. The orchestrator drives it
// from a single goroutine.
type Reconciler struct {
	logger *slog.Logger
	follow FollowFunc
	now    func() time.Time

	turns       []Turn
	streamingID string
	stats       Stats
}

func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger, now: time.Now}
}

// SetFollowFunc installs the host navigation hook for completed tool calls.
func (r *Reconciler) SetFollowFunc(f FollowFunc) {
	r.follow = f
}

// Turns returns a deep copy of the conversation for UI snapshots.
func (r *Reconciler) Turns() []Turn {
	return CloneTurns(r.turns)
}

// Stats returns the running usage totals for the session.
func (r *Reconciler) Stats() Stats {
	return r.stats
}

// IsStreaming reports whether a turn is currently being streamed.
func (r *Reconciler) IsStreaming() bool {
	return r.streamingID != ""
}

// Reset clears all conversation state.
func (r *Reconciler) Reset() {
	r.turns = nil
	r.streamingID = ""
	r.stats = Stats{}
}

// Load replaces the conversation with persisted turns. Restored tool calls
// arrive pre-seeded in their terminal states.
func (r *Reconciler) Load(turns []Turn, stats Stats) {
	r.turns = CloneTurns(turns)
	r.streamingID = ""
	r.stats = stats
}

// AddUserTurn appends a user message and returns it.
func (r *Reconciler) AddUserTurn(text string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Parts:     []Part{{Type: PartText, Text: text}},
		Timestamp: r.now(),
	}
	r.turns = append(r.turns, turn)
	return CloneTurn(turn)
}

// Apply folds one lifecycle event into the conversation. Events must arrive
// in stream order; applying the same sequence twice yields the same turns.
func (r *Reconciler) Apply(event llm.AgentEvent) {
	switch event.Type {
	case llm.AgentTurnStart:
		r.turnStart(event)
	case llm.AgentTurnUpdate:
		r.turnUpdate(event)
	case llm.AgentTurnEnd:
		r.turnEnd(event)
	case llm.AgentToolStart:
		r.toolStart(event)
	case llm.AgentToolUpdate:
		r.toolUpdate(event)
	case llm.AgentToolEnd:
		r.toolEnd(event)
	case llm.AgentStreamEnd:
		// Idle transition is the orchestrator's concern.
	default:
		r.logger.Warn("unknown lifecycle event", "type", event.Type)
	}
}

func (r *Reconciler) turnStart(event llm.AgentEvent) {
	if r.streamingID != "" {
		// A stream never starts two turns; drop the stale marker so the
		// invariant of one streaming turn holds.
		r.logger.Warn("turn started while another was streaming", "turn", event.TurnID, "streaming", r.streamingID)
	}
	r.turns = append(r.turns, Turn{
		ID:        event.TurnID,
		Role:      RoleAssistant,
		Timestamp: r.now(),
	})
	r.streamingID = event.TurnID
}

func (r *Reconciler) turnUpdate(event llm.AgentEvent) {
	turn := r.findTurn(r.streamingID)
	if turn == nil {
		r.logger.Warn("turn update without a streaming turn", "turn", event.TurnID)
		return
	}
	turn.Parts = r.rebuildParts(event.Parts, turn.Parts)
}

// turnEnd commits or discards the streaming turn. Discard on failure is the
// compensating action: a failed generation leaves no partial turn behind.
func (r *Reconciler) turnEnd(event llm.AgentEvent) {
	id := r.streamingID
	r.streamingID = ""
	if id == "" {
		return
	}

	if event.Stop.Failed() {
		for i := range r.turns {
			if r.turns[i].ID == id {
				r.turns = append(r.turns[:i], r.turns[i+1:]...)
				break
			}
		}
		return
	}

	turn := r.findTurn(id)
	if turn == nil {
		return
	}
	if len(event.Parts) > 0 {
		turn.Parts = r.rebuildParts(event.Parts, turn.Parts)
	}
	r.stats.add(event.Usage)
}

func (r *Reconciler) toolStart(event llm.AgentEvent) {
	call := r.findToolCall(event.ToolCallID)
	if call == nil {
		r.logger.Warn("tool start for unknown call", "id", event.ToolCallID, "tool", event.ToolName)
		return
	}
	if call.Status.rank() >= StatusRunning.rank() {
		return
	}
	call.Status = StatusRunning
}

func (r *Reconciler) toolUpdate(event llm.AgentEvent) {
	call := r.findToolCall(event.ToolCallID)
	if call == nil || event.Result == nil {
		return
	}
	if call.Status.Terminal() {
		return
	}
	call.Result = event.Result.Content
	call.Images = event.Result.Images()
}

func (r *Reconciler) toolEnd(event llm.AgentEvent) {
	call := r.findToolCall(event.ToolCallID)
	if call == nil {
		r.logger.Warn("tool end for unknown call", "id", event.ToolCallID, "tool", event.ToolName)
		return
	}
	if call.Status.Terminal() {
		return
	}

	result := event.Result
	if result == nil {
		call.Status = StatusError
		return
	}

	// The result payload may carry a dirty-range side channel. Follow
	// navigation fires on the merged set before the status commits.
	merged := grid.MergeDirtyRanges(grid.ParseDirtyRanges(result.Raw))
	if len(merged) > 0 && r.follow != nil {
		r.follow(merged)
	}

	call.Result = result.Content
	call.IsError = result.IsError
	call.Images = result.Images()
	call.DirtyRanges = merged
	if result.IsError {
		call.Status = StatusError
	} else {
		call.Status = StatusComplete
	}
}

// rebuildParts recomputes a turn's parts from the event's cumulative content,
// preserving lifecycle state for tool calls that already existed. An update
// must never reset a tool call to pending.
func (r *Reconciler) rebuildParts(latest []llm.Part, prior []Part) []Part {
	existing := make(map[string]*ToolCallPart)
	for i := range prior {
		if prior[i].Type == PartToolCall && prior[i].ToolCall != nil {
			existing[prior[i].ToolCall.ID] = prior[i].ToolCall
		}
	}

	out := make([]Part, 0, len(latest))
	for _, p := range latest {
		switch p.Type {
		case llm.PartText:
			out = append(out, Part{Type: PartText, Text: p.Text})
		case llm.PartThinking:
			out = append(out, Part{Type: PartThinking, Thinking: p.Thinking})
		case llm.PartToolCall:
			if p.ToolCall == nil {
				continue
			}
			if kept, ok := existing[p.ToolCall.ID]; ok {
				call := *kept
				call.Name = p.ToolCall.Name
				call.Args = append(json.RawMessage(nil), p.ToolCall.Arguments...)
				out = append(out, Part{Type: PartToolCall, ToolCall: &call})
				continue
			}
			out = append(out, Part{Type: PartToolCall, ToolCall: &ToolCallPart{
				ID:     p.ToolCall.ID,
				Name:   p.ToolCall.Name,
				Args:   append(json.RawMessage(nil), p.ToolCall.Arguments...),
				Status: StatusPending,
			}})
		case llm.PartToolResult:
			// Tool results live on the tool call part, not as turn content.
		}
	}
	return out
}

func (r *Reconciler) findTurn(id string) *Turn {
	if id == "" {
		return nil
	}
	for i := len(r.turns) - 1; i >= 0; i-- {
		if r.turns[i].ID == id {
			return &r.turns[i]
		}
	}
	return nil
}

// findToolCall locates a tool call part by ID, searching turns most recent
// first since live calls belong to the newest turn.
func (r *Reconciler) findToolCall(id string) *ToolCallPart {
	if id == "" {
		return nil
	}
	for i := len(r.turns) - 1; i >= 0; i-- {
		parts := r.turns[i].Parts
		for j := len(parts) - 1; j >= 0; j-- {
			if parts[j].Type == PartToolCall && parts[j].ToolCall != nil && parts[j].ToolCall.ID == id {
				return parts[j].ToolCall
			}
		}
	}
	return nil
}
