package transcript

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sheetwise/sheetwise/internal/grid"
	"github.com/sheetwise/sheetwise/internal/llm"
)

func newTestReconciler() *Reconciler {
	r := NewReconciler(nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return r
}

func applyAll(r *Reconciler, events []llm.AgentEvent) {
	for _, event := range events {
		r.Apply(event)
	}
}

func toolCallPart(id, name string) llm.Part {
	return llm.Part{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{
		ID: id, Name: name, Arguments: json.RawMessage(`{}`),
	}}
}

// happyToolSequence is a complete stream: text, a tool call that runs to
// completion, then more text.
func happyToolSequence() []llm.AgentEvent {
	result := llm.CoerceResult("call-1", "set_cells", `{"content":[{"type":"text","text":"wrote 4 cells"}],"dirtyRanges":[{"sheetId":1,"ref":"A1:B2"}]}`, false)
	parts1 := []llm.Part{{Type: llm.PartText, Text: "Updating."}}
	parts2 := append(append([]llm.Part(nil), parts1...), toolCallPart("call-1", "set_cells"))
	parts3 := append(append([]llm.Part(nil), parts2...), llm.Part{Type: llm.PartText, Text: "Done."})
	return []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: parts1},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: parts2},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1", ToolName: "set_cells"},
		{Type: llm.AgentToolEnd, TurnID: "t1", ToolCallID: "call-1", ToolName: "set_cells", Result: &result},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: parts3},
		{Type: llm.AgentTurnEnd, TurnID: "t1", Parts: parts3, Stop: llm.StopEndTurn, Usage: &llm.Usage{InputTokens: 100, OutputTokens: 40}},
		{Type: llm.AgentStreamEnd, TurnID: "t1", Stop: llm.StopEndTurn},
	}
}

func TestReplayDeterminism(t *testing.T) {
	events := happyToolSequence()

	first := newTestReconciler()
	first.AddUserTurn("set A1:B2")
	applyAll(first, events)

	second := newTestReconciler()
	second.AddUserTurn("set A1:B2")
	applyAll(second, events)

	a, b := first.Turns(), second.Turns()
	// User-turn IDs are freshly generated; compare everything else.
	a[0].ID, b[0].ID = "", ""
	if !reflect.DeepEqual(a, b) {
		t.Errorf("replays diverged:\n%+v\n%+v", a, b)
	}
}

func TestFailedStreamLeavesNoPartialTurn(t *testing.T) {
	r := newTestReconciler()
	r.AddUserTurn("hello")
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{{Type: llm.PartText, Text: "partial answ"}}},
		{Type: llm.AgentTurnEnd, TurnID: "t1", Stop: llm.StopError, Err: errors.New("connection reset")},
		{Type: llm.AgentStreamEnd, TurnID: "t1", Stop: llm.StopError},
	})

	turns := r.Turns()
	if len(turns) != 1 || turns[0].Role != RoleUser {
		t.Fatalf("turns = %+v, want only the user turn", turns)
	}
	if r.IsStreaming() {
		t.Error("still streaming after turn end")
	}
	if r.Stats().CompletedTurns != 0 {
		t.Errorf("stats counted a discarded turn: %+v", r.Stats())
	}
}

func TestAbortDiscardsStreamingTurn(t *testing.T) {
	r := newTestReconciler()
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{{Type: llm.PartText, Text: "thinking..."}}},
		{Type: llm.AgentTurnEnd, TurnID: "t1", Stop: llm.StopAborted},
	})
	if len(r.Turns()) != 0 {
		t.Errorf("turns = %+v, want none after abort", r.Turns())
	}
}

func TestUpdatePreservesToolStatus(t *testing.T) {
	r := newTestReconciler()
	parts := []llm.Part{toolCallPart("call-1", "read_range")}
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: parts},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1", ToolName: "read_range"},
	})

	// A later cumulative update re-sends the same tool call; its status must
	// stay running, not reset to pending.
	grown := append(append([]llm.Part(nil), parts...), llm.Part{Type: llm.PartText, Text: "and"})
	r.Apply(llm.AgentEvent{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: grown})

	call := r.findToolCall("call-1")
	if call == nil {
		t.Fatal("tool call lost across update")
	}
	if call.Status != StatusRunning {
		t.Errorf("status = %q, want running preserved", call.Status)
	}
}

func TestToolStatusMonotonicity(t *testing.T) {
	r := newTestReconciler()
	result := llm.CoerceResult("call-1", "calc", "42", false)
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{toolCallPart("call-1", "calc")}},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1"},
		{Type: llm.AgentToolEnd, TurnID: "t1", ToolCallID: "call-1", Result: &result},
	})

	call := r.findToolCall("call-1")
	if call.Status != StatusComplete {
		t.Fatalf("status = %q, want complete", call.Status)
	}

	// Late or duplicate lifecycle events must not regress a terminal state.
	r.Apply(llm.AgentEvent{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1"})
	if call.Status != StatusComplete {
		t.Errorf("status regressed to %q after late start", call.Status)
	}
	partial := llm.CoerceResult("call-1", "calc", "ignored", false)
	r.Apply(llm.AgentEvent{Type: llm.AgentToolUpdate, TurnID: "t1", ToolCallID: "call-1", Result: &partial})
	if call.Result != "42" {
		t.Errorf("result overwritten after completion: %q", call.Result)
	}
}

func TestToolErrorStatus(t *testing.T) {
	r := newTestReconciler()
	result := llm.CoerceResult("call-1", "run_code", "Error: division by zero", true)
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{toolCallPart("call-1", "run_code")}},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1"},
		{Type: llm.AgentToolEnd, TurnID: "t1", ToolCallID: "call-1", Result: &result},
	})

	call := r.findToolCall("call-1")
	if call.Status != StatusError || !call.IsError {
		t.Errorf("call = %+v, want error status", call)
	}
}

func TestToolEndDrivesFollowBeforeCommit(t *testing.T) {
	r := newTestReconciler()
	var followed []grid.DirtyRange
	var statusAtFollow ToolCallStatus
	r.SetFollowFunc(func(ranges []grid.DirtyRange) {
		followed = ranges
		statusAtFollow = r.findToolCall("call-1").Status
	})

	result := llm.CoerceResult("call-1", "set_cells", `{"content":[{"type":"text","text":"ok"}],"dirtyRanges":[{"sheetId":1,"ref":"A1:B2"},{"sheetId":1,"ref":"C1:D2"}]}`, false)
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{toolCallPart("call-1", "set_cells")}},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1"},
		{Type: llm.AgentToolEnd, TurnID: "t1", ToolCallID: "call-1", Result: &result},
	})

	want := []grid.DirtyRange{{SheetID: 1, Ref: "A1:D2"}}
	if !reflect.DeepEqual(followed, want) {
		t.Errorf("followed = %+v, want merged %+v", followed, want)
	}
	if statusAtFollow.Terminal() {
		t.Error("follow fired after the status committed")
	}
	call := r.findToolCall("call-1")
	if !reflect.DeepEqual(call.DirtyRanges, want) {
		t.Errorf("stored ranges = %+v, want %+v", call.DirtyRanges, want)
	}
}

func TestInertResultProducesNoFollow(t *testing.T) {
	r := newTestReconciler()
	called := false
	r.SetFollowFunc(func([]grid.DirtyRange) { called = true })

	result := llm.CoerceResult("call-1", "read_range", "A1=5, A2=7", false)
	applyAll(r, []llm.AgentEvent{
		{Type: llm.AgentTurnStart, TurnID: "t1"},
		{Type: llm.AgentTurnUpdate, TurnID: "t1", Parts: []llm.Part{toolCallPart("call-1", "read_range")}},
		{Type: llm.AgentToolStart, TurnID: "t1", ToolCallID: "call-1"},
		{Type: llm.AgentToolEnd, TurnID: "t1", ToolCallID: "call-1", Result: &result},
	})

	if called {
		t.Error("follow fired for a result with no side channel")
	}
	if call := r.findToolCall("call-1"); call.Status != StatusComplete {
		t.Errorf("status = %q, want complete", call.Status)
	}
}

func TestStatsAccumulateAcrossTurns(t *testing.T) {
	r := newTestReconciler()
	for i := 0; i < 2; i++ {
		applyAll(r, []llm.AgentEvent{
			{Type: llm.AgentTurnStart, TurnID: "t"},
			{Type: llm.AgentTurnEnd, TurnID: "t", Parts: []llm.Part{{Type: llm.PartText, Text: "hi"}}, Stop: llm.StopEndTurn, Usage: &llm.Usage{InputTokens: 10, OutputTokens: 5}},
		})
	}
	stats := r.Stats()
	if stats.CompletedTurns != 2 || stats.InputTokens != 20 || stats.OutputTokens != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLoadSeedsTerminalState(t *testing.T) {
	r := newTestReconciler()
	turns := []Turn{
		{ID: "u1", Role: RoleUser, Parts: []Part{{Type: PartText, Text: "sum column A"}}},
		{ID: "a1", Role: RoleAssistant, Parts: []Part{
			{Type: PartToolCall, ToolCall: &ToolCallPart{ID: "call-1", Name: "calc", Status: StatusComplete, Result: "15"}},
			{Type: PartText, Text: "The sum is 15."},
		}},
	}
	r.Load(turns, Stats{CompletedTurns: 1, InputTokens: 50, OutputTokens: 20})

	if r.IsStreaming() {
		t.Error("load left a streaming marker")
	}
	got := r.Turns()
	if !reflect.DeepEqual(got, turns) {
		t.Errorf("turns = %+v, want %+v", got, turns)
	}
	if r.Stats().CompletedTurns != 1 {
		t.Errorf("stats = %+v", r.Stats())
	}
}

func TestToMessagesReplaysToolCalls(t *testing.T) {
	turns := []Turn{
		{ID: "u1", Role: RoleUser, Parts: []Part{{Type: PartText, Text: "sum it"}}},
		{ID: "a1", Role: RoleAssistant, Parts: []Part{
			{Type: PartText, Text: "Summing."},
			{Type: PartToolCall, ToolCall: &ToolCallPart{ID: "call-1", Name: "calc", Args: json.RawMessage(`{"range":"A1:A3"}`), Status: StatusComplete, Result: "15"}},
		}},
	}
	msgs := ToMessages(turns)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want user + assistant + tool result", len(msgs))
	}
	if msgs[1].Role != llm.RoleAssistant {
		t.Errorf("msgs[1].Role = %q", msgs[1].Role)
	}
	if msgs[2].Role != llm.RoleTool {
		t.Errorf("msgs[2].Role = %q", msgs[2].Role)
	}
	if msgs[2].Parts[0].ToolResult.Content != "15" {
		t.Errorf("tool result = %+v", msgs[2].Parts[0].ToolResult)
	}
}

func TestPendingToolCallsExcludedFromReplay(t *testing.T) {
	turns := []Turn{
		{ID: "a1", Role: RoleAssistant, Parts: []Part{
			{Type: PartToolCall, ToolCall: &ToolCallPart{ID: "call-1", Name: "calc", Status: StatusPending}},
			{Type: PartText, Text: "hold on"},
		}},
	}
	msgs := ToMessages(turns)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	for _, part := range msgs[0].Parts {
		if part.Type == llm.PartToolCall {
			t.Error("non-terminal tool call leaked into replay history")
		}
	}
}
