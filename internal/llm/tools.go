package llm

import (
	"context"
	"encoding/json"
)

// Tool describes a callable external capability. Execute returns the raw
// payload the tool produced; coercion into display text happens at the
// engine boundary so the payload's side channels stay intact.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
	// Preview returns a short human-readable description of what the call
	// will do, shown while the tool runs. Empty string if none.
	Preview(args json.RawMessage) string
}

// StreamingTool is an optional interface for tools that emit partial results
// while running. The engine forwards each partial payload as a tool-update
// lifecycle event.
type StreamingTool interface {
	ExecuteStreaming(ctx context.Context, args json.RawMessage, partial func(payload string)) (string, error)
}

// ToolRegistry stores tools by name for execution.
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.tools[tool.Spec().Name] = tool
}

func (r *ToolRegistry) Unregister(name string) {
	delete(r.tools, name)
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// AllSpecs returns the specs for all registered tools.
func (r *ToolRegistry) AllSpecs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec())
	}
	return specs
}
