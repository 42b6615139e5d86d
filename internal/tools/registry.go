package tools

import (
	"github.com/sheetwise/sheetwise/internal/llm"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

// NewRegistry builds the tool registry for one session's workspace.
func NewRegistry(ws *workspace.Workspace) *llm.ToolRegistry {
	reg := llm.NewToolRegistry()
	reg.Register(NewReadFileTool(ws))
	reg.Register(NewWriteFileTool(ws))
	reg.Register(NewListFilesTool(ws))
	reg.Register(NewSearchFilesTool(ws))
	return reg
}
