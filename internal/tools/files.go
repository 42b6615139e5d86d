// Package tools provides the agent's workspace tools. Every tool operates on
// an explicitly passed workspace so concurrent sessions never share files.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sheetwise/sheetwise/internal/llm"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

const (
	ReadFileToolName    = "read_file"
	WriteFileToolName   = "write_file"
	ListFilesToolName   = "list_files"
	SearchFilesToolName = "search_files"
)

// maxReadBytes caps tool output so a huge file cannot blow up the context.
const maxReadBytes = 64 * 1024

// ReadFileTool reads a workspace file.
type ReadFileTool struct {
	ws *workspace.Workspace
}

func NewReadFileTool(ws *workspace.Workspace) *ReadFileTool {
	return &ReadFileTool{ws: ws}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read a file from the session workspace.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path of the workspace file to read",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.Path
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := t.ws.ReadFile(a.Path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", a.Path, err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + fmt.Sprintf("\n... truncated (%d bytes total)", len(data)), nil
	}
	return string(data), nil
}

// WriteFileTool writes a workspace file, creating or replacing it.
type WriteFileTool struct {
	ws *workspace.Workspace
}

func NewWriteFileTool(ws *workspace.Workspace) *WriteFileTool {
	return &WriteFileTool{ws: ws}
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Write a file into the session workspace, replacing any existing contents.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Destination path in the workspace",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full file contents",
				},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteFileTool) Preview(args json.RawMessage) string {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.Path
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := t.ws.WriteFile(a.Path, []byte(a.Content)); err != nil {
		return "", fmt.Errorf("write %s: %w", a.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path), nil
}

// ListFilesTool lists workspace files.
type ListFilesTool struct {
	ws *workspace.Workspace
}

func NewListFilesTool(ws *workspace.Workspace) *ListFilesTool {
	return &ListFilesTool{ws: ws}
}

func (t *ListFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListFilesToolName,
		Description: "List all files in the session workspace.",
		Schema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
	}
}

func (t *ListFilesTool) Preview(json.RawMessage) string { return "" }

func (t *ListFilesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	paths, err := t.ws.List()
	if err != nil {
		return "", fmt.Errorf("list workspace: %w", err)
	}
	if len(paths) == 0 {
		return "workspace is empty", nil
	}
	return strings.Join(paths, "\n"), nil
}
