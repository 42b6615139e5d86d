package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sheetwise/sheetwise/internal/llm"
	"github.com/sheetwise/sheetwise/internal/paginate"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

// SearchFilesTool scans workspace files for a substring and returns an
// offset/limit window of matches.
type SearchFilesTool struct {
	ws *workspace.Workspace
}

func NewSearchFilesTool(ws *workspace.Workspace) *SearchFilesTool {
	return &SearchFilesTool{ws: ws}
}

// SearchFilesArgs are the arguments for search_files.
type SearchFilesArgs struct {
	Query  string `json:"query"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// SearchMatch is one line hit.
type SearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// searchResult is the tool's JSON payload.
type searchResult struct {
	Matches []SearchMatch `json:"matches"`
	paginate.Page
}

const defaultSearchLimit = 20

func (t *SearchFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SearchFilesToolName,
		Description: "Search workspace files for a substring. Results are paginated; use offset and the returned nextOffset to page through matches.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Substring to look for (case sensitive)",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "0-based match offset to start from",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default 20)",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *SearchFilesTool) Preview(args json.RawMessage) string {
	var a SearchFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.Query
}

func (t *SearchFilesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a SearchFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if a.Limit == 0 {
		a.Limit = defaultSearchLimit
	}

	snapshot, err := t.ws.Snapshot()
	if err != nil {
		return "", fmt.Errorf("scan workspace: %w", err)
	}

	collector := paginate.NewCollector[SearchMatch](a.Offset, a.Limit)
scan:
	for _, file := range snapshot {
		for i, line := range strings.Split(string(file.Data), "\n") {
			if !strings.Contains(line, a.Query) {
				continue
			}
			match := SearchMatch{Path: file.Path, Line: i + 1, Text: strings.TrimSpace(line)}
			if !collector.Add(match) {
				break scan
			}
		}
	}

	payload, err := json.Marshal(searchResult{Matches: collector.Items(), Page: collector.Page()})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(payload), nil
}
