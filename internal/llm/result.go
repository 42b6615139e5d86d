package llm

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// structuredResult is the wire shape tools use for rich results. The content
// array carries ordered text/image segments; any sibling keys (for example a
// dirtyRanges side channel) ride along in Raw untouched.
type structuredResult struct {
	Content []structuredSegment `json:"content"`
}

type structuredSegment struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Base64    string `json:"base64,omitempty"`
}

// CoerceResult builds a ToolResult from a raw tool payload.
//
// Payloads come in three shapes: plain text, a structured object with an
// ordered content array of text/image segments, or arbitrary JSON. The raw
// payload is preserved verbatim on the result so machine-readable metadata
// embedded next to the content survives coercion.
func CoerceResult(id, name, raw string, isError bool) ToolResult {
	result := ToolResult{
		ID:      id,
		Name:    name,
		Raw:     raw,
		IsError: isError,
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result
	}

	// A JSON string payload decodes to its contents.
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			result.Content = s
			return result
		}
	}

	if trimmed[0] == '{' {
		var structured structuredResult
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil && len(structured.Content) > 0 {
			if parts, ok := coerceSegments(structured.Content); ok {
				result.ContentParts = parts
				result.Content = contentPartsText(parts)
				return result
			}
		}
		// Arbitrary JSON object: display as-is.
		if json.Valid([]byte(trimmed)) {
			result.Content = trimmed
			return result
		}
	}

	result.Content = raw
	return result
}

// coerceSegments converts wire segments to content parts. Returns ok=false
// when no segment has a recognizable shape, in which case the payload is
// treated as opaque JSON rather than half-parsed.
func coerceSegments(segments []structuredSegment) ([]ToolContentPart, bool) {
	var parts []ToolContentPart
	for _, seg := range segments {
		switch seg.Type {
		case "text":
			parts = append(parts, ToolContentPart{Type: ToolContentPartText, Text: seg.Text})
		case "image":
			if !isSupportedImageMediaType(seg.MediaType) {
				continue
			}
			data := strings.TrimSpace(seg.Base64)
			if data == "" {
				continue
			}
			if _, err := base64.StdEncoding.DecodeString(data); err != nil {
				continue
			}
			parts = append(parts, ToolContentPart{
				Type:  ToolContentPartImage,
				Image: &ToolImage{MediaType: seg.MediaType, Base64: data},
			})
		}
	}
	return parts, len(parts) > 0
}

func contentPartsText(parts []ToolContentPart) string {
	var b strings.Builder
	for _, part := range parts {
		if part.Type == ToolContentPartText && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func isSupportedImageMediaType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
