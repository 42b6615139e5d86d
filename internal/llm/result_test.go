package llm

import (
	"encoding/base64"
	"testing"
)

func TestCoerceResultPlainText(t *testing.T) {
	result := CoerceResult("id", "tool", "hello world", false)
	if result.Content != "hello world" {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Raw != "hello world" {
		t.Errorf("Raw = %q", result.Raw)
	}
	if len(result.ContentParts) != 0 {
		t.Errorf("ContentParts = %+v, want none", result.ContentParts)
	}
}

func TestCoerceResultJSONString(t *testing.T) {
	result := CoerceResult("id", "tool", `"quoted value"`, false)
	if result.Content != "quoted value" {
		t.Errorf("Content = %q, want decoded string", result.Content)
	}
}

func TestCoerceResultStructuredContent(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	raw := `{"content":[{"type":"text","text":"sheet updated"},{"type":"image","mediaType":"image/png","base64":"` + img + `"}],"dirtyRanges":[{"sheetId":1,"ref":"A1:B2"}]}`

	result := CoerceResult("id", "tool", raw, false)
	if result.Content != "sheet updated" {
		t.Errorf("Content = %q", result.Content)
	}
	if len(result.ContentParts) != 2 {
		t.Fatalf("ContentParts = %d, want 2", len(result.ContentParts))
	}
	images := result.Images()
	if len(images) != 1 || images[0].MediaType != "image/png" {
		t.Errorf("Images = %+v", images)
	}
	// Side-channel metadata survives on Raw for downstream parsing.
	if result.Raw != raw {
		t.Errorf("Raw was not preserved verbatim")
	}
}

func TestCoerceResultRejectsBadImage(t *testing.T) {
	raw := `{"content":[{"type":"text","text":"t"},{"type":"image","mediaType":"image/png","base64":"%%%not-base64%%%"}]}`
	result := CoerceResult("id", "tool", raw, false)
	if len(result.ContentParts) != 1 {
		t.Fatalf("ContentParts = %d, want invalid image dropped", len(result.ContentParts))
	}
	if result.ContentParts[0].Type != ToolContentPartText {
		t.Errorf("surviving part = %+v", result.ContentParts[0])
	}
}

func TestCoerceResultOpaqueJSON(t *testing.T) {
	raw := `{"rows":3,"cols":2}`
	result := CoerceResult("id", "tool", raw, false)
	if result.Content != raw {
		t.Errorf("Content = %q, want opaque JSON preserved", result.Content)
	}
}

func TestCoerceResultError(t *testing.T) {
	result := CoerceResult("id", "tool", "Error: boom", true)
	if !result.IsError {
		t.Error("IsError not set")
	}
	if result.Content != "Error: boom" {
		t.Errorf("Content = %q", result.Content)
	}
}
