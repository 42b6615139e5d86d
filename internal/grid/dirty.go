package grid

import "github.com/tidwall/gjson"

// Wildcard marks a dirty range covering an entire sheet.
const Wildcard = "*"

// DirtyRange records one spreadsheet region a tool call mutated. A negative
// SheetID means the tool could not resolve which sheet it touched; such
// entries are displayed by their literal reference and never merged.
type DirtyRange struct {
	SheetID int    `json:"sheetId"`
	Ref     string `json:"ref"`
}

// Unknown reports whether the range's sheet could not be resolved.
func (d DirtyRange) Unknown() bool {
	return d.SheetID < 0
}

// ParseDirtyRanges extracts the dirty-range side channel from a raw tool
// result payload. Tool payloads are untrusted: anything that is not valid
// JSON, lacks a dirtyRanges array, or carries entries that fail validation
// yields no ranges rather than an error.
func ParseDirtyRanges(raw string) []DirtyRange {
	if !gjson.Valid(raw) {
		return nil
	}
	field := gjson.Get(raw, "dirtyRanges")
	if !field.IsArray() {
		return nil
	}

	var out []DirtyRange
	for _, item := range field.Array() {
		sheet := item.Get("sheetId")
		ref := item.Get("ref")
		if !sheet.Exists() || !ref.Exists() {
			continue
		}
		d := DirtyRange{SheetID: int(sheet.Int()), Ref: ref.String()}
		if !validDirtyRef(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// validDirtyRef checks a side-channel reference defensively. Known sheets
// accept a wildcard or a well-formed A1 reference; unknown-sheet entries keep
// their literal text but must be non-empty and sane in length.
func validDirtyRef(d DirtyRange) bool {
	if d.Ref == "" || len(d.Ref) > 64 {
		return false
	}
	if d.Unknown() {
		return true
	}
	return d.Ref == Wildcard || ValidRef(d.Ref)
}
