package grid

import (
	"fmt"
	"strings"
)

// Spreadsheet hosts cap grids at these dimensions; anything beyond is a
// malformed reference rather than a real cell.
const (
	maxCol = 16384   // column XFD
	maxRow = 1048576 // 2^20
)

// Rect is a rectangular cell region with 1-based inclusive bounds.
type Rect struct {
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRef parses an A1-style reference ("B3" or "A1:C10") into a Rect.
// Bounds are normalized so Start is always the top-left corner.
func ParseRef(ref string) (Rect, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return Rect{}, fmt.Errorf("empty reference")
	}

	first, rest, hasColon := strings.Cut(ref, ":")
	startCol, startRow, err := parseCell(first)
	if err != nil {
		return Rect{}, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	endCol, endRow := startCol, startRow
	if hasColon {
		endCol, endRow, err = parseCell(rest)
		if err != nil {
			return Rect{}, fmt.Errorf("invalid reference %q: %w", ref, err)
		}
	}

	r := Rect{StartCol: startCol, StartRow: startRow, EndCol: endCol, EndRow: endRow}
	if r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	return r, nil
}

// ValidRef reports whether ref parses as an A1-style reference.
func ValidRef(ref string) bool {
	_, err := ParseRef(ref)
	return err == nil
}

// String formats the rect back to A1 notation, collapsing single cells.
func (r Rect) String() string {
	start := formatCell(r.StartCol, r.StartRow)
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return start
	}
	return start + ":" + formatCell(r.EndCol, r.EndRow)
}

// Bound returns the bounding rectangle of r and other.
func (r Rect) Bound(other Rect) Rect {
	out := r
	if other.StartCol < out.StartCol {
		out.StartCol = other.StartCol
	}
	if other.StartRow < out.StartRow {
		out.StartRow = other.StartRow
	}
	if other.EndCol > out.EndCol {
		out.EndCol = other.EndCol
	}
	if other.EndRow > out.EndRow {
		out.EndRow = other.EndRow
	}
	return out
}

// Touches reports whether the rects overlap or are adjacent, including
// corner adjacency. Touching rects collapse to their bounding rectangle
// when merged for display.
func (r Rect) Touches(other Rect) bool {
	if r.EndCol+1 < other.StartCol || other.EndCol+1 < r.StartCol {
		return false
	}
	if r.EndRow+1 < other.StartRow || other.EndRow+1 < r.StartRow {
		return false
	}
	return true
}

func parseCell(cell string) (col, row int, err error) {
	if cell == "" {
		return 0, 0, fmt.Errorf("empty cell")
	}
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A') + 1
		if col > maxCol {
			return 0, 0, fmt.Errorf("column out of range")
		}
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("missing column letters")
	}
	if i == len(cell) {
		return 0, 0, fmt.Errorf("missing row number")
	}
	for ; i < len(cell); i++ {
		if cell[i] < '0' || cell[i] > '9' {
			return 0, 0, fmt.Errorf("bad row digit %q", cell[i])
		}
		row = row*10 + int(cell[i]-'0')
		if row > maxRow {
			return 0, 0, fmt.Errorf("row out of range")
		}
	}
	if row == 0 {
		return 0, 0, fmt.Errorf("row starts at 1")
	}
	return col, row, nil
}

func formatCell(col, row int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return fmt.Sprintf("%s%d", letters, row)
}
