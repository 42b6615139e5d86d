package grid

import "sort"

// MergeDirtyRanges collapses a set of dirty ranges into a minimal display
// set. Ranges are grouped by sheet; within a sheet, touching rectangles
// collapse to their bounding rectangle and a wildcard swallows the whole
// sheet. Unknown-sheet entries stay as distinct literals. The result depends
// only on the input set, never on its order, and merging an already-merged
// set returns it unchanged.
func MergeDirtyRanges(ranges []DirtyRange) []DirtyRange {
	type bucket struct {
		wildcard bool
		rects    []Rect
		literals map[string]bool
	}
	buckets := make(map[int]*bucket)
	get := func(sheet int) *bucket {
		b, ok := buckets[sheet]
		if !ok {
			b = &bucket{literals: make(map[string]bool)}
			buckets[sheet] = b
		}
		return b
	}

	for _, d := range ranges {
		b := get(d.SheetID)
		switch {
		case d.Unknown():
			b.literals[d.Ref] = true
		case d.Ref == Wildcard:
			b.wildcard = true
		default:
			rect, err := ParseRef(d.Ref)
			if err != nil {
				// Defensive: unparseable refs pass through unmerged.
				b.literals[d.Ref] = true
				continue
			}
			b.rects = append(b.rects, rect)
		}
	}

	var out []DirtyRange
	for sheet, b := range buckets {
		if b.wildcard {
			out = append(out, DirtyRange{SheetID: sheet, Ref: Wildcard})
		} else {
			for _, rect := range mergeRects(b.rects) {
				out = append(out, DirtyRange{SheetID: sheet, Ref: rect.String()})
			}
		}
		for ref := range b.literals {
			out = append(out, DirtyRange{SheetID: sheet, Ref: ref})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SheetID != out[j].SheetID {
			return out[i].SheetID < out[j].SheetID
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}

// mergeRects collapses touching rectangles to bounding rectangles until a
// fixed point. The list is canonically sorted first so the outcome is
// independent of input order.
func mergeRects(rects []Rect) []Rect {
	if len(rects) == 0 {
		return nil
	}
	rects = dedupeRects(rects)
	for {
		sortRects(rects)
		merged := false
	scan:
		for i := 0; i < len(rects); i++ {
			for j := i + 1; j < len(rects); j++ {
				if rects[i].Touches(rects[j]) {
					rects[i] = rects[i].Bound(rects[j])
					rects = append(rects[:j], rects[j+1:]...)
					merged = true
					break scan
				}
			}
		}
		if !merged {
			return rects
		}
	}
}

func dedupeRects(rects []Rect) []Rect {
	seen := make(map[Rect]bool, len(rects))
	out := rects[:0:0]
	for _, r := range rects {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func sortRects(rects []Rect) {
	sort.Slice(rects, func(i, j int) bool {
		a, b := rects[i], rects[j]
		if a.StartRow != b.StartRow {
			return a.StartRow < b.StartRow
		}
		if a.StartCol != b.StartCol {
			return a.StartCol < b.StartCol
		}
		if a.EndRow != b.EndRow {
			return a.EndRow < b.EndRow
		}
		return a.EndCol < b.EndCol
	})
}
