package grid

import "testing"

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		want Rect
	}{
		{"A1", Rect{1, 1, 1, 1}},
		{"b3", Rect{2, 3, 2, 3}},
		{"A1:C10", Rect{1, 1, 3, 10}},
		{"C10:A1", Rect{1, 1, 3, 10}}, // reversed corners normalize
		{"AA100", Rect{27, 100, 27, 100}},
		{" d4 ", Rect{4, 4, 4, 4}},
	}
	for _, tt := range tests {
		got, err := ParseRef(tt.in)
		if err != nil {
			t.Errorf("ParseRef(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseRefRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "1A", "A", "42", "A0", "A1:", ":B2", "A1:B2:C3", "A-1", "XFE1", "A1048577"} {
		if _, err := ParseRef(in); err == nil {
			t.Errorf("ParseRef(%q) succeeded, want error", in)
		}
	}
}

func TestRectString(t *testing.T) {
	if got := (Rect{1, 1, 1, 1}).String(); got != "A1" {
		t.Errorf("single cell = %q, want A1", got)
	}
	if got := (Rect{1, 1, 3, 10}).String(); got != "A1:C10" {
		t.Errorf("range = %q, want A1:C10", got)
	}
	if got := (Rect{27, 5, 28, 6}).String(); got != "AA5:AB6" {
		t.Errorf("wide columns = %q, want AA5:AB6", got)
	}
}

func TestRectTouches(t *testing.T) {
	a := Rect{1, 1, 2, 2} // A1:B2
	tests := []struct {
		other Rect
		want  bool
	}{
		{Rect{2, 2, 4, 4}, true},  // overlap
		{Rect{3, 1, 4, 2}, true},  // edge adjacent
		{Rect{3, 3, 4, 4}, true},  // corner adjacent
		{Rect{4, 1, 5, 2}, false}, // one column gap
		{Rect{1, 4, 2, 5}, false}, // one row gap
	}
	for _, tt := range tests {
		if got := a.Touches(tt.other); got != tt.want {
			t.Errorf("A1:B2 touches %v = %v, want %v", tt.other, got, tt.want)
		}
	}
}
