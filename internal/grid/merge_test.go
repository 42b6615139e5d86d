package grid

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestParseDirtyRanges(t *testing.T) {
	raw := `{"content":[{"type":"text","text":"ok"}],"dirtyRanges":[{"sheetId":1,"ref":"A1:B2"},{"sheetId":2,"ref":"*"},{"sheetId":-1,"ref":"Imported Data"}]}`
	got := ParseDirtyRanges(raw)
	want := []DirtyRange{
		{SheetID: 1, Ref: "A1:B2"},
		{SheetID: 2, Ref: "*"},
		{SheetID: -1, Ref: "Imported Data"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseDirtyRanges = %+v, want %+v", got, want)
	}
}

func TestParseDirtyRangesUntrustedInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain text", "wrote 3 cells"},
		{"invalid json", `{"dirtyRanges":[`},
		{"no side channel", `{"content":[{"type":"text","text":"hi"}]}`},
		{"side channel not array", `{"dirtyRanges":"A1"}`},
		{"bad ref on known sheet", `{"dirtyRanges":[{"sheetId":1,"ref":"not a ref"}]}`},
		{"empty ref", `{"dirtyRanges":[{"sheetId":1,"ref":""}]}`},
		{"missing fields", `{"dirtyRanges":[{"sheetId":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDirtyRanges(tt.raw); len(got) != 0 {
				t.Errorf("ParseDirtyRanges = %+v, want none", got)
			}
		})
	}
}

func TestMergeDirtyRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []DirtyRange
		want []DirtyRange
	}{
		{
			name: "adjacent ranges collapse",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1:B2"},
				{SheetID: 1, Ref: "C1:D2"},
			},
			want: []DirtyRange{{SheetID: 1, Ref: "A1:D2"}},
		},
		{
			name: "overlapping ranges collapse",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1:C3"},
				{SheetID: 1, Ref: "B2:D4"},
			},
			want: []DirtyRange{{SheetID: 1, Ref: "A1:D4"}},
		},
		{
			name: "disjoint ranges stay apart",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1"},
				{SheetID: 1, Ref: "E5"},
			},
			want: []DirtyRange{
				{SheetID: 1, Ref: "A1"},
				{SheetID: 1, Ref: "E5"},
			},
		},
		{
			name: "sheets merge independently",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1:B2"},
				{SheetID: 2, Ref: "B1:C2"},
			},
			want: []DirtyRange{
				{SheetID: 1, Ref: "A1:B2"},
				{SheetID: 2, Ref: "B1:C2"},
			},
		},
		{
			name: "wildcard swallows the sheet",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1:B2"},
				{SheetID: 1, Ref: "*"},
				{SheetID: 1, Ref: "Z99"},
			},
			want: []DirtyRange{{SheetID: 1, Ref: "*"}},
		},
		{
			name: "unknown sheets keep distinct literals",
			in: []DirtyRange{
				{SheetID: -1, Ref: "Budget"},
				{SheetID: -1, Ref: "Budget"},
				{SheetID: -1, Ref: "Forecast"},
			},
			want: []DirtyRange{
				{SheetID: -1, Ref: "Budget"},
				{SheetID: -1, Ref: "Forecast"},
			},
		},
		{
			name: "chained adjacency collapses transitively",
			in: []DirtyRange{
				{SheetID: 1, Ref: "A1"},
				{SheetID: 1, Ref: "B1"},
				{SheetID: 1, Ref: "C1"},
				{SheetID: 1, Ref: "D1"},
			},
			want: []DirtyRange{{SheetID: 1, Ref: "A1:D1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeDirtyRanges(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeDirtyRanges = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	base := []DirtyRange{
		{SheetID: 1, Ref: "A1:B2"},
		{SheetID: 1, Ref: "C1:D2"},
		{SheetID: 1, Ref: "F10:G12"},
		{SheetID: 2, Ref: "*"},
		{SheetID: -1, Ref: "Ledger"},
		{SheetID: 1, Ref: "A3:D4"},
	}
	want := MergeDirtyRanges(base)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		shuffled := append([]DirtyRange(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := MergeDirtyRanges(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	in := []DirtyRange{
		{SheetID: 1, Ref: "A1:B2"},
		{SheetID: 1, Ref: "B2:C3"},
		{SheetID: 3, Ref: "*"},
		{SheetID: -2, Ref: "Pivot"},
	}
	once := MergeDirtyRanges(in)
	twice := MergeDirtyRanges(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second merge changed result: %+v vs %+v", once, twice)
	}
}
