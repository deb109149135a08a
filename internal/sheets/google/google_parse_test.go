package google

import (
	"slices"
	"testing"
)

func TestA1Range(t *testing.T) {
	tests := []struct {
		sheet, cells, want string
	}{
		{"Purchases", "A:E", "'Purchases'!A:E"},
		{"My Sheet", "A1:E1", "'My Sheet'!A1:E1"},
		{"Bob's", "A:A", "'Bob''s'!A:A"},
	}
	for _, tt := range tests {
		if got := a1Range(tt.sheet, tt.cells); got != tt.want {
			t.Errorf("a1Range(%q, %q) = %q, want %q", tt.sheet, tt.cells, got, tt.want)
		}
	}
}

func TestFindRowByID(t *testing.T) {
	ids := idColumn([][]interface{}{{"ID"}, {"a"}, {}, {" b "}, {"ID"}})

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"first data row", "a", 1},
		{"trimmed cell", "b", 3},
		{"header text is not a match", "ID", 4},
		{"missing", "zzz", -1},
		{"empty id", "", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findRowByID(ids, tt.id); got != tt.want {
				t.Errorf("findRowByID(%q) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestFindRowByID_NoHeader(t *testing.T) {
	ids := []string{"a", "b"}
	if got := findRowByID(ids, "a"); got != 0 {
		t.Fatalf("expected row 0, got %d", got)
	}
}

func TestPurchaseIDs(t *testing.T) {
	got := purchaseIDs([]string{"ID", "a", "", "b"})
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("unexpected ids %v", got)
	}
	if got := purchaseIDs(nil); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}
