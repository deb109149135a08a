package google

import (
	"fmt"
	"strings"
)

// a1Range qualifies cells with a quoted sheet name, e.g. 'My Sheet'!A:E.
func a1Range(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

// idColumn flattens a single-column values matrix. Empty rows become "".
func idColumn(values [][]interface{}) []string {
	out := make([]string, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return out
}

// hasHeader reports whether the first cell is the ID header.
func hasHeader(ids []string) bool {
	return len(ids) > 0 && strings.EqualFold(ids[0], "ID")
}

// findRowByID returns the 0-based row index holding id, skipping the
// header, or -1.
func findRowByID(ids []string, id string) int {
	if id == "" {
		return -1
	}
	start := 0
	if hasHeader(ids) {
		start = 1
	}
	for i := start; i < len(ids); i++ {
		if ids[i] == id {
			return i
		}
	}
	return -1
}

// purchaseIDs returns the non-empty ids below the header.
func purchaseIDs(ids []string) []string {
	start := 0
	if hasHeader(ids) {
		start = 1
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids[start:] {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
