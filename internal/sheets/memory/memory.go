// Package memory is an in-process mirror used by tests and dry runs of
// the mirror worker.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"pricememory/internal/core"
	"pricememory/internal/sheets"
)

var _ sheets.Mirror = (*Mirror)(nil)

type Mirror struct {
	mu   sync.Mutex
	loc  *time.Location
	rows [][]string

	// FailWith, when set, is returned by every call.
	FailWith error
}

func New(loc *time.Location) *Mirror {
	return &Mirror{loc: loc}
}

// AppendPurchase stores the row and returns a synthetic row reference.
func (m *Mirror) AppendPurchase(_ context.Context, p core.Purchase) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	if i := m.indexLocked(p.ID); i >= 0 {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	m.rows = append(m.rows, sheets.Row(p, m.loc))
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) DeletePurchase(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return false, m.FailWith
	}
	i := m.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	m.rows = slices.Delete(m.rows, i, i+1)
	return true, nil
}

func (m *Mirror) ListPurchaseIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	ids := make([]string, 0, len(m.rows))
	for _, row := range m.rows {
		ids = append(ids, row[0])
	}
	return ids, nil
}

// Rows returns a copy of the mirrored rows in insertion order.
func (m *Mirror) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.rows))
	for i, row := range m.rows {
		out[i] = slices.Clone(row)
	}
	return out
}

func (m *Mirror) indexLocked(id string) int {
	for i, row := range m.rows {
		if row[0] == id {
			return i
		}
	}
	return -1
}
