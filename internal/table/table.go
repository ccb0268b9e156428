// Package table holds the records of the capture run in progress.
//
// LiveTable is append-only while a run is active and is cleared only when
// the next run starts. Reads are safe from any goroutine; appends come from
// the single capture worker so insertion order is preserved.
package table

import (
	"sync"

	"github.com/MaDonald/imsimap/internal/record"
)

type LiveTable struct {
	mu   sync.RWMutex
	rows []record.Record
}

func New() *LiveTable {
	return &LiveTable{}
}

// Append adds rec as the last row and returns its index.
func (t *LiveTable) Append(rec record.Record) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, rec)
	return len(t.rows) - 1
}

func (t *LiveTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Row returns the record at index i.
func (t *LiveTable) Row(i int) (record.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.rows) {
		return record.Record{}, false
	}
	return t.rows[i], true
}

// Rows returns a copy of all rows in insertion order.
func (t *LiveTable) Rows() []record.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]record.Record, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *LiveTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
}
