package table

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaDonald/imsimap/internal/record"
)

func TestLiveTable_AppendAndRow(t *testing.T) {
	tbl := New()
	require.Zero(t, tbl.Len())

	assert.Equal(t, 0, tbl.Append(record.Record{IMSI: "001"}))
	assert.Equal(t, 1, tbl.Append(record.Record{IMSI: "002"}))

	row, ok := tbl.Row(1)
	require.True(t, ok)
	assert.Equal(t, "002", row.IMSI)

	_, ok = tbl.Row(2)
	assert.False(t, ok, "Row(2) should be out of range")
	_, ok = tbl.Row(-1)
	assert.False(t, ok, "Row(-1) should be out of range")
}

func TestLiveTable_RowsIsSnapshot(t *testing.T) {
	tbl := New()
	tbl.Append(record.Record{IMSI: "001"})

	rows := tbl.Rows()
	rows[0].IMSI = "mutated"
	tbl.Append(record.Record{IMSI: "002"})

	assert.Len(t, rows, 1)
	row, _ := tbl.Row(0)
	assert.Equal(t, "001", row.IMSI, "stored row changed through snapshot")
}

func TestLiveTable_Clear(t *testing.T) {
	tbl := New()
	tbl.Append(record.Record{IMSI: "001"})
	tbl.Clear()

	assert.Zero(t, tbl.Len())
	assert.Empty(t, tbl.Rows())
}

func TestLiveTable_ConcurrentReadersKeepOrder(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = tbl.Rows()
				_ = tbl.Len()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		tbl.Append(record.Record{IMSI: fmt.Sprint(i)})
	}
	wg.Wait()

	rows := tbl.Rows()
	require.Len(t, rows, 100)
	for i, row := range rows {
		require.Equal(t, fmt.Sprint(i), row.IMSI, "row %d", i)
	}
}
