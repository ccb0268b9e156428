package export

import (
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaDonald/imsimap/internal/record"
)

var sampleLines = []string{
	"12;111;222;310170000000001;USA;Verizon;Verizon;310;170;12345;0x1A2B;2024-01-01 10:00 CET",
	`13;333;;262011234567890;Germany;Telekom;"Telekom, DE";262;01;4711;6699;2024-01-01 10:01 CET`,
}

func sampleRecords(t *testing.T) []record.Record {
	t.Helper()
	var out []record.Record
	for _, line := range sampleLines {
		rec, ok := record.Parse(line)
		require.True(t, ok)
		out = append(out, rec)
	}
	return out
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"out.csv":       CSV,
		"OUT.TXT":       TXT,
		"dir/a.sqlite":  SQLite,
		"dir/a.sqlite3": SQLite,
	}
	for path, want := range cases {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("out.xlsx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExport_CSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, ExportFile(sampleRecords(t), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, record.Headers, rows[0])
	for i, line := range sampleLines {
		assert.Equal(t, strings.Split(line, ";")[1:], rows[i+1])
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "TMSI-1,TMSI-2,IMSI,Country,Brand,Operator,MCC,MNC,LAC,CellId,Timestamp\r\n"))
}

func TestExport_TXTRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.txt")
	require.NoError(t, ExportFile(sampleRecords(t), path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(record.Headers, "\t"), lines[0])
	for i, line := range sampleLines {
		assert.Equal(t, strings.Split(line, ";")[1:], strings.Split(lines[i+1], "\t"))
	}
}

func TestExport_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is much longer than the new export"), 0644))

	require.NoError(t, ExportFile(nil, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(record.Headers, ",")+"\r\n", string(raw))
}

func TestExport_SQLiteEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	require.NoError(t, ExportFile(nil, path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM observations").Scan(&count))
	assert.Equal(t, 0, count)

	rows, err := db.Query("SELECT * FROM observations")
	require.NoError(t, err)
	cols, err := rows.Columns()
	require.NoError(t, err)
	rows.Close()
	assert.Equal(t, []string{"stamp", "tmsi1", "tmsi2", "imsi", "imsicountry", "imsibrand", "imsioperator", "mcc", "mnc", "lac", "cell"}, cols)
}

func TestExport_SQLiteRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.sqlite")
	records := sampleRecords(t)
	records = append(records, record.Record{IMSI: "001010000000001", MCC: "n/a", LAC: ""})
	require.NoError(t, Export(records, record.Headers, SQLite, path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT stamp, tmsi2, imsi, imsioperator, mcc, mnc, lac, cell FROM observations ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		stamp, tmsi2, imsi, operator sql.NullString
		mcc, mnc, lac, cell          sql.NullInt64
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.stamp, &r.tmsi2, &r.imsi, &r.operator, &r.mcc, &r.mnc, &r.lac, &r.cell))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 3)

	assert.Equal(t, "2024-01-01 10:00 CET", got[0].stamp.String)
	assert.Equal(t, int64(310), got[0].mcc.Int64)
	assert.Equal(t, int64(170), got[0].mnc.Int64)
	assert.Equal(t, int64(12345), got[0].lac.Int64)
	assert.Equal(t, int64(0x1A2B), got[0].cell.Int64)

	assert.False(t, got[1].tmsi2.Valid, "empty text cell is NULL")
	assert.Equal(t, `"Telekom, DE"`, got[1].operator.String)
	assert.Equal(t, int64(1), got[1].mnc.Int64)

	assert.Equal(t, "001010000000001", got[2].imsi.String)
	assert.False(t, got[2].mcc.Valid, "malformed numeric cell is NULL")
	assert.False(t, got[2].lac.Valid, "absent numeric cell is NULL")
	assert.False(t, got[2].cell.Valid)
}

func TestExport_SQLiteAppendsToExistingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.sqlite")
	require.NoError(t, ExportFile(sampleRecords(t), path))
	require.NoError(t, ExportFile(sampleRecords(t), path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM observations").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestExport_UnwritableDestination(t *testing.T) {
	for _, name := range []string{"out.csv", "out.txt", "out.sqlite"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing-dir", name)
			err := ExportFile(sampleRecords(t), path)

			var ioErr *IOError
			require.ErrorAs(t, err, &ioErr)
			assert.Equal(t, path, ioErr.Path)
			assert.Error(t, ioErr.Unwrap())

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "no file may exist under the requested name")
		})
	}
}

func TestExport_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	headers := append([]string{}, record.Headers...)
	headers[0], headers[1] = headers[1], headers[0]

	err := Export(nil, headers, CSV, path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExport_UnknownFormat(t *testing.T) {
	err := Export(nil, nil, Format("xml"), filepath.Join(t.TempDir(), "out.xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
