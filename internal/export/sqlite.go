package export

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/MaDonald/imsimap/internal/record"
)

const observationsSchema = `CREATE TABLE IF NOT EXISTS observations(
	stamp datetime,
	tmsi1 text,
	tmsi2 text,
	imsi text,
	imsicountry text,
	imsibrand text,
	imsioperator text,
	mcc integer,
	mnc integer,
	lac integer,
	cell integer
)`

const insertObservation = `INSERT INTO observations
	(stamp, tmsi1, tmsi2, imsi, imsicountry, imsibrand, imsioperator, mcc, mnc, lac, cell)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// writeSQLite appends records to the observations table of the database
// at path, creating both as needed. Rows are inserted in one transaction;
// a database file created by a failed export is removed.
func writeSQLite(path string, records []record.Record) (err error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sqlite: %w", cerr)
		}
		if err != nil && !existed {
			_ = os.Remove(path)
			_ = os.Remove(path + "-journal")
		}
	}()

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("sqlite pragma: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := insertAll(tx, records); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertAll(tx *sql.Tx, records []record.Record) error {
	if _, err := tx.Exec(observationsSchema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	stmt, err := tx.Prepare(insertObservation)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(observationArgs(rec)...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

// observationArgs orders a record for insertObservation. Empty text cells
// and numeric cells that do not parse become NULL.
func observationArgs(rec record.Record) []any {
	return []any{
		nullText(rec.Timestamp),
		nullText(rec.TMSI1),
		nullText(rec.TMSI2),
		nullText(rec.IMSI),
		nullText(rec.Country),
		nullText(rec.Brand),
		nullText(rec.Operator),
		nullInt(rec.MCCValue()),
		nullInt(rec.MNCValue()),
		nullInt(rec.LACValue()),
		nullInt(rec.CellValue()),
	}
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64, ok bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: ok}
}
