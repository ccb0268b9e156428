// Package export writes a capture table to external files.
//
// Every target carries the fixed column schema of package record. Writes
// are all-or-nothing: csv and txt files are rendered into a temporary file
// that replaces the destination only when complete, and sqlite rows are
// inserted inside one transaction.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MaDonald/imsimap/internal/record"
)

type Format string

const (
	CSV    Format = "csv"
	TXT    Format = "txt"
	SQLite Format = "sqlite"
)

var (
	ErrUnknownFormat  = errors.New("unknown export format")
	ErrSchemaMismatch = errors.New("headers do not match the record schema")
)

// IOError reports a destination that could not be written. No file is
// left under the requested name when it is returned.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".txt":
		return TXT, nil
	case ".sqlite", ".sqlite3", ".db":
		return SQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Export writes records to path. headers may be nil, otherwise it must be
// exactly record.Headers.
func Export(records []record.Record, headers []string, format Format, path string) error {
	if headers == nil {
		headers = record.Headers
	}
	if !slices.Equal(headers, record.Headers) {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, headers)
	}

	var err error
	switch format {
	case CSV:
		err = writeDelimited(path, ',', headers, records)
	case TXT:
		err = writeDelimited(path, '\t', headers, records)
	case SQLite:
		err = writeSQLite(path, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// ExportFile infers the format from path.
func ExportFile(records []record.Record, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return Export(records, nil, format, path)
}
