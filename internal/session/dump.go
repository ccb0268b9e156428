package session

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/MaDonald/imsimap/internal/record"
)

// DumpFileName is the flat-text dump name for a session key.
func DumpFileName(key string) string {
	return "exported_scan_data_" + key + ".txt"
}

// Dump writes the flat-text report of a session: its parameters, the raw
// log and the table rows, tab-separated.
func Dump(w io.Writer, key string, s Session, records []record.Record) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Timestamp: %s\n", key)
	fmt.Fprintf(bw, "Frequency: %s\n", FormatValue(s.Frequency))
	fmt.Fprintf(bw, "PPM: %s\n", FormatValue(s.PPM))
	fmt.Fprintf(bw, "Gain: %s\n", FormatValue(s.Gain))
	bw.WriteString("Logs:\n")
	bw.WriteString(s.LogsOrDefault())
	bw.WriteString("\nCaptured IMSIs:\n")
	for _, rec := range records {
		bw.WriteString(strings.Join(rec.Fields(), "\t"))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// DumpFile writes the report into dir and returns its path. The file
// appears only once it is complete.
func DumpFile(dir, key string, s Session, records []record.Record) (string, error) {
	path := filepath.Join(dir, DumpFileName(key))
	var buf bytes.Buffer
	if err := Dump(&buf, key, s, records); err != nil {
		return "", &IOError{Op: "render dump", Path: path, Err: err}
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", &IOError{Op: "create dir", Path: path, Err: err}
		}
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", &IOError{Op: "write dump", Path: path, Err: err}
	}
	return path, nil
}
