package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/MaDonald/imsimap/internal/record"
)

func writeDelimited(path string, sep rune, headers []string, records []record.Record) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer pf.Cleanup()

	if sep == ',' {
		err = writeCSV(pf, headers, records)
	} else {
		err = writeTabbed(pf, headers, records)
	}
	if err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace destination: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, headers []string, records []record.Record) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec.Fields()); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// The tab format is not quoted; values are written as the decoder
// produced them.
func writeTabbed(w io.Writer, headers []string, records []record.Record) error {
	if _, err := io.WriteString(w, strings.Join(headers, "\t")+"\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		if _, err := io.WriteString(w, strings.Join(rec.Fields(), "\t")+"\n"); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	return nil
}
