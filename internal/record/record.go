// Package record turns decoder output lines into observation records.
//
// A decoder line is semicolon-delimited. The first field is a sequence
// counter and is discarded; the rest map onto the fixed column schema in
// Headers. Lines that are not data (banners, the decoder's own header
// echo, partial output) are reported with ok == false and never raise.
package record

import (
	"strconv"
	"strings"
)

// HeaderMarker identifies the decoder's header/echo line.
const HeaderMarker = "CellId"

// MinSeparators is the minimum number of ';' a data line carries.
const MinSeparators = 6

// NumFields is the number of columns in a Record.
const NumFields = 11

// Headers are the column labels, in schema order.
var Headers = []string{
	"TMSI-1", "TMSI-2", "IMSI", "Country", "Brand", "Operator",
	"MCC", "MNC", "LAC", "CellId", "Timestamp",
}

// Record is one decoded observation. All values are kept as the text the
// decoder produced; numeric columns are coerced only by export targets.
type Record struct {
	TMSI1     string
	TMSI2     string
	IMSI      string
	Country   string
	Brand     string
	Operator  string
	MCC       string
	MNC       string
	LAC       string
	CellID    string
	Timestamp string
}

// IsData reports whether line is record-bearing.
func IsData(line string) bool {
	if line == "" || strings.Contains(line, HeaderMarker) {
		return false
	}
	return strings.Count(line, ";") >= MinSeparators
}

// Parse converts one decoder line into a Record. Missing trailing fields
// are left empty and extra trailing fields are ignored.
func Parse(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !IsData(line) {
		return Record{}, false
	}
	fields := strings.Split(line, ";")
	return FromFields(fields[1:]), true
}

// ParseAll runs Parse over every line of text and returns the records in
// order. It re-derives a session's table from its raw log.
func ParseAll(text string) []Record {
	var out []Record
	for _, line := range strings.Split(text, "\n") {
		if rec, ok := Parse(line); ok {
			out = append(out, rec)
		}
	}
	return out
}

// FromFields maps values positionally onto the schema.
func FromFields(values []string) Record {
	var f [NumFields]string
	copy(f[:], values)
	return Record{
		TMSI1:     f[0],
		TMSI2:     f[1],
		IMSI:      f[2],
		Country:   f[3],
		Brand:     f[4],
		Operator:  f[5],
		MCC:       f[6],
		MNC:       f[7],
		LAC:       f[8],
		CellID:    f[9],
		Timestamp: f[10],
	}
}

// Fields returns the values in schema order.
func (r Record) Fields() []string {
	return []string{
		r.TMSI1, r.TMSI2, r.IMSI, r.Country, r.Brand, r.Operator,
		r.MCC, r.MNC, r.LAC, r.CellID, r.Timestamp,
	}
}

func (r Record) MCCValue() (int64, bool) { return Int(r.MCC) }
func (r Record) MNCValue() (int64, bool) { return Int(r.MNC) }
func (r Record) LACValue() (int64, bool) { return Int(r.LAC) }

// CellValue parses the cell identifier. Decoders print it either in
// decimal or as a 0x-prefixed hex number.
func (r Record) CellValue() (int64, bool) { return Int(r.CellID) }

// Int parses a numeric cell. Empty or malformed text yields ok == false.
func Int(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
