// Package session persists capture runs.
//
// All sessions live in one JSON document keyed by the run's timestamp.
// The document is always read, modified and written whole; see Writer for
// the single-writer funnel that serializes saves inside one process.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// KeyLayout renders session keys at minute resolution with the zone
// abbreviation, e.g. "2024-01-01 10:00 CET".
const KeyLayout = "2006-01-02 15:04 MST"

const (
	NoLogs   = "No logs available."
	Unknown  = "Unknown"
	fieldFrq = "frequency"
	fieldPPM = "ppm"
	fieldGn  = "gain"
	fieldLog = "logs"
)

// Key returns the session key for t in loc. Two runs started within the
// same minute share a key and the later save replaces the earlier one.
func Key(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(KeyLayout)
}

// Params are the capture parameters a session was recorded with.
type Params struct {
	Frequency float64
	Gain      float64
	PPM       float64
}

// Session is one stored capture run. The parameter fields hold whatever
// the document contains (numbers decode as json.Number) so that a
// document written by another tool round-trips unchanged; use
// ReplayParams to obtain typed values.
type Session struct {
	Frequency any
	PPM       any
	Gain      any
	Logs      string

	// extra keeps members this package does not know about.
	extra map[string]json.RawMessage
}

func New(p Params, logs string) Session {
	return Session{
		Frequency: p.Frequency,
		PPM:       p.PPM,
		Gain:      p.Gain,
		Logs:      logs,
	}
}

// Label is the listing line for a session.
func Label(key string, s Session) string {
	return fmt.Sprintf("Scan at %s on %s Hz", key, FormatValue(s.Frequency))
}

// LogsOrDefault returns the raw log, or NoLogs when it is empty.
func (s Session) LogsOrDefault() string {
	if s.Logs == "" {
		return NoLogs
	}
	return s.Logs
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+4)
	for k, v := range s.extra {
		out[k] = v
	}
	if s.Frequency != nil {
		out[fieldFrq] = s.Frequency
	}
	if s.PPM != nil {
		out[fieldPPM] = s.PPM
	}
	if s.Gain != nil {
		out[fieldGn] = s.Gain
	}
	out[fieldLog] = s.Logs
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Session{}
	for k, v := range raw {
		var err error
		switch k {
		case fieldFrq:
			s.Frequency, err = decodeValue(v)
		case fieldPPM:
			s.PPM, err = decodeValue(v)
		case fieldGn:
			s.Gain, err = decodeValue(v)
		case fieldLog:
			var logs any
			if logs, err = decodeValue(v); err == nil {
				if str, ok := logs.(string); ok {
					s.Logs = str
				} else if logs != nil {
					s.setExtra(k, v)
				}
			}
		default:
			s.setExtra(k, v)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
	}
	return nil
}

func (s *Session) setExtra(k string, v json.RawMessage) {
	if s.extra == nil {
		s.extra = make(map[string]json.RawMessage)
	}
	s.extra[k] = v
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// FormatValue renders a stored parameter for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return Unknown
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
