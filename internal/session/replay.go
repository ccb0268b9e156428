package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errMissing = errors.New("missing")

// ConversionError reports a stored parameter that is absent or not a
// number.
type ConversionError struct {
	Key   string
	Field string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	if errors.Is(e.Err, errMissing) {
		return fmt.Sprintf("session %q: %s is missing", e.Key, e.Field)
	}
	return fmt.Sprintf("session %q: cannot convert %s %q to a number: %v", e.Key, e.Field, FormatValue(e.Value), e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ReplayParams extracts the capture parameters of a stored session. It
// reads only; applying the parameters and starting a new run is the
// caller's job, so replaying the same key twice yields two new runs.
func ReplayParams(key string, s Session) (Params, error) {
	var p Params
	var err error
	if p.Frequency, err = number(key, fieldFrq, s.Frequency); err != nil {
		return Params{}, err
	}
	if p.Gain, err = number(key, fieldGn, s.Gain); err != nil {
		return Params{}, err
	}
	if p.PPM, err = number(key, fieldPPM, s.PPM); err != nil {
		return Params{}, err
	}
	return p, nil
}

func number(key, field string, v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case nil:
		err = errMissing
	case float64:
		f = x
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = errors.New("not a finite number")
	}
	if err != nil {
		return 0, &ConversionError{Key: key, Field: field, Value: v, Err: err}
	}
	return f, nil
}
