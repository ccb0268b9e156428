package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

var ErrProfileNotFound = errors.New("capture profile not found")

// Profile is a saved set of capture parameters:
//
//	[params]
//	frequency = 943.2M
//	gain      = 50
//	ppm       = 0
type Profile struct {
	Frequency float64
	Gain      float64
	PPM       float64
}

type profileFile struct {
	Params struct {
		Frequency string  `ini:"frequency"`
		Gain      float64 `ini:"gain"`
		PPM       float64 `ini:"ppm"`
	} `ini:"params"`
}

// LoadProfile reads path, starting from the values of c so that keys
// missing from the file keep the configured defaults.
func (c *Config) LoadProfile(path string) (Profile, error) {
	var raw profileFile
	raw.Params.Frequency = strconv.FormatFloat(c.Capture.Frequency, 'f', -1, 64)
	raw.Params.Gain = c.Capture.Gain
	raw.Params.PPM = c.Capture.PPM

	if err := ini.MapToWithMapper(&raw, ini.TitleUnderscore, path); err != nil {
		if os.IsNotExist(err) {
			return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, path)
		}
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}

	freq, err := ParseFrequency(raw.Params.Frequency)
	if err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return Profile{Frequency: freq, Gain: raw.Params.Gain, PPM: raw.Params.PPM}, nil
}

// ParseFrequency accepts plain Hz or a K/M suffixed value ("943.2M").
func ParseFrequency(s string) (float64, error) {
	val := strings.ToUpper(strings.TrimSpace(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(val, "K"):
		val, mult = strings.TrimSuffix(val, "K"), 1e3
	case strings.HasSuffix(val, "M"):
		val, mult = strings.TrimSuffix(val, "M"), 1e6
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}
	return math.Round(f * mult), nil
}
