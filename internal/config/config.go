package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
)

const (
	DefaultInterpreter = "python3"
	DefaultScript      = "simple_IMSI-catcher.py"
	DefaultFrequency   = 943203831
	DefaultGain        = 50
	DefaultPPM         = 0
	DefaultTimeZone    = "Europe/Berlin"
	DefaultStopTimeout = "5s"
	DefaultDataDir     = "logs"
	DefaultPresetsFile = "frequencies.yaml"

	// Tuner range of the capture hardware, in Hz.
	MinFrequency = 800e6
	MaxFrequency = 1990e6
)

var ErrFrequencyRange = errors.New("frequency out of range")

type Config struct {
	Decoder DecoderConfig `json:"decoder"`
	Capture CaptureConfig `json:"capture"`
	Storage StorageConfig `json:"storage"`
}

type DecoderConfig struct {
	Interpreter string `json:"interpreter"`
	Script      string `json:"script"`
	WorkDir     string `json:"workDir,omitempty"`
}

type CaptureConfig struct {
	Frequency   float64 `json:"frequency"`
	Gain        float64 `json:"gain"`
	PPM         float64 `json:"ppm"`
	TimeZone    string  `json:"timeZone"`
	Checkpoint  string  `json:"checkpoint,omitempty"` // cron spec, empty disables
	StopTimeout string  `json:"stopTimeout"`
}

type StorageConfig struct {
	DataDir     string `json:"dataDir"`
	PresetsFile string `json:"presetsFile"`
}

func DefaultConfig() *Config {
	return &Config{
		Decoder: DecoderConfig{
			Interpreter: DefaultInterpreter,
			Script:      DefaultScript,
		},
		Capture: CaptureConfig{
			Frequency:   DefaultFrequency,
			Gain:        DefaultGain,
			PPM:         DefaultPPM,
			TimeZone:    DefaultTimeZone,
			StopTimeout: DefaultStopTimeout,
		},
		Storage: StorageConfig{
			DataDir:     DefaultDataDir,
			PresetsFile: DefaultPresetsFile,
		},
	}
}

func ConfigDir() string {
	if dir := os.Getenv("IMSIMAP_HOME"); dir != "" {
		return dir
	}
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".imsimap")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("IMSIMAP_INTERPRETER"); v != "" {
		cfg.Decoder.Interpreter = v
	}
	if v := os.Getenv("IMSIMAP_SCRIPT"); v != "" {
		cfg.Decoder.Script = v
	}
	if v := os.Getenv("IMSIMAP_WORK_DIR"); v != "" {
		cfg.Decoder.WorkDir = v
	}
	if v := os.Getenv("IMSIMAP_FREQUENCY"); v != "" {
		if parsed, err := ParseFrequency(v); err == nil {
			cfg.Capture.Frequency = parsed
		}
	}
	if v := os.Getenv("IMSIMAP_GAIN"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Capture.Gain = parsed
		}
	}
	if v := os.Getenv("IMSIMAP_PPM"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Capture.PPM = parsed
		}
	}
	if v := os.Getenv("IMSIMAP_TIME_ZONE"); v != "" {
		cfg.Capture.TimeZone = v
	}
	if v := os.Getenv("IMSIMAP_CHECKPOINT"); v != "" {
		cfg.Capture.Checkpoint = v
	}
	if v := os.Getenv("IMSIMAP_STOP_TIMEOUT"); v != "" {
		cfg.Capture.StopTimeout = v
	}
	if v := os.Getenv("IMSIMAP_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if cfg.Decoder.Interpreter == "" {
		cfg.Decoder.Interpreter = DefaultInterpreter
	}
	if cfg.Decoder.Script == "" {
		cfg.Decoder.Script = DefaultScript
	}
	if cfg.Capture.TimeZone == "" {
		cfg.Capture.TimeZone = DefaultTimeZone
	}
	if cfg.Capture.StopTimeout == "" {
		cfg.Capture.StopTimeout = DefaultStopTimeout
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.PresetsFile == "" {
		cfg.Storage.PresetsFile = DefaultPresetsFile
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return renameio.WriteFile(ConfigPath(), data, 0644)
}

// DecoderArgv is the command line of the decoder child. Output is
// unbuffered so lines arrive as they are decoded.
func (c *Config) DecoderArgv() []string {
	return []string{c.Decoder.Interpreter, "-u", c.Decoder.Script}
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Capture.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.Capture.TimeZone, err)
	}
	return loc, nil
}

// StopTimeoutDuration returns the grace period between SIGTERM and
// SIGKILL. Zero means wait without bound.
func (c *Config) StopTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Capture.StopTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse stop timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse stop timeout: negative duration %s", d)
	}
	return d, nil
}

// DataPath resolves name inside the data directory. Relative data
// directories are taken relative to the decoder work dir.
func (c *Config) DataPath(name string) string {
	dir := c.Storage.DataDir
	if !filepath.IsAbs(dir) && c.Decoder.WorkDir != "" {
		dir = filepath.Join(c.Decoder.WorkDir, dir)
	}
	return filepath.Join(dir, name)
}

func (c *Config) PresetsPath() string {
	if filepath.IsAbs(c.Storage.PresetsFile) {
		return c.Storage.PresetsFile
	}
	return filepath.Join(ConfigDir(), c.Storage.PresetsFile)
}

func ValidateFrequency(hz float64) error {
	if hz < MinFrequency || hz > MaxFrequency {
		return fmt.Errorf("%w: %.0f Hz not in [%.0f, %.0f]", ErrFrequencyRange, hz, float64(MinFrequency), float64(MaxFrequency))
	}
	return nil
}
