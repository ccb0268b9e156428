package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"IMSIMAP_INTERPRETER", "IMSIMAP_SCRIPT", "IMSIMAP_WORK_DIR",
		"IMSIMAP_FREQUENCY", "IMSIMAP_GAIN", "IMSIMAP_PPM",
		"IMSIMAP_TIME_ZONE", "IMSIMAP_CHECKPOINT", "IMSIMAP_STOP_TIMEOUT",
		"IMSIMAP_DATA_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultInterpreter, cfg.Decoder.Interpreter)
	assert.Equal(t, DefaultScript, cfg.Decoder.Script)
	assert.Equal(t, float64(DefaultFrequency), cfg.Capture.Frequency)
	assert.Equal(t, float64(DefaultGain), cfg.Capture.Gain)
	assert.Equal(t, DefaultTimeZone, cfg.Capture.TimeZone)
	assert.Empty(t, cfg.Capture.Checkpoint, "checkpoints should be disabled by default")
	assert.Equal(t, DefaultDataDir, cfg.Storage.DataDir)
}

func TestConfigDir_HomeOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", tmpDir)

	assert.Equal(t, tmpDir, ConfigDir())
	assert.Equal(t, filepath.Join(tmpDir, "config.json"), ConfigPath())
}

func TestConfigDir_DefaultsUnderHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", "")
	t.Setenv("HOME", tmpDir)

	assert.Equal(t, filepath.Join(tmpDir, ".imsimap"), ConfigDir())
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("IMSIMAP_HOME", t.TempDir())
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultScript, cfg.Decoder.Script)
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", tmpDir)
	clearEnv(t)

	testCfg := map[string]any{
		"decoder": map[string]any{
			"interpreter": "python3.11",
			"workDir":     "/opt/imsi",
		},
		"capture": map[string]any{
			"frequency":  935000000,
			"gain":       40,
			"checkpoint": "@every 1m",
		},
	}
	data, err := json.Marshal(testCfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"), data, 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "python3.11", cfg.Decoder.Interpreter)
	assert.Equal(t, DefaultScript, cfg.Decoder.Script)
	assert.Equal(t, float64(935000000), cfg.Capture.Frequency)
	assert.Equal(t, float64(40), cfg.Capture.Gain)
	assert.Equal(t, "@every 1m", cfg.Capture.Checkpoint)
	assert.Equal(t, DefaultTimeZone, cfg.Capture.TimeZone)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", tmpDir)
	clearEnv(t)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{invalid"), 0644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("IMSIMAP_HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("IMSIMAP_FREQUENCY", "950M")
	t.Setenv("IMSIMAP_GAIN", "33.5")
	t.Setenv("IMSIMAP_PPM", "-2")
	t.Setenv("IMSIMAP_STOP_TIMEOUT", "2s")
	t.Setenv("IMSIMAP_DATA_DIR", "/var/lib/imsimap")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 950e6, cfg.Capture.Frequency)
	assert.Equal(t, 33.5, cfg.Capture.Gain)
	assert.Equal(t, float64(-2), cfg.Capture.PPM)
	assert.Equal(t, "2s", cfg.Capture.StopTimeout)
	assert.Equal(t, "/var/lib/imsimap", cfg.Storage.DataDir)
}

func TestLoadConfig_BadEnvIgnored(t *testing.T) {
	t.Setenv("IMSIMAP_HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("IMSIMAP_GAIN", "loud")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultGain), cfg.Capture.Gain)
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", filepath.Join(tmpDir, "nested"))
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.Capture.Gain = 12
	require.NoError(t, SaveConfig(cfg))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, float64(12), loaded.Capture.Gain)
}

func TestDecoderArgv(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"python3", "-u", "simple_IMSI-catcher.py"}, cfg.DecoderArgv())
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	cfg.Capture.TimeZone = "Nowhere/Special"
	_, err = cfg.Location()
	assert.Error(t, err, "unknown zone should fail")
}

func TestStopTimeoutDuration(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.StopTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	cfg.Capture.StopTimeout = "0s"
	d, err = cfg.StopTimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	for _, bad := range []string{"soon", "-1s"} {
		cfg.Capture.StopTimeout = bad
		_, err := cfg.StopTimeoutDuration()
		assert.Error(t, err, "timeout %q", bad)
	}
}

func TestDataPath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("logs", "scan_data.json"), cfg.DataPath("scan_data.json"))

	cfg.Decoder.WorkDir = "/opt/imsi"
	assert.Equal(t, "/opt/imsi/logs/scan_data.json", cfg.DataPath("scan_data.json"))

	cfg.Storage.DataDir = "/data"
	assert.Equal(t, "/data/scan_data.json", cfg.DataPath("scan_data.json"))
}

func TestPresetsPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("IMSIMAP_HOME", tmpDir)

	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(tmpDir, DefaultPresetsFile), cfg.PresetsPath())

	cfg.Storage.PresetsFile = "/etc/imsimap/presets.yaml"
	assert.Equal(t, "/etc/imsimap/presets.yaml", cfg.PresetsPath())
}

func TestValidateFrequency(t *testing.T) {
	for _, hz := range []float64{800e6, 943203831, 1990e6} {
		assert.NoError(t, ValidateFrequency(hz), "frequency %v", hz)
	}
	for _, hz := range []float64{0, 799999999, 1990000001, 2.4e9} {
		assert.ErrorIs(t, ValidateFrequency(hz), ErrFrequencyRange, "frequency %v", hz)
	}
}
