package presets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/MaDonald/imsimap/internal/config"
)

var ErrDuplicate = errors.New("frequency preset already saved")

type Preset struct {
	Name      string  `yaml:"name,omitempty"`
	Frequency float64 `yaml:"frequency"`
}

// Label is the name, or the frequency in Hz when the preset is unnamed.
func (p Preset) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return strconv.FormatFloat(p.Frequency, 'f', -1, 64)
}

type document struct {
	Presets []Preset `yaml:"presets"`
}

// Load returns the saved presets in file order. A missing file holds none.
func Load(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	return doc.Presets, nil
}

func Save(path string, presets []Preset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create presets dir: %w", err)
	}
	data, err := yaml.Marshal(document{Presets: presets})
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	return renameio.WriteFile(path, data, 0644)
}

// Add validates p against the tuner range and appends it to the file.
func Add(path string, p Preset) ([]Preset, error) {
	if err := config.ValidateFrequency(p.Frequency); err != nil {
		return nil, err
	}
	existing, err := Load(path)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Frequency == p.Frequency {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, e.Label())
		}
	}
	updated := append(existing, p)
	if err := Save(path, updated); err != nil {
		return nil, err
	}
	return updated, nil
}
