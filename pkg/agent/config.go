package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"

	"github.com/padbridge/padbridge/pad"
)

// Config is loaded from agent.yml once at startup; it points to the
// location of the user-driven configuration files. Live reload only
// applies to user-driven configuration files (devices.yml).
type Config struct {
	DataDir      string `json:"dataDir"`
	DeviceConfig string `json:"deviceConfig"`

	// PollInterval overrides the read cycle period. Zero keeps the
	// built-in default.
	PollInterval Duration `json:"pollInterval,omitempty"`

	// Methods disables individual input methods ("joydev": false).
	// Absent entries stay enabled.
	Methods map[string]bool `json:"methods,omitempty"`
}

// LoadConfig reads agent.yml, falling back to def when the file does
// not exist. File values start from def, so absent keys keep their
// defaults.
func LoadConfig(path string, def Config) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	config := def
	if err := yaml.Unmarshal(data, &config); err != nil {
		return def, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return config, nil
}

// MethodEnabled reports whether the processor for a method should be
// constructed at all.
func (c Config) MethodEnabled(m pad.InputMethod) bool {
	enabled, ok := c.Methods[m.String()]
	return !ok || enabled
}

// Duration is a time.Duration that marshals as its string form
// ("8ms"), so intervals in agent.yml read naturally.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
