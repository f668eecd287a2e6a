package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the global "trimtab" configuration section.
type Settings struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// StatePath is the SQLite database holding cached secrets and run
	// history.
	StatePath string `yaml:"state_path"`

	// MetadataDir points at a local quality-definition metadata
	// directory used by plugins during rendering. Empty disables
	// metadata rendering.
	MetadataDir string `yaml:"metadata_dir"`

	// RequestTimeout bounds every single HTTP request made during a
	// run. Retries and scheduling are the caller's concern.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// DefaultSettings returns the settings applied when the trimtab
// section is absent or partial.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:       "info",
		StatePath:      "trimtab.db",
		RequestTimeout: Duration(30 * time.Second),
	}
}

// Duration decodes Go duration strings ("30s", "1m30s") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
