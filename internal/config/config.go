// Package config loads and saves the archiver settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/mcdonaldj/archiver/internal/formats"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Filter modes accepted by FilterMode.
const (
	FilterBlacklist = "blacklist"
	FilterWhitelist = "whitelist"
)

// Mode is a directory permission mode written as an octal string ("0755").
type Mode os.FileMode

// FileMode converts m for use with the filesystem.
func (m Mode) FileMode() os.FileMode {
	return os.FileMode(m)
}

func (m Mode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

// UnmarshalYAML parses an octal mode. Both "0755" and 0755 are accepted.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: mode must be a scalar", value.Line)
	}
	n, err := strconv.ParseUint(value.Value, 8, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid mode %q: %w", value.Line, value.Value, err)
	}
	if n > 0o777 {
		return fmt.Errorf("line %d: mode %q out of range", value.Line, value.Value)
	}
	*m = Mode(n)
	return nil
}

// MarshalYAML writes the mode as a quoted octal string.
func (m Mode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// Config holds the user settings. A zero ArchiveDirMode or ExtractDirMode
// defers to DefaultDirMode.
type Config struct {
	Format         string `yaml:"format"`
	ArchiveDirMode Mode   `yaml:"archive_dir_mode"`
	ExtractDirMode Mode   `yaml:"extract_dir_mode"`
	DefaultDirMode Mode   `yaml:"default_dir_mode"`
	FilterMode     string `yaml:"filter_mode"`
	Verbose        bool   `yaml:"verbose"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() (*Config, error) {
	return &Config{
		Format:         string(formats.Zip),
		ArchiveDirMode: Mode(ports.DefaultArchiveDirMode),
		ExtractDirMode: Mode(ports.DefaultArchiveDirMode),
		DefaultDirMode: Mode(ports.DefaultDirMode),
		FilterMode:     FilterBlacklist,
	}, nil
}

// ConfigPath returns ~/.archiver/config.yaml.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidConfig, "cannot determine home directory")
	}
	return filepath.Join(home, ".archiver", "config.yaml"), nil
}

// Load reads the config file from ConfigPath, falling back to defaults when
// the file does not exist.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the config file at path. Fields missing from
// the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown formats and filter modes.
func (c *Config) Validate() error {
	if c.Format == "" {
		return errors.New(errors.CodeInvalidConfig, "format must not be empty")
	}
	if _, err := formats.NewRegistry().Lookup(c.Format); err != nil {
		return err
	}
	switch c.FilterMode {
	case FilterBlacklist, FilterWhitelist:
	default:
		return errors.Newf(errors.CodeInvalidConfig, "unknown filter mode %q", c.FilterMode)
	}
	return nil
}

// Save writes the config to ConfigPath.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
