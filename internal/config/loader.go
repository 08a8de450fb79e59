package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

// DefaultPath returns the config file location.
// The directory is resolved in this order:
//  1. CORAL_AUTOPROF_CONFIG environment variable.
//  2. User home directory (~/.coral-autoprof).
//  3. /tmp/coral-autoprof-fallback for containers without a home directory.
func DefaultPath() string {
	if dir := os.Getenv(constants.EnvPrefix + "CONFIG"); dir != "" {
		return filepath.Join(dir, constants.ConfigFile)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, constants.DefaultDir, constants.ConfigFile)
	}
	return filepath.Join("/tmp/coral-autoprof-fallback", constants.ConfigFile)
}

// DefaultJournalPath returns the session journal location next to the
// default config file.
func DefaultJournalPath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), constants.DefaultJournalFile)
}

// Load reads the configuration at path (DefaultPath when empty), applies
// environment overrides and validates the result.
// A missing file yields the defaults with environment overrides applied.
// Values absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	//nolint:gosec // G304: Path is supplied by the operator.
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	//nolint:gosec // G306: Config carries no secrets.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
