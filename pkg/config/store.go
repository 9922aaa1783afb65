package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Store reads and writes the YAML configuration file.
type Store struct {
	fs       afero.Fs
	path     string
	explicit bool
}

// DefaultPath returns ~/.siphon/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".siphon", "config.yaml"), nil
}

// NewStore creates a store for path on fs. If path is empty, defaults to
// ~/.siphon/config.yaml, which is allowed not to exist. A nil fs uses the
// OS filesystem.
func NewStore(fs afero.Fs, path string) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{fs: fs, path: expandHome(path), explicit: explicit}, nil
}

// Path returns the path of the config file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file over DefaultConfig and validates the result. Keys
// missing from the file keep their defaults.
func (s *Store) Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(s.fs, s.path)
	switch {
	case os.IsNotExist(err) && !s.explicit:
		// No config file yet, use defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
		}
	}

	cfg.Download.Directory = expandHome(cfg.Download.Directory)
	cfg.Download.Executable = expandHome(cfg.Download.Executable)
	cfg.Logging.Directory = expandHome(cfg.Logging.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create temp file for atomic write
	file, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		s.fs.Remove(tempPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := file.Close(); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := s.fs.Rename(tempPath, s.path); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
