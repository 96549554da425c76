// Package config loads the parley.json configuration file
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the configuration file parley looks for
const FileName = "parley.json"

// Storage backends
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config represents the parley.json configuration file
type Config struct {
	Version     string      `json:"version"`
	DataDir     string      `json:"data_dir"`
	Listen      string      `json:"listen"`
	Storage     Storage     `json:"storage"`
	AnswerQueue AnswerQueue `json:"answer_queue"`
	Ledger      Ledger      `json:"ledger"`
	Persistence Persistence `json:"persistence"`
}

// Storage selects the durable key-value backend
type Storage struct {
	Backend string `json:"backend"`
}

// AnswerQueue holds the queue's initial flags for a fresh data dir; a
// persisted snapshot overrides them on restart
type AnswerQueue struct {
	Enabled bool `json:"enabled"`
	Paused  bool `json:"paused"`
}

// Ledger bounds the session ledger and the durable history
type Ledger struct {
	SessionMax int `json:"session_max"`
	HistoryMax int `json:"history_max"`
}

// Persistence tunes the journal and the processing indicator
type Persistence struct {
	DebounceMs         int `json:"debounce_ms"`
	ProcessingTimeoutS int `json:"processing_timeout_s"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version: "1.0",
		DataDir: ".parley",
		Listen:  "127.0.0.1:7601",
		Storage: Storage{
			Backend: BackendFile,
		},
		AnswerQueue: AnswerQueue{
			Enabled: false,
			Paused:  false,
		},
		Ledger: Ledger{
			SessionMax: 200,
			HistoryMax: 500,
		},
		Persistence: Persistence{
			DebounceMs:         500,
			ProcessingTimeoutS: 300,
		},
	}
}

// Validate checks the configuration and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.DataDir == "" {
		return fmt.Errorf("configuration error: missing required field 'data_dir'\n\nHint: Point data_dir at a writable directory:\n  \"data_dir\": \".parley\"")
	}

	if c.Listen == "" {
		return fmt.Errorf("configuration error: missing required field 'listen'\n\nHint: Specify a listen address:\n  \"listen\": \"127.0.0.1:7601\"")
	}

	switch c.Storage.Backend {
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("configuration error: invalid 'storage.backend' value: %q\n\nHint: Supported backends are \"file\" and \"badger\":\n  \"storage\": {\n    \"backend\": \"file\"\n  }", c.Storage.Backend)
	}

	if c.Ledger.SessionMax < 0 || c.Ledger.HistoryMax < 0 {
		return fmt.Errorf("configuration error: ledger bounds must not be negative")
	}

	if c.Persistence.DebounceMs < 0 {
		return fmt.Errorf("configuration error: 'persistence.debounce_ms' must not be negative")
	}

	return nil
}

// Debounce returns the journal debounce as a duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Persistence.DebounceMs) * time.Millisecond
}

// ProcessingTimeout returns the processing indicator timeout as a duration
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Persistence.ProcessingTimeoutS) * time.Second
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Find walks from startDir toward the filesystem root looking for a
// parley.json. Returns the file's path, or "" when none exists.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
