// Package config reads and initializes rawdog's YAML settings file.
//
// The file is re-read on every access; there is no in-memory cache, so edits
// made by the user between two calls are picked up immediately.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Recognized keys of the settings file.
const (
	KeyLLMBaseURL        = "llm_base_url"
	KeyLLMCustomProvider = "llm_custom_provider"
	KeyLLMModel          = "llm_model"
	KeyLLMTemperature    = "llm_temperature"
)

// Keys lists the recognized keys in the order they are written to disk.
var Keys = []string{
	KeyLLMBaseURL,
	KeyLLMCustomProvider,
	KeyLLMModel,
	KeyLLMTemperature,
}

// linkFile publishes the default config; replaced in tests.
var linkFile = os.Link

// ErrNotMapping is returned when the settings file holds YAML that is not a mapping.
var ErrNotMapping = errors.New("config file is not a YAML mapping")

// PersistedConfig is the settings file content, returned verbatim.
// Keys outside Keys are passed through untouched.
type PersistedConfig map[string]any

// DefaultConfig returns the config written on first use: every recognized key set to null.
func DefaultConfig() PersistedConfig {
	cfg := PersistedConfig{}
	for _, key := range Keys {
		cfg[key] = nil
	}
	return cfg
}

// Store loads the settings file at a fixed path.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store for the settings file at path.
// The logger is optional (can be nil).
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the settings file content. If the file does not exist yet, the
// default config is written first and returned.
func (s *Store) Load() (PersistedConfig, error) {
	cfg, found, err := s.TryLoad()
	if err != nil {
		return nil, err
	}
	if found {
		return cfg, nil
	}

	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}

	cfg, found, err = s.TryLoad()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("config file %s disappeared after initialization", s.path)
	}
	return cfg, nil
}

// TryLoad reads the settings file without creating it. The bool result is
// false when the file does not exist.
func (s *Store) TryLoad() (PersistedConfig, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read config file: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, false, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}

	cfg := PersistedConfig{}
	// An empty document decodes to a zero node
	if node.Kind == 0 || len(node.Content) == 0 {
		return cfg, true, nil
	}

	doc := node.Content[0]
	if doc.Kind == yaml.ScalarNode && doc.Tag == "!!null" {
		return cfg, true, nil
	}
	if doc.Kind != yaml.MappingNode {
		return nil, false, fmt.Errorf("%w: %s", ErrNotMapping, s.path)
	}

	if err := doc.Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("failed to decode config file %s: %w", s.path, err)
	}
	return cfg, true, nil
}

// EnsureInitialized writes the default config if no settings file exists.
// When several processes race on first use only one of them creates the
// file and the others keep the winner's content.
func (s *Store) EnsureInitialized() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	// Write a complete file next to the target, then link it into place.
	// Linking fails if the target exists, so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := linkFile(tmp.Name(), s.path); err != nil {
		if errors.Is(err, os.ErrExist) {
			s.logger.Debug("config file created concurrently", zap.String("path", s.path))
			return nil
		}
		// Some mounts do not support hard links; create the file exclusively instead
		s.logger.Debug("linking config file failed, creating it directly", zap.Error(err))
		return s.createExclusive(data)
	}

	s.logger.Info("created default config", zap.String("path", s.path))
	return nil
}

func (s *Store) createExclusive(data []byte) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	s.logger.Info("created default config", zap.String("path", s.path))
	return nil
}

// Get returns the value stored under key, or nil when the key is null or absent.
func (s *Store) Get(key string) (any, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return cfg[key], nil
}

// LLMBaseURL returns the configured base URL of the LLM endpoint.
func (s *Store) LLMBaseURL() (any, error) {
	return s.Get(KeyLLMBaseURL)
}

// LLMModel returns the configured model name.
func (s *Store) LLMModel() (any, error) {
	return s.Get(KeyLLMModel)
}

// LLMCustomProvider returns the configured custom provider.
func (s *Store) LLMCustomProvider() (any, error) {
	return s.Get(KeyLLMCustomProvider)
}

// LLMTemperature returns the configured sampling temperature.
func (s *Store) LLMTemperature() (any, error) {
	return s.Get(KeyLLMTemperature)
}
