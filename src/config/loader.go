package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrConfigExists is returned by Init when the target file is present.
var ErrConfigExists = errors.New("configuration file already exists")

// LoadedSource is one configuration layer that contributed to a Config.
type LoadedSource struct {
	Source ConfigSource
	Path   string
}

// Loader handles loading and layering configurations from multiple sources
type Loader struct {
	fs         afero.Fs
	precedence ConfigPrecedence
	validator  *Validator
	getenv     func(string) string
	sources    []LoadedSource
}

// NewLoader creates a new configuration loader reading through fs
func NewLoader(fs afero.Fs, precedence ConfigPrecedence) *Loader {
	return &Loader{
		fs:         fs,
		precedence: precedence,
		validator:  NewValidator(),
		getenv:     os.Getenv,
	}
}

// Load reads every layer in order of precedence, applies environment
// overrides and validates the result. Missing files are skipped.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()
	l.sources = []LoadedSource{{Source: SourceDefault}}

	layers := []struct {
		path   string
		source ConfigSource
	}{
		{l.precedence.SystemConfig, SourceSystem},
		{l.precedence.UserConfig, SourceUser},
		{l.precedence.ProjectConfig, SourceProject},
		{l.precedence.LocalConfig, SourceLocal},
	}

	for _, layer := range layers {
		if layer.path == "" {
			continue
		}
		err := l.loadInto(config, layer.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s config from %s: %w", layer.source, layer.path, err)
		}
		l.sources = append(l.sources, LoadedSource{Source: layer.source, Path: layer.path})
	}

	if l.precedence.EnvironmentPrefix != "" {
		if l.applyEnvironmentOverrides(config) {
			l.sources = append(l.sources, LoadedSource{Source: SourceEnvironment})
		}
	}

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Sources lists the layers used by the last Load.
func (l *Loader) Sources() []LoadedSource {
	return l.sources
}

// loadInto decodes the file at path over config; keys the file does not
// mention keep their current values.
func (l *Loader) loadInto(config *Config, path string) error {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// SaveFile saves configuration to a file
func (l *Loader) SaveFile(config *Config, path string) error {
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// the file may hold an API key
	if err := afero.WriteFile(l.fs, path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Init writes the default configuration to path. An existing file is only
// replaced when force is set.
func (l *Loader) Init(path string, force bool) error {
	if !force {
		exists, err := afero.Exists(l.fs, path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	return l.SaveFile(DefaultConfig(), path)
}

// applyEnvironmentOverrides applies environment variable overrides to
// config and reports whether any was set.
func (l *Loader) applyEnvironmentOverrides(config *Config) bool {
	prefix := l.precedence.EnvironmentPrefix + "_"
	applied := false
	str := func(name string, dst *string) {
		if v := l.getenv(prefix + name); v != "" {
			*dst = v
			applied = true
		}
	}

	str("BASE_URL", &config.Server.BaseURL)
	str("API_KEY", &config.Server.APIKey)
	str("VOICE_PATH", &config.Server.VoicePath)
	str("CAPTURE_MODE", &config.Audio.Mode)
	str("INPUT_DEVICE", &config.Audio.InputDevice)
	str("DATABASE", &config.Storage.DatabasePath)
	str("LOG_LEVEL", &config.Log.Level)

	if v := l.getenv(prefix + "CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ConnectTimeout = Duration(d)
			applied = true
		}
	}
	if v := l.getenv(prefix + "TOOLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Conversation.ToolsEnabled = b
			applied = true
		}
	}
	if v := l.getenv(prefix + "STORAGE_DISABLED"); strings.EqualFold(v, "true") {
		config.Storage.Disabled = true
		applied = true
	}

	return applied
}
