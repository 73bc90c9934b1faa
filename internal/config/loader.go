package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "SCANSTREAM_"

const displayScansVar = "DISPLAY_SCANS"

// Loader assembles a Config from its sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures the Loader.
type Option func(*Loader)

// WithConfigFile adds a YAML file as a source. The file must exist.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// NewLoader creates a configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads all sources and returns the validated Config. Later sources
// override earlier ones: defaults, then the file, then the environment.
func (l *Loader) Load() (*Config, error) {
	defaults := map[string]any{
		"application_id": DefaultApplicationID,
		"recording_id":   "",
		"prefix":         DefaultPrefix,
		"chunk_size":     DefaultChunkSize,
	}
	if err := l.k.Load(mapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	// SCANSTREAM_CHUNK_SIZE -> chunk_size. Keys are flat, so underscores
	// survive; only the prefix goes and the name is lowercased.
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The allow-list comes from the environment alone, never from file
	// keys, and restricts the moment the variable exists, even when
	// nothing in it parses.
	if raw, ok := os.LookupEnv(l.envPrefix + displayScansVar); ok {
		cfg.DisplayScans = ParseScanList(raw)
	}

	if cfg.RecordingID == "" {
		cfg.RecordingID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var errReadBytesUnsupported = errors.New("map provider has no byte form")

// mapProvider feeds a literal map into koanf, used for defaults.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesUnsupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
