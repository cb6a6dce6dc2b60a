package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spoolworks/spool/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .spool/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in a stable
// order matching the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"engine.warning_threshold",
		"engine.max_chunks",
		"engine.emergency_threshold",
		"engine.hard_limit",
		"engine.min_chunk_size",
		"engine.large_chunk_size",
		"engine.max_bytes",
		"engine.max_processing_time",
		"engine.health_interval",
		"batch.debounce_fast",
		"batch.debounce_slow",
		"batch.immediate_gap",
		"dedupe.ttl",
		"dedupe.capacity",
		"server.listen",
		"client.server_target",
		"source.upstream",
		"source.tee_path",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that the ordered list missed.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .spool/
// directory. If the file does not exist, returns NewDefaultConfig() so
// callers always receive a fully-populated Config. Fields explicitly set in
// the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Engine.WarningThreshold == 0 {
		cfg.Engine.WarningThreshold = defaults.Engine.WarningThreshold
	}
	if cfg.Engine.MaxChunks == 0 {
		cfg.Engine.MaxChunks = defaults.Engine.MaxChunks
	}
	if cfg.Engine.EmergencyThreshold == 0 {
		cfg.Engine.EmergencyThreshold = defaults.Engine.EmergencyThreshold
	}
	if cfg.Engine.HardLimit == 0 {
		cfg.Engine.HardLimit = defaults.Engine.HardLimit
	}
	if cfg.Engine.MinChunkSize == 0 {
		cfg.Engine.MinChunkSize = defaults.Engine.MinChunkSize
	}
	if cfg.Engine.LargeChunkSize == 0 {
		cfg.Engine.LargeChunkSize = defaults.Engine.LargeChunkSize
	}
	if cfg.Engine.MaxBytes == 0 {
		cfg.Engine.MaxBytes = defaults.Engine.MaxBytes
	}
	if cfg.Engine.MaxProcessingTime == 0 {
		cfg.Engine.MaxProcessingTime = defaults.Engine.MaxProcessingTime
	}
	if cfg.Engine.HealthInterval == 0 {
		cfg.Engine.HealthInterval = defaults.Engine.HealthInterval
	}

	if cfg.Batch.DebounceFast == 0 {
		cfg.Batch.DebounceFast = defaults.Batch.DebounceFast
	}
	if cfg.Batch.DebounceSlow == 0 {
		cfg.Batch.DebounceSlow = defaults.Batch.DebounceSlow
	}
	if cfg.Batch.ImmediateGap == 0 {
		cfg.Batch.ImmediateGap = defaults.Batch.ImmediateGap
	}

	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = defaults.Dedupe.TTL
	}
	if cfg.Dedupe.Capacity == 0 {
		cfg.Dedupe.Capacity = defaults.Dedupe.Capacity
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Client.ServerTarget == "" {
		cfg.Client.ServerTarget = defaults.Client.ServerTarget
	}
}

// SaveConfig persists the configuration to config.toml in the target .spool/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
