package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/spoolworks/spool/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SPOOL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SPOOL_SERVER_LISTEN, SPOOL_ENGINE_HARD_LIMIT, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: SPOOL_SERVER_LISTEN, SPOOL_DEDUPE_TTL, etc.
	v.SetEnvPrefix("SPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Engine
	v.SetDefault("engine.warning_threshold", d.Engine.WarningThreshold)
	v.SetDefault("engine.max_chunks", d.Engine.MaxChunks)
	v.SetDefault("engine.emergency_threshold", d.Engine.EmergencyThreshold)
	v.SetDefault("engine.hard_limit", d.Engine.HardLimit)
	v.SetDefault("engine.min_chunk_size", d.Engine.MinChunkSize)
	v.SetDefault("engine.large_chunk_size", d.Engine.LargeChunkSize)
	v.SetDefault("engine.max_bytes", d.Engine.MaxBytes)
	v.SetDefault("engine.max_processing_time", d.Engine.MaxProcessingTime.String())
	v.SetDefault("engine.health_interval", d.Engine.HealthInterval.String())

	// Batch
	v.SetDefault("batch.debounce_fast", d.Batch.DebounceFast.String())
	v.SetDefault("batch.debounce_slow", d.Batch.DebounceSlow.String())
	v.SetDefault("batch.immediate_gap", d.Batch.ImmediateGap.String())

	// Dedupe
	v.SetDefault("dedupe.ttl", d.Dedupe.TTL.String())
	v.SetDefault("dedupe.capacity", d.Dedupe.Capacity)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)

	// Client
	v.SetDefault("client.server_target", d.Client.ServerTarget)

	// Source
	v.SetDefault("source.upstream", d.Source.Upstream)
	v.SetDefault("source.tee_path", d.Source.TeePath)
}
