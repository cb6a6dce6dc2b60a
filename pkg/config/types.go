package config

import (
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration that serializes as a human-readable string
// ("30s", "16ms") in TOML.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the persistent spool configuration stored as config.toml
// in the .spool/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Engine  EngineConfig `toml:"engine"`
	Batch   BatchConfig  `toml:"batch"`
	Dedupe  DedupeConfig `toml:"dedupe"`
	Server  ServerConfig `toml:"server"`
	Client  ClientConfig `toml:"client"`
	Source  SourceConfig `toml:"source"`
}

// EngineConfig holds the performance governor thresholds and session timers.
type EngineConfig struct {
	WarningThreshold   uint     `toml:"warning_threshold,omitempty"`
	MaxChunks          uint     `toml:"max_chunks,omitempty"`
	EmergencyThreshold uint     `toml:"emergency_threshold,omitempty"`
	HardLimit          uint     `toml:"hard_limit,omitempty"`
	MinChunkSize       uint     `toml:"min_chunk_size,omitempty"`
	LargeChunkSize     uint     `toml:"large_chunk_size,omitempty"`
	MaxBytes           int64    `toml:"max_bytes,omitempty"`
	MaxProcessingTime  Duration `toml:"max_processing_time,omitempty"`
	HealthInterval     Duration `toml:"health_interval,omitempty"`
}

// BatchConfig holds the adaptive debounce timing knobs.
type BatchConfig struct {
	DebounceFast Duration `toml:"debounce_fast,omitempty"`
	DebounceSlow Duration `toml:"debounce_slow,omitempty"`
	ImmediateGap Duration `toml:"immediate_gap,omitempty"`
}

// DedupeConfig holds the duplicate-suppression window settings.
type DedupeConfig struct {
	TTL      Duration `toml:"ttl,omitempty"`
	Capacity uint     `toml:"capacity,omitempty"`
}

// ServerConfig holds the ingest server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// spool server (e.g. spool status). Values are full URLs.
type ClientConfig struct {
	ServerTarget string `toml:"server_target,omitempty"`
}

// SourceConfig holds settings for reading an upstream chunk stream.
type SourceConfig struct {
	// Upstream is the URL of an SSE chunk stream to consume. Empty means
	// read from stdin.
	Upstream string `toml:"upstream,omitempty"`

	// TeePath, when set, receives a verbatim copy of the raw upstream
	// stream bytes.
	TeePath string `toml:"tee_path,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) uint, set func(c *Config, v uint)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid unsigned integer %q: %w", v, err)
			}
			set(c, uint(n))
			return nil
		},
	}
}

func durationKey(get func(c *Config) Duration, set func(c *Config, v Duration)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return get(c).String()
		},
		set: func(c *Config, v string) error {
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return err
			}
			set(c, d)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"engine.warning_threshold": uintKey(
		func(c *Config) uint { return c.Engine.WarningThreshold },
		func(c *Config, v uint) { c.Engine.WarningThreshold = v },
	),
	"engine.max_chunks": uintKey(
		func(c *Config) uint { return c.Engine.MaxChunks },
		func(c *Config, v uint) { c.Engine.MaxChunks = v },
	),
	"engine.emergency_threshold": uintKey(
		func(c *Config) uint { return c.Engine.EmergencyThreshold },
		func(c *Config, v uint) { c.Engine.EmergencyThreshold = v },
	),
	"engine.hard_limit": uintKey(
		func(c *Config) uint { return c.Engine.HardLimit },
		func(c *Config, v uint) { c.Engine.HardLimit = v },
	),
	"engine.min_chunk_size": uintKey(
		func(c *Config) uint { return c.Engine.MinChunkSize },
		func(c *Config, v uint) { c.Engine.MinChunkSize = v },
	),
	"engine.large_chunk_size": uintKey(
		func(c *Config) uint { return c.Engine.LargeChunkSize },
		func(c *Config, v uint) { c.Engine.LargeChunkSize = v },
	),
	"engine.max_bytes": {
		get: func(c *Config) string {
			if c.Engine.MaxBytes == 0 {
				return ""
			}
			return strconv.FormatInt(c.Engine.MaxBytes, 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.max_bytes: %w", err)
			}
			c.Engine.MaxBytes = n
			return nil
		},
	},
	"engine.max_processing_time": durationKey(
		func(c *Config) Duration { return c.Engine.MaxProcessingTime },
		func(c *Config, v Duration) { c.Engine.MaxProcessingTime = v },
	),
	"engine.health_interval": durationKey(
		func(c *Config) Duration { return c.Engine.HealthInterval },
		func(c *Config, v Duration) { c.Engine.HealthInterval = v },
	),
	"batch.debounce_fast": durationKey(
		func(c *Config) Duration { return c.Batch.DebounceFast },
		func(c *Config, v Duration) { c.Batch.DebounceFast = v },
	),
	"batch.debounce_slow": durationKey(
		func(c *Config) Duration { return c.Batch.DebounceSlow },
		func(c *Config, v Duration) { c.Batch.DebounceSlow = v },
	),
	"batch.immediate_gap": durationKey(
		func(c *Config) Duration { return c.Batch.ImmediateGap },
		func(c *Config, v Duration) { c.Batch.ImmediateGap = v },
	),
	"dedupe.ttl": durationKey(
		func(c *Config) Duration { return c.Dedupe.TTL },
		func(c *Config, v Duration) { c.Dedupe.TTL = v },
	),
	"dedupe.capacity": uintKey(
		func(c *Config) uint { return c.Dedupe.Capacity },
		func(c *Config, v uint) { c.Dedupe.Capacity = v },
	),
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"client.server_target": {
		get: func(c *Config) string { return c.Client.ServerTarget },
		set: func(c *Config, v string) error { c.Client.ServerTarget = v; return nil },
	},
	"source.upstream": {
		get: func(c *Config) string { return c.Source.Upstream },
		set: func(c *Config, v string) error { c.Source.Upstream = v; return nil },
	},
	"source.tee_path": {
		get: func(c *Config) string { return c.Source.TeePath },
		set: func(c *Config, v string) error { c.Source.TeePath = v; return nil },
	},
}
