package config

import (
	"github.com/spf13/viper"

	"github.com/spoolworks/spool/pkg/batch"
	"github.com/spoolworks/spool/pkg/governor"
)

// LoadFromViper assembles a Config from a resolved viper instance, so that
// the flag > env > file > default precedence chain feeds one struct.
func LoadFromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Engine: EngineConfig{
			WarningThreshold:   v.GetUint("engine.warning_threshold"),
			MaxChunks:          v.GetUint("engine.max_chunks"),
			EmergencyThreshold: v.GetUint("engine.emergency_threshold"),
			HardLimit:          v.GetUint("engine.hard_limit"),
			MinChunkSize:       v.GetUint("engine.min_chunk_size"),
			LargeChunkSize:     v.GetUint("engine.large_chunk_size"),
			MaxBytes:           v.GetInt64("engine.max_bytes"),
			MaxProcessingTime:  Duration(v.GetDuration("engine.max_processing_time")),
			HealthInterval:     Duration(v.GetDuration("engine.health_interval")),
		},
		Batch: BatchConfig{
			DebounceFast: Duration(v.GetDuration("batch.debounce_fast")),
			DebounceSlow: Duration(v.GetDuration("batch.debounce_slow")),
			ImmediateGap: Duration(v.GetDuration("batch.immediate_gap")),
		},
		Dedupe: DedupeConfig{
			TTL:      Duration(v.GetDuration("dedupe.ttl")),
			Capacity: v.GetUint("dedupe.capacity"),
		},
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		Client: ClientConfig{
			ServerTarget: v.GetString("client.server_target"),
		},
		Source: SourceConfig{
			Upstream: v.GetString("source.upstream"),
			TeePath:  v.GetString("source.tee_path"),
		},
	}
}

// GovernorLimits converts the engine section into governor thresholds.
func (c *Config) GovernorLimits() governor.Limits {
	return governor.Limits{
		WarningThreshold:   int(c.Engine.WarningThreshold),
		MaxChunks:          int(c.Engine.MaxChunks),
		EmergencyThreshold: int(c.Engine.EmergencyThreshold),
		HardLimit:          int(c.Engine.HardLimit),
		MinChunkSize:       int(c.Engine.MinChunkSize),
		LargeChunkSize:     int(c.Engine.LargeChunkSize),
		MaxBytes:           c.Engine.MaxBytes,
		MaxProcessingTime:  c.Engine.MaxProcessingTime.Std(),
	}
}

// Batching converts the batch section into buffer timing knobs.
func (c *Config) Batching() batch.Config {
	return batch.Config{
		ImmediateGap:     c.Batch.ImmediateGap.Std(),
		DebounceFast:     c.Batch.DebounceFast.Std(),
		DebounceSlow:     c.Batch.DebounceSlow.Std(),
		WarningThreshold: int(c.Engine.WarningThreshold),
	}
}
