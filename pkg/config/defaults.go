package config

import "time"

const (
	defaultWarningThreshold   = 30
	defaultMaxChunks          = 50
	defaultEmergencyThreshold = 80
	defaultHardLimit          = 100
	defaultMinChunkSize       = 10
	defaultLargeChunkSize     = 200
	defaultMaxBytes           = 512 << 10
	defaultMaxProcessingTime  = 30 * time.Second
	defaultHealthInterval     = 30 * time.Second

	defaultDebounceFast = 16 * time.Millisecond
	defaultDebounceSlow = 50 * time.Millisecond
	defaultImmediateGap = 100 * time.Millisecond

	defaultDedupeTTL      = 5 * time.Second
	defaultDedupeCapacity = 1000

	defaultServerListen = ":8090"
	defaultServerTarget = "http://localhost:8090"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Engine: EngineConfig{
			WarningThreshold:   defaultWarningThreshold,
			MaxChunks:          defaultMaxChunks,
			EmergencyThreshold: defaultEmergencyThreshold,
			HardLimit:          defaultHardLimit,
			MinChunkSize:       defaultMinChunkSize,
			LargeChunkSize:     defaultLargeChunkSize,
			MaxBytes:           defaultMaxBytes,
			MaxProcessingTime:  Duration(defaultMaxProcessingTime),
			HealthInterval:     Duration(defaultHealthInterval),
		},
		Batch: BatchConfig{
			DebounceFast: Duration(defaultDebounceFast),
			DebounceSlow: Duration(defaultDebounceSlow),
			ImmediateGap: Duration(defaultImmediateGap),
		},
		Dedupe: DedupeConfig{
			TTL:      Duration(defaultDedupeTTL),
			Capacity: defaultDedupeCapacity,
		},
		Server: ServerConfig{
			Listen: defaultServerListen,
		},
		Client: ClientConfig{
			ServerTarget: defaultServerTarget,
		},
	}
}
