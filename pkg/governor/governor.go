// Package governor tracks per-session processing counters and classifies
// them against escalating thresholds. The engine consults the governor
// before every chunk; the verdict decides whether the chunk is processed,
// the session is completed early, or the whole thing is aborted.
package governor

import "time"

// Default thresholds.
const (
	DefaultWarningThreshold   = 30
	DefaultMaxChunks          = 50
	DefaultEmergencyThreshold = 80
	DefaultHardLimit          = 100
	DefaultMinChunkSize       = 10
	DefaultLargeChunkSize     = 200
	DefaultMaxBytes           = 512 << 10
	DefaultMaxProcessingTime  = 30 * time.Second
)

// Verdict is the governor's pre-chunk decision, in escalating severity.
type Verdict int

const (
	// VerdictOK means process normally.
	VerdictOK Verdict = iota

	// VerdictWarn means process, but emit a warning signal. Issued once
	// per session.
	VerdictWarn

	// VerdictComplete forces an early, successful completion using the
	// content buffered so far.
	VerdictComplete

	// VerdictEmergency forces completion outside the normal finishing
	// path; issued when the session kept receiving chunks well past the
	// early-completion threshold.
	VerdictEmergency

	// VerdictAbort kills the session and reports failure to the consumer.
	VerdictAbort
)

// String returns a short name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictWarn:
		return "warn"
	case VerdictComplete:
		return "complete"
	case VerdictEmergency:
		return "emergency"
	case VerdictAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Limits are the configurable thresholds. Zero values fall back to the
// defaults.
type Limits struct {
	WarningThreshold   int
	MaxChunks          int
	EmergencyThreshold int
	HardLimit          int
	MinChunkSize       int
	LargeChunkSize     int
	MaxBytes           int64
	MaxProcessingTime  time.Duration
}

// withDefaults fills in zero fields.
func (l Limits) withDefaults() Limits {
	if l.WarningThreshold <= 0 {
		l.WarningThreshold = DefaultWarningThreshold
	}
	if l.MaxChunks <= 0 {
		l.MaxChunks = DefaultMaxChunks
	}
	if l.EmergencyThreshold <= 0 {
		l.EmergencyThreshold = DefaultEmergencyThreshold
	}
	if l.HardLimit <= 0 {
		l.HardLimit = DefaultHardLimit
	}
	if l.MinChunkSize <= 0 {
		l.MinChunkSize = DefaultMinChunkSize
	}
	if l.LargeChunkSize <= 0 {
		l.LargeChunkSize = DefaultLargeChunkSize
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxProcessingTime <= 0 {
		l.MaxProcessingTime = DefaultMaxProcessingTime
	}
	return l
}

// Stats are the per-session counters. Reset exactly once, on session start.
type Stats struct {
	TotalProcessed  int       `json:"total_processed"`
	TotalBytes      int64     `json:"total_bytes"`
	SmallChunkCount int       `json:"small_chunk_count"`
	LargeChunkCount int       `json:"large_chunk_count"`
	BatchCount      int       `json:"batch_count"`
	LastProcessTime time.Time `json:"last_process_time"`
}

// Governor classifies session load against the configured limits.
type Governor struct {
	limits Limits
	stats  Stats
	warned bool
	now    func() time.Time
}

// New creates a Governor with the given limits.
func New(limits Limits) *Governor {
	return &Governor{
		limits: limits.withDefaults(),
		now:    time.Now,
	}
}

// Limits returns the effective limits.
func (g *Governor) Limits() Limits {
	return g.limits
}

// Check classifies the current counters, in priority order, before a chunk
// is processed.
func (g *Governor) Check() Verdict {
	switch {
	case g.stats.TotalProcessed >= g.limits.HardLimit:
		return VerdictAbort
	case g.stats.TotalProcessed >= g.limits.EmergencyThreshold:
		return VerdictEmergency
	case g.stats.TotalProcessed >= g.limits.MaxChunks:
		return VerdictComplete
	case g.stats.TotalBytes >= g.limits.MaxBytes:
		return VerdictComplete
	case g.stats.TotalProcessed >= g.limits.WarningThreshold && !g.warned:
		g.warned = true
		return VerdictWarn
	default:
		return VerdictOK
	}
}

// Record accounts for one processed chunk of the given content length.
func (g *Governor) Record(contentLen int) {
	g.stats.TotalProcessed++
	g.stats.TotalBytes += int64(contentLen)
	g.stats.LastProcessTime = g.now()

	switch {
	case contentLen < g.limits.MinChunkSize:
		g.stats.SmallChunkCount++
	case contentLen > g.limits.LargeChunkSize:
		g.stats.LargeChunkCount++
	}
}

// RecordBatch accounts for one buffer flush delivered to the consumer.
func (g *Governor) RecordBatch() {
	g.stats.BatchCount++
}

// Stats returns a copy of the current counters.
func (g *Governor) Stats() Stats {
	return g.stats
}

// Reset clears all counters for a new session.
func (g *Governor) Reset() {
	g.stats = Stats{}
	g.warned = false
}
