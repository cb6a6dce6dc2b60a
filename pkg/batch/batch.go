// Package batch accumulates cleaned content and decides when to flush it to
// the consumer: immediately on semantic triggers, or after a load-adaptive
// debounce delay. The goal is to bound UI update frequency without adding
// unbounded latency.
package batch

import (
	"regexp"
	"strings"
	"time"
)

// Default timing knobs.
const (
	// DefaultImmediateGap is the quiet period after which the next chunk
	// flushes immediately instead of debouncing.
	DefaultImmediateGap = 100 * time.Millisecond

	// DefaultDebounceSlow is the debounce delay under normal load.
	DefaultDebounceSlow = 50 * time.Millisecond

	// DefaultDebounceFast is the debounce delay once the session is past
	// the warning threshold.
	DefaultDebounceFast = 16 * time.Millisecond
)

// significantPatterns mark content that should reach the consumer without
// delay: starts of statements, blocks, and code fences.
var significantPatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`(?m)^\s*(func|def|class|if|for|while|return|import|package|const|var|type)\b`),
	regexp.MustCompile(`[{(]\s*$`),
}

// Decision tells the caller what to do after an append.
type Decision int

const (
	// FlushNow means flush synchronously and cancel any pending debounce
	// timer.
	FlushNow Decision = iota

	// Debounce means arm (or re-arm) the debounce timer with the returned
	// delay.
	Debounce
)

// Config are the buffer's timing knobs.
type Config struct {
	ImmediateGap     time.Duration
	DebounceFast     time.Duration
	DebounceSlow     time.Duration
	WarningThreshold int
}

func (c Config) withDefaults() Config {
	if c.ImmediateGap <= 0 {
		c.ImmediateGap = DefaultImmediateGap
	}
	if c.DebounceFast <= 0 {
		c.DebounceFast = DefaultDebounceFast
	}
	if c.DebounceSlow <= 0 {
		c.DebounceSlow = DefaultDebounceSlow
	}
	return c
}

// Buffer is the adaptive batching buffer. It is append-only during a
// session and reset only on session start.
//
// Flushes are idempotent and keyed by a monotonically increasing sequence:
// the immediate-flush path and a late-firing debounce timer can both ask to
// flush the same appended content, and only the first wins. This closes the
// double-append race between the two paths.
type Buffer struct {
	cfg Config

	content  strings.Builder
	reported int // offset into content already delivered to the consumer

	seq        uint64
	flushedSeq uint64

	lastAppend time.Time
	armed      bool
}

// New creates a Buffer.
func New(cfg Config) *Buffer {
	return &Buffer{cfg: cfg.withDefaults()}
}

// Append adds cleaned content and returns the flush decision. When the
// decision is Debounce, delay holds the adaptive timer duration and the
// returned sequence identifies this append for the later Flush call.
func (b *Buffer) Append(content string, totalProcessed int, now time.Time) (seq uint64, d Decision, delay time.Duration) {
	sinceLast := now.Sub(b.lastAppend)
	firstAppend := b.lastAppend.IsZero()

	b.seq++
	b.content.WriteString(content)
	b.lastAppend = now

	// An armed timer, a long quiet gap, or structurally significant
	// content all flush without waiting.
	if b.armed || (!firstAppend && sinceLast > b.cfg.ImmediateGap) || significant(content) {
		b.armed = false
		return b.seq, FlushNow, 0
	}

	b.armed = true

	delay = b.cfg.DebounceSlow
	if totalProcessed > b.cfg.WarningThreshold {
		delay = b.cfg.DebounceFast
	}

	return b.seq, Debounce, delay
}

// Flush delivers everything appended up to seq. It returns the newly
// appended text and false when this sequence was already flushed — a stale
// debounce timer firing after an immediate flush is a no-op.
func (b *Buffer) Flush(seq uint64) (appended string, ok bool) {
	if seq <= b.flushedSeq {
		return "", false
	}

	b.flushedSeq = b.seq
	b.armed = false

	full := b.content.String()
	appended = full[b.reported:]
	b.reported = len(full)

	if appended == "" {
		return "", false
	}

	return appended, true
}

// FlushAll delivers any remaining unreported content regardless of
// sequence. Used at session termination.
func (b *Buffer) FlushAll() (appended string, ok bool) {
	return b.Flush(b.seq + 1)
}

// Snapshot returns the full accumulated content.
func (b *Buffer) Snapshot() string {
	return b.content.String()
}

// Len returns the accumulated content length in bytes.
func (b *Buffer) Len() int {
	return b.content.Len()
}

// Pending reports whether appended content awaits a flush.
func (b *Buffer) Pending() bool {
	return b.reported < b.content.Len()
}

// Reset clears the buffer for a new session.
func (b *Buffer) Reset() {
	b.content.Reset()
	b.reported = 0
	b.seq = 0
	b.flushedSeq = 0
	b.lastAppend = time.Time{}
	b.armed = false
}

// significant reports whether content matches a structurally significant
// pattern.
func significant(content string) bool {
	for _, p := range significantPatterns {
		if p.MatchString(content) {
			return true
		}
	}

	return false
}
