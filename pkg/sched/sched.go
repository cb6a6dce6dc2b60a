// Package sched provides named, cancelable timers and tickers. Giving every
// timer a name lets the recovery path cancel all outstanding work from one
// place instead of chasing individual timer handles.
package sched

import (
	"sync"
	"time"
)

// Scheduler owns a set of named one-shot timers and repeating tickers.
// Scheduling under a name that is already in use replaces the previous
// timer.
//
// Callbacks fire on timer goroutines; callers that need single-threaded
// execution should have the callback enqueue an event rather than do work
// directly.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	tickers map[string]chan struct{}
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		timers:  make(map[string]*time.Timer),
		tickers: make(map[string]chan struct{}),
	}
}

// After arms a one-shot timer under the given name, replacing any existing
// timer with that name.
func (s *Scheduler) After(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
	}

	s.timers[name] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()

		fn()
	})
}

// Every starts a repeating ticker under the given name, replacing any
// existing ticker with that name.
func (s *Scheduler) Every(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.tickers[name]; ok {
		close(stop)
	}

	stop := make(chan struct{})
	s.tickers[name] = stop

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
}

// Cancel stops the timer or ticker with the given name. It reports whether
// anything was pending under that name.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	canceled := false

	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
		canceled = true
	}

	if stop, ok := s.tickers[name]; ok {
		close(stop)
		delete(s.tickers, name)
		canceled = true
	}

	return canceled
}

// CancelAll stops every outstanding timer and ticker.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}

	for name, stop := range s.tickers {
		close(stop)
		delete(s.tickers, name)
	}
}

// Pending reports whether a timer or ticker is outstanding under the name.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, timer := s.timers[name]
	_, ticker := s.tickers[name]

	return timer || ticker
}
