package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lastSessionFile = "last_session.json"
)

// LastSession is the persisted record of the most recent terminal session,
// written after every run so "spool status" can report it later.
type LastSession struct {
	// SessionID is the id the session carried while it was in flight.
	SessionID string `json:"session_id"`

	// Outcome is "completed" or "failed".
	Outcome string `json:"outcome"`

	// Reasons are the recorded termination reasons, in order.
	Reasons []string `json:"reasons,omitempty"`

	// ContentBytes is the length of the final (or partial) content.
	ContentBytes int `json:"content_bytes"`

	// Chunks is the number of chunks processed.
	Chunks int `json:"chunks"`

	// FinishedAt is when the session reached its terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// LoadLastSession loads the last-session record from .spool/last_session.json.
// Returns nil, nil when no record exists.
func (m *Manager) LoadLastSession(overrideDir string) (*LastSession, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, nil
	}

	path := filepath.Join(dir, lastSessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading last session: %w", err)
	}

	rec := &LastSession{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("parsing last session: %w", err)
	}

	return rec, nil
}

// SaveLastSession persists the record to .spool/last_session.json, creating
// the directory if needed.
func (m *Manager) SaveLastSession(rec *LastSession, overrideDir string) error {
	if rec == nil {
		return errors.New("cannot save nil last session")
	}

	dir, err := m.Ensure(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling last session: %w", err)
	}

	path := filepath.Join(dir, lastSessionFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing last session: %w", err)
	}

	return nil
}

// ClearLastSession removes the last-session record. Returns nil if the file
// doesn't exist.
func (m *Manager) ClearLastSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	path := filepath.Join(dir, lastSessionFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing last session: %w", err)
	}

	return nil
}
