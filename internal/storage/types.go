package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file (pure Go driver)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one line of the iteration audit trail.
// Keep it compact and schema-stable.
type RunRecord struct {
	At        time.Time `json:"at"`
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Iteration int64     `json:"iteration"`
	Topic     string    `json:"topic"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
