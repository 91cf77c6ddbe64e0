package servicetask

import (
	"fmt"
	"time"
)

// DefaultName is reported by Executor.Name when the settings carry no name.
const DefaultName = "N/A"

// Settings is the execution policy of one Executor.
//
// An Executor keeps its own clone and hands out clones, so a Settings value
// owned by the caller can be changed freely without affecting a running task.
type Settings struct {
	// Name is a display identifier used in logs and events.
	Name string `json:"name"`

	// Repeatable makes the loop run the work function again after a
	// successful iteration. If false the work runs once per Start.
	Repeatable bool `json:"repeatable"`

	// Delay between two executions. Zero means none.
	Delay time.Duration `json:"delay"`

	// MaxExecutions bounds the iterations of one run. Non-positive means unbounded.
	MaxExecutions int64 `json:"max_executions"`

	// RetryOnError retries a failed iteration instead of ending the loop.
	RetryOnError bool `json:"retry_on_error"`

	// ErrorDelay is the wait before a retry. Zero means retry immediately.
	ErrorDelay time.Duration `json:"error_delay"`
}

// Clone returns an independent copy. Cloning nil returns nil.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Validate rejects values the executor would silently misinterpret.
// The executor itself never calls it; the config layer does.
func (s *Settings) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: settings is nil", ErrInvalidArgument)
	}
	if s.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0", ErrInvalidArgument)
	}
	if s.ErrorDelay < 0 {
		return fmt.Errorf("%w: error delay must be >= 0", ErrInvalidArgument)
	}
	return nil
}
