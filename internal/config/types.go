package config

import (
	"errors"
	"fmt"
	"strings"

	"servicetask/internal/schedule"
	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

var (
	ErrNoTasks       = errors.New("no tasks configured")
	ErrDuplicateTask = errors.New("duplicate task name")
)

// Config is the root of servicetask.yaml / servicetask.json.
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
	Tasks   []TaskConfig   `json:"tasks"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the iteration audit trail.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/servicetask.db, busy_timeout: 2s }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the Prometheus endpoint.
// Prefer binding to localhost (e.g. "127.0.0.1:9310").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"`
	Path    string `json:"path,omitempty"` // default: "/metrics"
}

// TaskConfig describes one executor.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type TaskConfig struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Repeatable    bool   `json:"repeatable"`
	Delay         string `json:"delay,omitempty"`
	MaxExecutions int64  `json:"max_executions,omitempty"`
	RetryOnError  bool   `json:"retry_on_error"`
	ErrorDelay    string `json:"error_delay,omitempty"`

	// Trigger is an optional schedule (cron or interval) that calls Start.
	Trigger string `json:"trigger,omitempty"`

	// ErrorLogRate caps failure log lines per second. 0 disables the cap.
	ErrorLogRate float64 `json:"error_log_rate,omitempty"`

	// Disabled keeps the task in the file without running it.
	Disabled bool `json:"disabled,omitempty"`

	Params StringMap `json:"params,omitempty"`
}

// Settings converts the task entry into an executor settings snapshot.
func (t TaskConfig) Settings(path string) (servicetask.Settings, error) {
	delay, err := ParseDurationField(path+".delay", t.Delay)
	if err != nil {
		return servicetask.Settings{}, err
	}
	errDelay, err := ParseDurationField(path+".error_delay", t.ErrorDelay)
	if err != nil {
		return servicetask.Settings{}, err
	}
	s := servicetask.Settings{
		Name:          strings.TrimSpace(t.Name),
		Repeatable:    t.Repeatable,
		Delay:         delay,
		MaxExecutions: t.MaxExecutions,
		RetryOnError:  t.RetryOnError,
		ErrorDelay:    errDelay,
	}
	if err := s.Validate(); err != nil {
		return servicetask.Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Logx maps the logging section onto the logx service config.
func (c *Config) Logx() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// Validate checks the structure of the file. Worker kinds are checked by
// the host validator since only it knows the registered kinds.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.Tasks) == 0 {
		return ErrNoTasks
	}
	var errs []error
	seen := make(map[string]struct{}, len(c.Tasks))
	for i, t := range c.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		name := strings.TrimSpace(t.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		default:
			if _, dup := seen[name]; dup {
				errs = append(errs, fmt.Errorf("%s.name: %w: %q", path, ErrDuplicateTask, name))
			}
			seen[name] = struct{}{}
		}
		if strings.TrimSpace(t.Kind) == "" {
			errs = append(errs, fmt.Errorf("%s.kind: required", path))
		}
		if _, err := t.Settings(path); err != nil {
			errs = append(errs, err)
		}
		if t.ErrorLogRate < 0 {
			errs = append(errs, fmt.Errorf("%s.error_log_rate: must be >= 0", path))
		}
		if strings.TrimSpace(t.Trigger) != "" {
			if _, err := schedule.ParseSpec(t.Trigger); err != nil {
				errs = append(errs, fmt.Errorf("%s.trigger: %w", path, err))
			}
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Metrics != nil && c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Address) == "" {
		errs = append(errs, errors.New("metrics.address: required when enabled"))
	}
	return errors.Join(errs...)
}

// Task returns the named task entry.
func (c *Config) Task(name string) (TaskConfig, bool) {
	if c == nil {
		return TaskConfig{}, false
	}
	for _, t := range c.Tasks {
		if strings.TrimSpace(t.Name) == name {
			return t, true
		}
	}
	return TaskConfig{}, false
}
