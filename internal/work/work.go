// Package work holds the concrete work functions a task entry can name by
// kind. Each factory validates its params up front so a bad entry fails at
// config load instead of on the first iteration.
package work

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"servicetask/internal/config"
	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

// Params are the free-form task parameters from the config file.
type Params map[string]string

// Get returns the trimmed value of key.
func (p Params) Get(key string) string { return strings.TrimSpace(p[key]) }

// Duration parses key as a Go duration, def when unset.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault("params."+key, p[key], def)
}

// Factory builds a worker from params.
type Factory func(p Params, log logx.Logger) (servicetask.Worker, error)

var factories = map[string]Factory{
	"heartbeat": newHeartbeat,
	"command":   newCommand,
	"http":      newHTTP,
	"speedtest": newSpeedtest,
	"unit":      newUnit,
}

// Known reports whether kind has a factory.
func Known(kind string) bool {
	_, ok := factories[normalize(kind)]
	return ok
}

// Kinds lists the registered kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates the worker for kind.
func Build(kind string, params map[string]string, log logx.Logger) (servicetask.Worker, error) {
	f, ok := factories[normalize(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown task kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	w, err := f(Params(params), log.With(logx.String("kind", normalize(kind))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", normalize(kind), err)
	}
	return w, nil
}

func normalize(kind string) string { return strings.ToLower(strings.TrimSpace(kind)) }
