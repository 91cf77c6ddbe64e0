package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "servicetask/pkg/logx"
)

// TaskChanges lists task names that differ between two configs.
type TaskChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

func (c TaskChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// DiffTasks compares task entries by name. Any field change (settings,
// trigger, params, disabled) marks the task as changed.
func DiffTasks(oldCfg, newCfg *Config) TaskChanges {
	oldTasks := indexTasks(oldCfg)
	newTasks := indexTasks(newCfg)

	var out TaskChanges
	for name, nt := range newTasks {
		ot, ok := oldTasks[name]
		switch {
		case !ok:
			out.Added = append(out.Added, name)
		case hashTask(ot) != hashTask(nt):
			out.Changed = append(out.Changed, name)
		}
	}
	for name := range oldTasks {
		if _, ok := newTasks[name]; !ok {
			out.Removed = append(out.Removed, name)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	return out
}

// SummarizeConfigChange returns a compact list of changed sections and
// structured fields for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	fields := make([]logx.Field, 0, 8)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
	}
	if tc := DiffTasks(oldCfg, newCfg); !tc.Empty() {
		changed = append(changed, "tasks")
		fields = append(fields,
			logx.String("tasks.added", strings.Join(tc.Added, ",")),
			logx.String("tasks.removed", strings.Join(tc.Removed, ",")),
			logx.String("tasks.changed", strings.Join(tc.Changed, ",")),
		)
	}
	return changed, fields
}

func indexTasks(cfg *Config) map[string]TaskConfig {
	out := map[string]TaskConfig{}
	if cfg == nil {
		return out
	}
	for _, t := range cfg.Tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		out[name] = t
	}
	return out
}

func hashTask(t TaskConfig) uint64 {
	b, err := json.Marshal(t)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
