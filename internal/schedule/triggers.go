package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "servicetask/pkg/logx"
)

// Triggers fires named callbacks on their schedules. It only triggers; the
// callbacks (typically Executor.Start) must return quickly.
type Triggers struct {
	log logx.Logger
	loc *time.Location

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]Spec
}

// NewTriggers creates a stopped trigger set. A nil location means time.Local.
func NewTriggers(loc *time.Location, log logx.Logger) *Triggers {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Triggers{
		log:     log,
		loc:     loc,
		c:       cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		entries: map[string]cron.EntryID{},
		specs:   map[string]Spec{},
	}
}

// Add registers (or replaces) the trigger for name.
func (t *Triggers) Add(name, raw string, fn func()) (Spec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("trigger name required")
	}
	if fn == nil {
		return Spec{}, fmt.Errorf("trigger %q: nil callback", name)
	}
	sp, err := ParseSpec(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("trigger %q: %w", name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.entries[name]; ok {
		t.c.Remove(id)
	}
	log := t.log.With(logx.String("task", name))
	id := t.c.Schedule(sp.Schedule(), cron.FuncJob(func() {
		log.Debug("trigger fired", logx.String("schedule", sp.String()))
		fn()
	}))
	t.entries[name] = id
	t.specs[name] = sp
	t.log.Debug("trigger registered", logx.String("task", name), logx.String("kind", sp.Kind.String()), logx.String("schedule", sp.String()))
	return sp, nil
}

// Remove unregisters the trigger for name. Unknown names are ignored.
func (t *Triggers) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.entries[name]; ok {
		t.c.Remove(id)
		delete(t.entries, name)
		delete(t.specs, name)
	}
}

// Next reports the next fire time of name, zero if unknown or not started.
func (t *Triggers) Next(name string) time.Time {
	t.mu.Lock()
	id, ok := t.entries[name]
	t.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return t.c.Entry(id).Next
}

// Len is the number of registered triggers.
func (t *Triggers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Triggers) Start() {
	t.c.Start()
	t.log.Info("triggers started", logx.String("tz", t.loc.String()), logx.Int("triggers", t.Len()))
}

// Stop stops firing and waits for running callbacks, bounded by ctx.
func (t *Triggers) Stop(ctx context.Context) {
	select {
	case <-t.c.Stop().Done():
	case <-ctx.Done():
	}
	t.log.Debug("triggers stopped")
}
