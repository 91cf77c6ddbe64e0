package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"servicetask/internal/config"
	"servicetask/internal/eventbus"
	"servicetask/internal/metrics"
	"servicetask/internal/runtime/supervisor"
	"servicetask/internal/schedule"
	"servicetask/internal/servicetask"
	"servicetask/internal/storage"
	"servicetask/internal/work"
	logx "servicetask/pkg/logx"
)

// Host owns the executors built from one config file, their triggers and
// the sinks that observe them.
type Host struct {
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	collector *metrics.Collector
	triggers  *schedule.Triggers

	// set by Start
	sup   *supervisor.Supervisor
	store storage.Store
	msrv  *metrics.Server

	mu      sync.Mutex
	cfg     *config.Config
	tasks   map[string]*task
	started bool
	stopped bool
}

type task struct {
	cfg  config.TaskConfig
	exec *servicetask.Executor
}

type Option func(*Host)

// WithLogService lets Apply push logging changes into svc.
func WithLogService(svc *logx.Service) Option {
	return func(h *Host) { h.logs = svc }
}

// WithBus replaces the internal event bus, e.g. to observe events in tests.
func WithBus(bus eventbus.Bus) Option {
	return func(h *Host) { h.bus = bus }
}

// New prepares a host for cfg. Nothing runs until Start.
func New(cfg *config.Config, log logx.Logger, opts ...Option) (*Host, error) {
	if err := Validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Host{
		log:       log,
		collector: metrics.NewCollector(),
		triggers:  schedule.NewTriggers(nil, log.With(logx.String("comp", "triggers"))),
		cfg:       cfg,
		tasks:     map[string]*task{},
	}
	for _, o := range opts {
		o(h)
	}
	if h.bus == nil {
		h.bus = eventbus.New()
	}
	return h, nil
}

// Start opens storage, starts the metrics endpoint and launches every
// enabled task. Tasks with a trigger wait for their first fire.
// Cancelling ctx does not stop the host; only Stop does.
// Call Stop even when Start fails to release what was opened.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return errors.New("host already started")
	}
	h.started = true
	// Host goroutines outlive ctx; Stop ends them once every executor is closed.
	h.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(h.log.With(logx.String("comp", "supervisor"))))

	if sc, enabled, err := mapStorageConfig(h.cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, h.log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		h.store = st
		events, unsub := h.bus.Subscribe(256)
		rlog := h.log.With(logx.String("comp", "recorder"))
		h.sup.Go("storage.recorder", func(c context.Context) error {
			defer unsub()
			record(c, events, st, rlog)
			return nil
		})
		h.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	if m := h.cfg.Metrics; m != nil && m.Enabled {
		srv, err := metrics.Listen(m.Address, metrics.Handler(metrics.NewRegistry(h.collector), m.Path),
			h.log.With(logx.String("comp", "metrics")))
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		h.msrv = srv
	}

	for _, tc := range h.cfg.Tasks {
		if err := h.addLocked(tc); err != nil {
			return err
		}
	}
	h.triggers.Start()
	h.log.Info("host started", logx.Int("tasks", len(h.tasks)))
	return nil
}

// addLocked builds, registers and (unless it waits for a trigger) starts tc.
func (h *Host) addLocked(tc config.TaskConfig) error {
	name := strings.TrimSpace(tc.Name)
	if tc.Disabled {
		h.log.Info("task disabled", logx.String("task", name))
		return nil
	}
	s, err := tc.Settings("tasks." + name)
	if err != nil {
		return err
	}
	tlog := h.log.With(logx.String("comp", "task"))
	w, err := work.Build(tc.Kind, tc.Params, tlog.With(logx.String("task", name)))
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}
	exec, err := servicetask.New(&s, w,
		servicetask.WithLogger(tlog),
		servicetask.WithBus(h.bus),
		servicetask.WithErrorLogRate(tc.ErrorLogRate),
	)
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}

	if strings.TrimSpace(tc.Trigger) != "" {
		if _, err := h.triggers.Add(name, tc.Trigger, exec.Start); err != nil {
			_ = exec.Close()
			return err
		}
	} else {
		exec.Start()
	}
	h.tasks[name] = &task{cfg: tc, exec: exec}
	h.collector.Set(exec)
	return nil
}

// removeLocked stops the named task and forgets it.
func (h *Host) removeLocked(name string) {
	t, ok := h.tasks[name]
	if !ok {
		return
	}
	h.triggers.Remove(name)
	_ = t.exec.Close()
	h.collector.Remove(name)
	delete(h.tasks, name)
}

// Apply reconciles the running tasks with cfg: removed tasks stop, changed
// ones are rebuilt and restarted, new ones start. Storage and metrics
// changes need a restart.
func (h *Host) Apply(cfg *config.Config) error {
	if err := Validate(context.Background(), cfg); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stopped {
		return errors.New("host not running")
	}

	sections, attrs := config.SummarizeConfigChange(h.cfg, cfg)
	if len(sections) == 0 {
		h.log.Debug("config reload received, but no effective changes detected")
		h.cfg = cfg
		return nil
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	h.log.Info("applying config change", fields...)

	if h.logs != nil {
		h.logs.Apply(cfg.Logx())
	}
	for _, s := range sections {
		if s == "storage" || s == "metrics" {
			h.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	changes := config.DiffTasks(h.cfg, cfg)
	for _, name := range changes.Removed {
		h.removeLocked(name)
		h.log.Info("task removed", logx.String("task", name))
	}
	var errs []error
	for _, name := range changes.Changed {
		h.removeLocked(name)
		tc, _ := cfg.Task(name)
		if err := h.addLocked(tc); err != nil {
			errs = append(errs, err)
			continue
		}
		h.log.Info("task reloaded", logx.String("task", name))
	}
	for _, name := range changes.Added {
		tc, _ := cfg.Task(name)
		if err := h.addLocked(tc); err != nil {
			errs = append(errs, err)
			continue
		}
		h.log.Info("task added", logx.String("task", name))
	}
	h.cfg = cfg
	return errors.Join(errs...)
}

// Follow applies every config published on updates until ctx is done.
// Bursts are coalesced to the latest config.
func (h *Host) Follow(ctx context.Context, updates <-chan *config.Config) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-updates:
			if !ok {
				return nil
			}
		drain:
			for {
				select {
				case newer := <-updates:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			if err := h.Apply(cfg); err != nil {
				h.log.Error("config apply failed", logx.Err(err))
			}
		}
	}
}

// Stop halts triggers, closes every executor in parallel, stops the sinks
// and closes storage. It is bounded by ctx.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stopped {
		return nil
	}
	h.stopped = true

	h.triggers.Stop(ctx)

	var g errgroup.Group
	for _, t := range h.tasks {
		g.Go(t.exec.Close)
	}
	closed := make(chan error, 1)
	go func() { closed <- g.Wait() }()

	var errs []error
	select {
	case err := <-closed:
		errs = append(errs, err)
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop tasks: %w", ctx.Err()))
	}

	if h.msrv != nil {
		errs = append(errs, h.msrv.Shutdown(ctx))
	}
	// The recorder flushes buffered events before it returns.
	if err := h.sup.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if h.store != nil {
		errs = append(errs, h.store.Close())
	}
	h.log.Info("host stopped")
	return errors.Join(errs...)
}

// Executors returns the live executors sorted by name.
func (h *Host) Executors() []*servicetask.Executor {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*servicetask.Executor, 0, len(h.tasks))
	for _, t := range h.tasks {
		out = append(out, t.exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Executor returns the named executor.
func (h *Host) Executor(name string) (*servicetask.Executor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tasks[name]
	if !ok {
		return nil, false
	}
	return t.exec, true
}

// Store is the open audit trail, nil when storage is disabled.
func (h *Host) Store() storage.Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store
}

// Supervisor exposes the host goroutines' supervisor (valid after Start).
func (h *Host) Supervisor() *supervisor.Supervisor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sup
}
