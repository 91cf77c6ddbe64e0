package servicetask

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"servicetask/internal/eventbus"
	logx "servicetask/pkg/logx"
)

// Worker is the unit of work of one iteration.
//
// Execute must return promptly once ctx is done. Returning ctx.Err() (or any
// error wrapping context.Canceled) ends the run gracefully; any other error
// counts as a failed iteration.
type Worker interface {
	Execute(ctx context.Context) error
}

// WorkerFunc adapts a plain function to Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Execute(ctx context.Context) error { return f(ctx) }

type Option func(*Executor)

// WithLogger sets the diagnostic sink. The zero Logger is silent.
func WithLogger(log logx.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithBus publishes lifecycle events (see the Topic constants) to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(e *Executor) { e.bus = bus }
}

// WithErrorLogRate limits how many failure log lines per second are written.
// Suppressed lines are counted and reported with the next written one.
// It does not change loop timing. Non-positive disables the limit.
func WithErrorLogRate(perSec float64) Option {
	return func(e *Executor) {
		if perSec > 0 {
			e.errLog = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// Executor runs a Worker once or repeatedly in one background goroutine.
//
// Lifecycle: Start moves Stopped to Running, Stop (or the loop ending on its
// own) moves it back. Start while running and waiting in the inter-execution
// delay wakes the loop early instead.
type Executor struct {
	settings Settings
	work     Worker
	log      logx.Logger
	bus      eventbus.Bus
	errLog   *rate.Limiter

	// mu serializes Start, Stop and Close. The run loop never takes it.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	// delayMu guards the wake signal shared with the run loop.
	delayMu     sync.Mutex
	delayCtx    context.Context
	delayCancel context.CancelFunc

	executions atomic.Int64
	errors     atomic.Int64
	suppressed atomic.Int64
}

// New creates a stopped executor with a private copy of settings.
func New(settings *Settings, work Worker, opts ...Option) (*Executor, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: settings is nil", ErrInvalidArgument)
	}
	if work == nil {
		return nil, fmt.Errorf("%w: worker is nil", ErrInvalidArgument)
	}
	e := &Executor{
		settings: *settings.Clone(),
		work:     work,
		errLog:   rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("task", e.Name()))
	return e, nil
}

// Settings returns a copy of the executor's settings.
func (e *Executor) Settings() *Settings { return e.settings.Clone() }

// Name returns the configured name, or DefaultName when unset.
func (e *Executor) Name() string {
	if e.settings.Name == "" {
		return DefaultName
	}
	return e.settings.Name
}

// Executions is the number of iterations started by the current (or last) run.
func (e *Executor) Executions() int64 { return e.executions.Load() }

// Errors is the number of failed iterations of the current (or last) run.
func (e *Executor) Errors() int64 { return e.errors.Load() }

// Running reports whether the loop goroutine is still active.
func (e *Executor) Running() bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Start launches the run loop unless it is already running. It never blocks
// on the work function.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLocked()
}

func (e *Executor) startLocked() {
	if e.closed {
		e.log.Warn("start ignored: executor closed")
		return
	}

	if e.done == nil {
		e.log.Debug("starting")
		e.executions.Store(0)
		e.errors.Store(0)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		e.cancel = cancel
		e.done = done
		runID := uuid.NewString()
		go func() {
			defer close(done)
			e.run(ctx, runID)
		}()
		e.log.Debug("started", logx.String("run_id", runID))
		return
	}

	select {
	case <-e.done:
		// The previous run ended on its own; drop the stale handle and start over.
		e.releaseLocked()
		e.startLocked()
		return
	default:
	}

	e.log.Debug("already running")
	if e.settings.Repeatable && e.settings.Delay > 0 {
		e.log.Debug("cancelling pending delay")
		e.wake()
	}
}

// Stop cancels the run and blocks until the loop goroutine has exited.
// Stopping a stopped executor is a no-op.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Executor) stopLocked() {
	if e.done == nil {
		e.log.Debug("already stopped")
		return
	}
	e.log.Debug("stopping")
	start := time.Now()
	e.cancel()
	<-e.done
	e.releaseLocked()
	e.log.Debug("stopped", logx.Duration("took", time.Since(start)))
}

func (e *Executor) releaseLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.done = nil
	e.resetDelay()
}

// Close stops the executor and rejects further Start calls.
// Closing twice is a no-op.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.stopLocked()
	e.closed = true
	return nil
}

// Wait blocks until the current run ends on its own (or is stopped) or ctx
// is done. It returns nil immediately when nothing runs.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- wake signal ----

func (e *Executor) delaySignal() context.Context {
	e.delayMu.Lock()
	defer e.delayMu.Unlock()
	if e.delayCtx == nil {
		e.delayCtx, e.delayCancel = context.WithCancel(context.Background())
	}
	return e.delayCtx
}

func (e *Executor) wake() {
	e.delayMu.Lock()
	defer e.delayMu.Unlock()
	if e.delayCtx == nil {
		e.delayCtx, e.delayCancel = context.WithCancel(context.Background())
	}
	e.delayCancel()
}

// resetDelay drops a consumed wake signal so the next wait gets a fresh one.
func (e *Executor) resetDelay() {
	e.delayMu.Lock()
	defer e.delayMu.Unlock()
	if e.delayCtx == nil || e.delayCtx.Err() == nil {
		return
	}
	e.delayCtx = nil
	e.delayCancel = nil
}

// ---- run loop ----

func (e *Executor) run(ctx context.Context, runID string) {
	e.log.Debug("loop started", logx.String("run_id", runID))
	e.publish(TopicStarted, Event{RunID: runID})

	reason := e.loop(ctx, runID)

	e.log.Debug("loop exited",
		logx.String("run_id", runID),
		logx.String("reason", reason),
		logx.Int64("executions", e.executions.Load()),
		logx.Int64("errors", e.errors.Load()),
	)
	e.publish(TopicStopped, Event{
		RunID:     runID,
		Iteration: e.executions.Load(),
		Errors:    e.errors.Load(),
		Reason:    reason,
	})
}

func (e *Executor) loop(ctx context.Context, runID string) string {
	s := e.settings
	for {
		if ctx.Err() != nil {
			return "cancelled"
		}

		n := e.executions.Add(1)
		e.log.Debug("iteration started", logx.Int64("iteration", n))
		e.publish(TopicIterationStarted, Event{RunID: runID, Iteration: n})

		start := time.Now()
		err := e.execute(ctx)
		took := time.Since(start)

		if err == nil {
			e.log.Debug("iteration finished", logx.Int64("iteration", n), logx.Duration("took", took))
			e.publish(TopicIterationFinished, Event{RunID: runID, Iteration: n, Took: took})

			if !s.Repeatable {
				return "done"
			}
			if e.maxReached() {
				e.log.Debug("maximum executions reached", logx.Int64("max", s.MaxExecutions))
				return "max_executions"
			}
			if s.Delay > 0 {
				if err := e.delay(ctx, runID, s.Delay); err != nil {
					return "cancelled"
				}
			}
			continue
		}

		if isCancellation(ctx, err) {
			e.log.Debug("iteration cancelled", logx.Int64("iteration", n), logx.Err(err))
			return "cancelled"
		}

		errs := e.errors.Add(1)
		e.publish(TopicIterationFailed, Event{RunID: runID, Iteration: n, Errors: errs, Took: took, Error: err.Error()})

		if !s.RetryOnError {
			e.log.Error("iteration failed; not retrying", logx.Int64("iteration", n), logx.Err(err))
			return "failed"
		}
		e.logRetry(n, err)

		if e.maxReached() {
			e.log.Debug("maximum executions reached", logx.Int64("max", s.MaxExecutions))
			return "max_executions"
		}
		if s.ErrorDelay > 0 {
			if err := e.delay(ctx, runID, s.ErrorDelay); err != nil {
				return "cancelled"
			}
		}
	}
}

func (e *Executor) maxReached() bool {
	limit := e.settings.MaxExecutions
	return limit > 0 && e.executions.Load() >= limit
}

// execute runs one iteration. A panic in the worker becomes a failure.
func (e *Executor) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("worker panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.work.Execute(ctx)
}

func (e *Executor) logRetry(n int64, err error) {
	if !e.errLog.Allow() {
		e.suppressed.Add(1)
		return
	}
	e.log.Warn("iteration failed; retrying",
		logx.Int64("iteration", n),
		logx.Duration("delay", e.settings.ErrorDelay),
		logx.Int64("suppressed", e.suppressed.Swap(0)),
		logx.Err(err),
	)
}

// delay waits d unless the run is cancelled (returned as an error) or a
// wake request arrives (returns nil early).
func (e *Executor) delay(ctx context.Context, runID string, d time.Duration) error {
	e.log.Debug("next execution delayed", logx.Duration("delay", d))
	e.publish(TopicDelayed, Event{RunID: runID, Delay: d})

	err := sleep(ctx, e.delaySignal(), d)
	if err == errDelayInterrupted {
		e.resetDelay()
		e.log.Debug("delay skipped")
		e.publish(TopicWoken, Event{RunID: runID})
		return nil
	}
	return err
}

// sleep waits for d, returning ctx's error if ctx ends first and
// errDelayInterrupted if wake fires first. Cancellation of ctx wins ties.
func sleep(ctx, wake context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wake.Err() != nil {
		return errDelayInterrupted
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return errDelayInterrupted
	case <-t.C:
		return nil
	}
}

func (e *Executor) publish(topic string, ev Event) {
	if e.bus == nil {
		return
	}
	ev.Task = e.Name()
	e.bus.Publish(eventbus.Event{Topic: topic, Data: ev})
}
