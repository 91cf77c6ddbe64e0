package host

import (
	"context"
	"time"

	"servicetask/internal/eventbus"
	"servicetask/internal/servicetask"
	"servicetask/internal/storage"
	logx "servicetask/pkg/logx"
)

const appendTimeout = 2 * time.Second

// recordable lists the topics written to the audit trail. Delay and wake
// events are log-only.
var recordable = map[string]bool{
	servicetask.TopicStarted:           true,
	servicetask.TopicStopped:           true,
	servicetask.TopicIterationStarted:  true,
	servicetask.TopicIterationFinished: true,
	servicetask.TopicIterationFailed:   true,
}

func toRecord(e eventbus.Event) (storage.RunRecord, bool) {
	ev, ok := e.Data.(servicetask.Event)
	if !ok || !recordable[e.Topic] {
		return storage.RunRecord{}, false
	}
	r := storage.RunRecord{
		At:        e.Time,
		RunID:     ev.RunID,
		Task:      ev.Task,
		Iteration: ev.Iteration,
		Topic:     e.Topic,
		Error:     ev.Error,
		TookMS:    ev.Took.Milliseconds(),
	}
	return r, true
}

// record drains events into store until ctx is done or the channel closes.
// Events already buffered when ctx ends are still written.
func record(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			flush(events, store, log)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			write(ctx, e, store, log)
		}
	}
}

func flush(events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			write(context.Background(), e, store, log)
		default:
			return
		}
	}
}

func write(ctx context.Context, e eventbus.Event, store storage.Store, log logx.Logger) {
	log.Trace("event", logx.String("topic", e.Topic), logx.Time("time", e.Time))
	r, ok := toRecord(e)
	if !ok {
		return
	}
	actx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := store.AppendRun(actx, r); err != nil {
		log.Warn("append run record failed", logx.String("task", r.Task), logx.Err(err))
	}
}
