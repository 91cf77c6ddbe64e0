package servicetask

import "time"

// Topics published on the event bus (see WithBus).
const (
	TopicStarted           = "task.started"
	TopicStopped           = "task.stopped"
	TopicIterationStarted  = "iteration.started"
	TopicIterationFinished = "iteration.finished"
	TopicIterationFailed   = "iteration.failed"
	TopicDelayed           = "task.delayed"
	TopicWoken             = "task.woken"
)

// Event is the payload of every executor event.
type Event struct {
	Task      string        `json:"task"`
	RunID     string        `json:"run_id"`
	Iteration int64         `json:"iteration,omitempty"`
	Errors    int64         `json:"errors,omitempty"`
	Took      time.Duration `json:"took,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Error     string        `json:"error,omitempty"`
	// Reason is set on task.stopped: "done", "max_executions", "cancelled" or "failed".
	Reason string `json:"reason,omitempty"`
}
