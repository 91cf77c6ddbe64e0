package work

import (
	"context"
	"errors"

	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

// heartbeat logs a message each iteration. With params.fail set it returns
// that text as an error instead.
type heartbeat struct {
	log     logx.Logger
	message string
	fail    error
}

func newHeartbeat(p Params, log logx.Logger) (servicetask.Worker, error) {
	msg := p.Get("message")
	if msg == "" {
		msg = "alive"
	}
	h := &heartbeat{log: log, message: msg}
	if v := p.Get("fail"); v != "" {
		h.fail = errors.New(v)
	}
	return h, nil
}

func (h *heartbeat) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.fail != nil {
		return h.fail
	}
	h.log.Info(h.message)
	return nil
}
