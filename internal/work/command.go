package work

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

const maxOutputLog = 512

// command runs an external program. A non-zero exit fails the iteration.
type command struct {
	log     logx.Logger
	path    string
	args    []string
	dir     string
	timeout time.Duration
}

func newCommand(p Params, log logx.Logger) (servicetask.Worker, error) {
	path := p.Get("path")
	if path == "" {
		return nil, errors.New("params.path: required")
	}
	timeout, err := p.Duration("timeout", 0)
	if err != nil {
		return nil, err
	}
	return &command{
		log:     log,
		path:    path,
		args:    strings.Fields(p.Get("args")),
		dir:     p.Get("dir"),
		timeout: timeout,
	}, nil
}

func (c *command) Execute(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Dir = c.dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)
	if err != nil {
		// A cancelled parent ends the run; report it as such.
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return fmt.Errorf("command %s: %w: %s", c.path, err, truncate(out.String(), maxOutputLog))
	}
	c.log.Debug("command finished",
		logx.String("path", c.path),
		logx.Duration("took", took),
		logx.String("output", truncate(out.String(), maxOutputLog)),
	)
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
