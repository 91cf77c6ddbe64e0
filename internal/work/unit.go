package work

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

// unitCheck fails the iteration while a systemd service is not active. With
// params.restart=true it restarts the unit first and only fails when the
// restart job does not complete.
type unitCheck struct {
	log            logx.Logger
	unit           string
	restart        bool
	restartTimeout time.Duration
}

func newUnit(p Params, log logx.Logger) (servicetask.Worker, error) {
	name := p.Get("unit")
	if name == "" {
		return nil, errors.New("params.unit: required")
	}
	if !strings.Contains(name, ".") {
		name += ".service"
	}
	u := &unitCheck{log: log, unit: name}
	if v := p.Get("restart"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("params.restart: invalid " + strconv.Quote(v))
		}
		u.restart = b
	}
	d, err := p.Duration("restart_timeout", 15*time.Second)
	if err != nil {
		return nil, err
	}
	u.restartTimeout = d
	return u, nil
}
