//go:build linux

package work

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"

	logx "servicetask/pkg/logx"
)

func (u *unitCheck) Execute(ctx context.Context) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	state, err := unitState(ctx, conn, u.unit)
	if err != nil {
		return err
	}
	if state == "active" {
		u.log.Debug("unit active", logx.String("unit", u.unit))
		return nil
	}
	if !u.restart {
		return fmt.Errorf("unit %s is %s", u.unit, state)
	}

	u.log.Warn("unit down; restarting", logx.String("unit", u.unit), logx.String("state", state))
	rctx, cancel := context.WithTimeout(ctx, u.restartTimeout)
	defer cancel()
	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(rctx, u.unit, "replace", done); err != nil {
		return fmt.Errorf("restart %s: %w", u.unit, err)
	}
	select {
	case <-rctx.Done():
		return fmt.Errorf("restart %s: %w", u.unit, rctx.Err())
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart %s: job %s", u.unit, result)
		}
	}
	u.log.Info("unit restarted", logx.String("unit", u.unit))
	return nil
}

func unitState(ctx context.Context, conn *dbus.Conn, unit string) (string, error) {
	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return "", fmt.Errorf("status %s: %w", unit, err)
	}
	for _, st := range units {
		if st.Name != unit {
			continue
		}
		if st.LoadState == "not-found" {
			return "", fmt.Errorf("unit %s not found", unit)
		}
		return st.ActiveState, nil
	}
	return "", fmt.Errorf("unit %s not found", unit)
}
