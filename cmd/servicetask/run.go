package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"servicetask/internal/config"
	"servicetask/internal/host"
	"servicetask/internal/runtime/supervisor"
	logx "servicetask/pkg/logx"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start every configured task and follow config changes",
	RunE:  doRun,
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("info")
	cfgm := config.NewManager(flagConfigPath)
	cfgm.SetLogger(boot.With(logx.String("comp", "config")))
	cfgm.SetValidator(host.Validate)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		boot.Error("config load failed", logx.String("path", cfgm.Path()), logx.Err(err))
		return fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.NewService(cfg.Logx())
	defer logs.Close()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	h, err := host.New(cfg, log.With(logx.String("comp", "host")), host.WithLogService(logs))
	if err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		return errors.Join(err, h.Stop(stopCtx))
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))))
	sup.GoRestart("config.watch", cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))
	updates := cfgm.Subscribe(4)
	sup.Go("config.apply", func(c context.Context) error {
		defer cfgm.Unsubscribe(updates)
		return h.Follow(c, updates)
	})
	sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdog(c, log)
	})

	notify(log, daemon.SdNotifyReady)
	log.Info("servicetask running", logx.String("config", cfgm.Path()))

	<-ctx.Done()
	log.Info("shutting down")
	notify(log, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return errors.Join(
		ignoreCanceled(sup.Stop(stopCtx)),
		h.Stop(stopCtx),
	)
}

// notify sends a state to systemd when running under a Type=notify unit.
func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured WatchdogSec.
func watchdog(ctx context.Context, log logx.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
