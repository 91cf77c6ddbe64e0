package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"servicetask/internal/config"
	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

func heartbeatTask(name string) config.TaskConfig {
	return config.TaskConfig{
		Name:       name,
		Kind:       "heartbeat",
		Repeatable: true,
		Delay:      "10ms",
		Params:     map[string]string{"message": name},
	}
}

func stopHost(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		cfg      *config.Config
		contains string
	}{
		{"unknown_kind", &config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "ftp"}}}, "tasks[0].kind: unknown"},
		{"bad_params", &config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "http"}}}, "tasks[0].params"},
		{"bad_storage", &config.Config{
			Tasks:   []config.TaskConfig{heartbeatTask("a")},
			Storage: &config.StorageConfig{Driver: "sqlite"},
		}, "storage.path is required"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := Validate(t.Context(), tc.cfg)
			require.ErrorContains(t, err, tc.contains)
			_, err = New(tc.cfg, logx.Nop())
			require.Error(t, err)
		})
	}
	require.NoError(t, Validate(t.Context(), &config.Config{Tasks: []config.TaskConfig{heartbeatTask("a")}}))
}

func TestHostRecordsRuns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs")
	once := config.TaskConfig{Name: "once", Kind: "heartbeat"}
	cfg := &config.Config{
		Storage: &config.StorageConfig{Driver: "sqlite", Path: path + ".db"},
		Tasks:   []config.TaskConfig{once},
	}
	h, err := New(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	exec, ok := h.Executor("once")
	require.True(t, ok)
	waitCtx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.Wait(waitCtx))
	require.Equal(t, int64(1), exec.Executions())

	store := h.Store()
	require.NotNil(t, store)
	require.Eventually(t, func() bool {
		runs, err := store.RecentRuns(t.Context(), "once", 10)
		return err == nil && len(runs) == 4
	}, 5*time.Second, 10*time.Millisecond)

	runs, err := store.RecentRuns(t.Context(), "once", 10)
	require.NoError(t, err)
	require.Equal(t, servicetask.TopicStopped, runs[0].Topic)
	require.Equal(t, servicetask.TopicIterationFinished, runs[1].Topic)
	require.Equal(t, servicetask.TopicIterationStarted, runs[2].Topic)
	require.Equal(t, servicetask.TopicStarted, runs[3].Topic)
	require.Equal(t, runs[0].RunID, runs[3].RunID)
	require.Equal(t, int64(1), runs[1].Iteration)

	stopHost(t, h)
}

func TestHostRecordsStopAfterCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	tc := heartbeatTask("daemon")
	tc.Delay = "1h"
	cfg := &config.Config{
		Storage: &config.StorageConfig{Driver: "sqlite", Path: path},
		Tasks:   []config.TaskConfig{tc},
	}
	h, err := New(cfg, logx.Nop())
	require.NoError(t, err)

	runCtx, cancelRun := context.WithCancel(t.Context())
	require.NoError(t, h.Start(runCtx))
	exec, ok := h.Executor("daemon")
	require.True(t, ok)
	require.Eventually(t, func() bool { return exec.Executions() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Signal-driven shutdown: the run context ends before Stop.
	cancelRun()
	stopHost(t, h)

	st, err := OpenStore(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.RecentRuns(t.Context(), "daemon", 10)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	require.Equal(t, servicetask.TopicStopped, runs[0].Topic)
	require.Equal(t, servicetask.TopicStarted, runs[len(runs)-1].Topic)
}

func TestHostTrigger(t *testing.T) {
	t.Parallel()
	tc := config.TaskConfig{Name: "cron", Kind: "heartbeat", Trigger: "@every 1s"}
	h, err := New(&config.Config{Tasks: []config.TaskConfig{tc}}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))
	defer stopHost(t, h)

	exec, ok := h.Executor("cron")
	require.True(t, ok)
	require.Zero(t, exec.Executions(), "triggered task must wait for its schedule")
	require.Eventually(t, func() bool { return exec.Executions() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestHostApply(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Tasks: []config.TaskConfig{heartbeatTask("keep"), heartbeatTask("edit"), heartbeatTask("drop")}}
	h, err := New(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))
	defer stopHost(t, h)

	require.Len(t, h.Executors(), 3)
	keep, _ := h.Executor("keep")
	oldEdit, _ := h.Executor("edit")
	drop, _ := h.Executor("drop")

	edited := heartbeatTask("edit")
	edited.Delay = "20ms"
	disabled := heartbeatTask("off")
	disabled.Disabled = true
	next := &config.Config{Tasks: []config.TaskConfig{heartbeatTask("keep"), edited, heartbeatTask("new"), disabled}}
	require.NoError(t, h.Apply(next))

	names := make([]string, 0, 3)
	for _, e := range h.Executors() {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"edit", "keep", "new"}, names)

	gotKeep, _ := h.Executor("keep")
	require.Same(t, keep, gotKeep)
	require.True(t, keep.Running())

	newEdit, _ := h.Executor("edit")
	require.NotSame(t, oldEdit, newEdit)
	require.Equal(t, 20*time.Millisecond, newEdit.Settings().Delay)
	require.False(t, oldEdit.Running())
	require.False(t, drop.Running())

	require.Error(t, h.Apply(&config.Config{Tasks: []config.TaskConfig{{Name: "x", Kind: "ftp"}}}))
	require.Len(t, h.Executors(), 3)
}

func TestHostFollow(t *testing.T) {
	t.Parallel()
	h, err := New(&config.Config{Tasks: []config.TaskConfig{heartbeatTask("a")}}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))
	defer stopHost(t, h)

	updates := make(chan *config.Config, 2)
	updates <- &config.Config{Tasks: []config.TaskConfig{heartbeatTask("a"), heartbeatTask("b")}}
	updates <- &config.Config{Tasks: []config.TaskConfig{heartbeatTask("a"), heartbeatTask("c")}}
	close(updates)

	require.NoError(t, h.Follow(t.Context(), updates))
	_, hasB := h.Executor("b")
	_, hasC := h.Executor("c")
	require.False(t, hasB)
	require.True(t, hasC)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	h, err := New(&config.Config{Tasks: []config.TaskConfig{heartbeatTask("a")}}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Stop(t.Context()))
	require.NoError(t, h.Start(t.Context()))
	stopHost(t, h)
	stopHost(t, h)
	require.Error(t, h.Apply(&config.Config{Tasks: []config.TaskConfig{heartbeatTask("a")}}))
}
