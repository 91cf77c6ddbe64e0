package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"servicetask/internal/config"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./data/runs
  busy_timeout: 2s
tasks:
  - name: heartbeat
    kind: heartbeat
    repeatable: true
    delay: 30s
    max_executions: 10
    retry_on_error: true
    error_delay: 5s
    trigger: "@every 5m"
    error_log_rate: 1
    params:
      message: alive
      count: 3
      ratio: 0.5
      loud: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := config.Decode("servicetask.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "file", cfg.Storage.Driver)
	require.Len(t, cfg.Tasks, 1)
	task := cfg.Tasks[0]
	require.Equal(t, "alive", task.Params["message"])
	require.Equal(t, "3", task.Params["count"])
	require.Equal(t, "0.5", task.Params["ratio"])
	require.Equal(t, "true", task.Params["loud"])

	s, err := task.Settings("tasks[0]")
	require.NoError(t, err)
	require.Equal(t, "heartbeat", s.Name)
	require.True(t, s.Repeatable)
	require.Equal(t, 30*time.Second, s.Delay)
	require.Equal(t, int64(10), s.MaxExecutions)
	require.True(t, s.RetryOnError)
	require.Equal(t, 5*time.Second, s.ErrorDelay)

	require.Equal(t, "debug", cfg.Logx().Level)
	require.True(t, cfg.Logx().Console)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	cfg, err := config.Decode("servicetask.json", []byte(`{"tasks":[{"name":"a","kind":"heartbeat","repeatable":false,"retry_on_error":false}]}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		path     string
		body     string
	}{
		{"unknown_field_yaml", "c.yaml", "tasks: []\ntimeout: 5s\n"},
		{"unknown_task_field", "c.json", `{"tasks":[{"name":"a","kind":"x","retries":3}]}`},
		{"trailing_data", "c.json", `{"tasks":[]} {"tasks":[]}`},
		{"empty_yaml", "c.yml", ""},
		{"nested_param", "c.json", `{"tasks":[{"name":"a","kind":"x","params":{"p":{"q":1}}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := config.Decode(tc.path, []byte(tc.body))
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    config.Config
		then     error
		contains string
	}{
		{"no_tasks", config.Config{}, config.ErrNoTasks, ""},
		{"duplicate", config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "k"}, {Name: "a", Kind: "k"}}}, config.ErrDuplicateTask, ""},
		{"missing_name", config.Config{Tasks: []config.TaskConfig{{Kind: "k"}}}, nil, "tasks[0].name: required"},
		{"missing_kind", config.Config{Tasks: []config.TaskConfig{{Name: "a"}}}, nil, "tasks[0].kind: required"},
		{"bad_delay", config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "k", Delay: "soon"}}}, nil, "tasks[0].delay"},
		{"negative_delay", config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "k", ErrorDelay: "-1s"}}}, nil, "duration must be >= 0"},
		{"bad_trigger", config.Config{Tasks: []config.TaskConfig{{Name: "a", Kind: "k", Trigger: "whenever"}}}, nil, "tasks[0].trigger"},
		{"metrics_no_address", config.Config{
			Tasks:   []config.TaskConfig{{Name: "a", Kind: "k"}},
			Metrics: &config.MetricsConfig{Enabled: true},
		}, nil, "metrics.address"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := tc.given.Validate()
			require.Error(t, err)
			if tc.then != nil {
				require.ErrorIs(t, err, tc.then)
			}
			if tc.contains != "" {
				require.Contains(t, err.Error(), tc.contains)
			}
		})
	}
}

func TestDiffTasks(t *testing.T) {
	t.Parallel()
	oldCfg := &config.Config{Tasks: []config.TaskConfig{
		{Name: "keep", Kind: "heartbeat"},
		{Name: "edit", Kind: "heartbeat", Delay: "1s"},
		{Name: "drop", Kind: "heartbeat"},
	}}
	newCfg := &config.Config{Tasks: []config.TaskConfig{
		{Name: "keep", Kind: "heartbeat"},
		{Name: "edit", Kind: "heartbeat", Delay: "2s"},
		{Name: "new", Kind: "heartbeat"},
	}}
	got := config.DiffTasks(oldCfg, newCfg)
	require.Equal(t, []string{"new"}, got.Added)
	require.Equal(t, []string{"drop"}, got.Removed)
	require.Equal(t, []string{"edit"}, got.Changed)
	require.True(t, config.DiffTasks(oldCfg, oldCfg).Empty())

	sections, _ := config.SummarizeConfigChange(oldCfg, newCfg)
	require.Equal(t, []string{"tasks"}, sections)
}

func TestManagerLoad(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "servicetask.yaml", sampleYAML)
	m := config.NewManager(path)

	rejected := errors.New("rejected")
	m.SetValidator(func(context.Context, *config.Config) error { return rejected })
	_, err := m.Load(t.Context())
	require.ErrorIs(t, err, rejected)
	require.Nil(t, m.Get())

	m.SetValidator(nil)
	cfg, err := m.Load(t.Context())
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())
}

func TestManagerWatch(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "servicetask.yaml", sampleYAML)
	m := config.NewManager(path)
	_, err := m.Load(t.Context())
	require.NoError(t, err)

	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	changed := sampleYAML + "  - name: second\n    kind: heartbeat\n    repeatable: false\n    retry_on_error: false\n"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))

	select {
	case cfg := <-updates:
		require.Len(t, cfg.Tasks, 2)
		require.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("config update not published")
	}
}
