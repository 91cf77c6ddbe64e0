package work

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "servicetask/pkg/logx"
)

func TestKnownKinds(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"command", "heartbeat", "http", "speedtest", "unit"}, Kinds())
	require.True(t, Known(" Heartbeat "))
	require.False(t, Known("ftp"))

	_, err := Build("ftp", nil, logx.Nop())
	require.ErrorContains(t, err, `unknown task kind "ftp"`)
}

func TestBuildRejectsBadParams(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		kind     string
		params   map[string]string
	}{
		{"command_no_path", "command", nil},
		{"command_bad_timeout", "command", map[string]string{"path": "true", "timeout": "soon"}},
		{"http_no_url", "http", nil},
		{"http_bad_scheme", "http", map[string]string{"url": "ftp://example.com"}},
		{"speedtest_bad_servers", "speedtest", map[string]string{"servers": "0"}},
		{"speedtest_bad_threshold", "speedtest", map[string]string{"min_download_mbps": "fast"}},
		{"unit_no_name", "unit", nil},
		{"unit_bad_restart", "unit", map[string]string{"unit": "nginx", "restart": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := Build(tc.kind, tc.params, logx.Nop())
			require.Error(t, err)
		})
	}
}

func TestUnitParams(t *testing.T) {
	t.Parallel()
	w, err := Build("unit", map[string]string{"unit": "nginx", "restart": "true", "restart_timeout": "5s"}, logx.Nop())
	require.NoError(t, err)
	u := w.(*unitCheck)
	require.Equal(t, "nginx.service", u.unit)
	require.True(t, u.restart)
	require.Equal(t, 5*time.Second, u.restartTimeout)

	w, err = Build("unit", map[string]string{"unit": "backup.timer"}, logx.Nop())
	require.NoError(t, err)
	require.Equal(t, "backup.timer", w.(*unitCheck).unit)
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	w, err := Build("heartbeat", map[string]string{"message": "tick"}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Execute(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, w.Execute(ctx), context.Canceled)

	failing, err := Build("heartbeat", map[string]string{"fail": "induced"}, logx.Nop())
	require.NoError(t, err)
	require.EqualError(t, failing.Execute(t.Context()), "induced")
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			http.Error(w, "nope", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ok, err := Build("http", map[string]string{"url": srv.URL + "/up", "timeout": "2s"}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, ok.Execute(t.Context()))

	down, err := Build("http", map[string]string{"url": srv.URL + "/down"}, logx.Nop())
	require.NoError(t, err)
	require.ErrorContains(t, down.Execute(t.Context()), "unexpected status 503")
}

func TestHTTPProbeCancelled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	w, err := Build("http", map[string]string{"url": srv.URL}, logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	err = w.Execute(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestCommand(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	ok, err := Build("command", map[string]string{"path": "sh", "args": "-c true"}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, ok.Execute(t.Context()))

	fail, err := Build("command", map[string]string{"path": "sh", "args": "-c false"}, logx.Nop())
	require.NoError(t, err)
	require.ErrorContains(t, fail.Execute(t.Context()), "exit status 1")

	slow, err := Build("command", map[string]string{"path": "sleep", "args": "5", "timeout": "50ms"}, logx.Nop())
	require.NoError(t, err)
	start := time.Now()
	require.Error(t, slow.Execute(t.Context()))
	require.Less(t, time.Since(start), 3*time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, slow.Execute(ctx), context.Canceled)
}
