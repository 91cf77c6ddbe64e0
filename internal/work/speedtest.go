package work

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"
	"golang.org/x/sync/errgroup"

	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

// speedtest measures throughput against the lowest-latency nearby server.
// With params.min_download_mbps set, a slower result fails the iteration.
type speedtest struct {
	log         logx.Logger
	candidates  int
	connections int
	savingMode  bool
	minDownload float64
}

func newSpeedtest(p Params, log logx.Logger) (servicetask.Worker, error) {
	w := &speedtest{log: log, candidates: 5, connections: 4}
	if v := p.Get("servers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("params.servers: invalid %q", v)
		}
		w.candidates = n
	}
	if v := p.Get("connections"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("params.connections: invalid %q", v)
		}
		w.connections = n
	}
	if v := p.Get("saving_mode"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("params.saving_mode: invalid %q", v)
		}
		w.savingMode = b
	}
	if v := p.Get("min_download_mbps"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("params.min_download_mbps: invalid %q", v)
		}
		w.minDownload = f
	}
	return w, nil
}

func (w *speedtest) Execute(ctx context.Context) error {
	start := time.Now()
	// Avoid package-level helpers; the library keeps package-level state.
	stc := st.New(st.WithUserConfig(&st.UserConfig{
		SavingMode:     w.savingMode,
		MaxConnections: w.connections,
	}))
	stc.SetNThread(w.connections)
	defer stc.Reset()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	best, err := w.lowestLatency(ctx, servers[:min(w.candidates, len(servers))])
	if err != nil {
		return err
	}

	if err := best.DownloadTestContext(ctx); err != nil {
		return fmt.Errorf("download test: %w", err)
	}
	if err := best.UploadTestContext(ctx); err != nil {
		return fmt.Errorf("upload test: %w", err)
	}

	dl := best.DLSpeed.Mbps()
	w.log.Info("speedtest finished",
		logx.String("isp", user.Isp),
		logx.String("server", best.Sponsor),
		logx.String("country", best.Country),
		logx.Any("download_mbps", dl),
		logx.Any("upload_mbps", best.ULSpeed.Mbps()),
		logx.Duration("ping", best.Latency),
		logx.Duration("took", time.Since(start)),
	)
	if w.minDownload > 0 && dl < w.minDownload {
		return fmt.Errorf("download %.2f Mbps below %.2f Mbps", dl, w.minDownload)
	}
	return nil
}

// lowestLatency pings every candidate and returns the fastest responder.
func (w *speedtest) lowestLatency(ctx context.Context, candidates []*st.Server) (*st.Server, error) {
	var (
		mu     sync.Mutex
		pinged []*st.Server
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, s := range candidates {
		g.Go(func() error {
			if err := s.PingTestContext(gctx, nil); err != nil || s.Latency <= 0 {
				// One unreachable server is not fatal.
				return nil
			}
			mu.Lock()
			pinged = append(pinged, s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pinged) == 0 {
		return nil, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool { return pinged[i].Latency < pinged[j].Latency })
	return pinged[0], nil
}
