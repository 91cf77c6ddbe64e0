// Package metrics exposes executor counters in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "servicetask/pkg/logx"
)

// Source is one executor seen by the collector.
type Source interface {
	Name() string
	Executions() int64
	Errors() int64
	Running() bool
}

var (
	descExecutions = prometheus.NewDesc(
		"servicetask_executions",
		"Iterations started by the current or last run of the task.",
		[]string{"task"}, nil,
	)
	descErrors = prometheus.NewDesc(
		"servicetask_errors",
		"Failed iterations of the current or last run of the task.",
		[]string{"task"}, nil,
	)
	descRunning = prometheus.NewDesc(
		"servicetask_running",
		"1 while the task loop is active.",
		[]string{"task"}, nil,
	)
)

// Collector reads counters from the registered sources on every scrape.
// The executor counters reset on Start, so they are exported as gauges.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewCollector() *Collector {
	return &Collector{sources: map[string]Source{}}
}

// Set registers src under its name, replacing a previous source.
func (c *Collector) Set(src Source) {
	c.mu.Lock()
	c.sources[src.Name()] = src
	c.mu.Unlock()
}

func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.sources, name)
	c.mu.Unlock()
}

// Names returns the registered source names, sorted.
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sources))
	for name := range c.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descExecutions
	ch <- descErrors
	ch <- descRunning
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, src := range c.sources {
		running := 0.0
		if src.Running() {
			running = 1
		}
		ch <- prometheus.MustNewConstMetric(descExecutions, prometheus.GaugeValue, float64(src.Executions()), name)
		ch <- prometheus.MustNewConstMetric(descErrors, prometheus.GaugeValue, float64(src.Errors()), name)
		ch <- prometheus.MustNewConstMetric(descRunning, prometheus.GaugeValue, running, name)
	}
}

// NewRegistry returns a dedicated registry with c plus the Go runtime and
// process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg at path and a plain /healthz.
func Handler(reg *prometheus.Registry, path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Server is the metrics HTTP listener.
type Server struct {
	log logx.Logger
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and serves h in the background.
func Listen(addr string, h http.Handler, log logx.Logger) (*Server, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		log: log,
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", logx.Err(err))
		}
	}()
	log.Info("metrics listening", logx.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the bound address (useful with port 0).
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
