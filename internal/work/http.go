package work

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"servicetask/internal/servicetask"
	logx "servicetask/pkg/logx"
)

// httpProbe issues one request per iteration. Any non-2xx status fails it.
type httpProbe struct {
	log    logx.Logger
	client *http.Client
	method string
	url    string
}

func newHTTP(p Params, log logx.Logger) (servicetask.Worker, error) {
	raw := p.Get("url")
	if raw == "" {
		return nil, errors.New("params.url: required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("params.url: invalid %q", raw)
	}
	timeout, err := p.Duration("timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(p.Get("method"))
	if method == "" {
		method = http.MethodGet
	}
	return &httpProbe{
		log:    log,
		client: &http.Client{Timeout: timeout},
		method: method,
		url:    u.String(),
	}, nil
}

func (h *httpProbe) Execute(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %s", h.method, h.url, resp.Status)
	}
	h.log.Debug("probe ok",
		logx.String("url", h.url),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
