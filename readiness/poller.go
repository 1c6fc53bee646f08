package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PollTarget is one (host, port) endpoint plus its poll budget. Immutable
// once constructed.
type PollTarget struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Interval time.Duration
}

func NewPollTarget(host string, port int, cfg *common.ReadinessConfig) PollTarget {
	t := PollTarget{
		Host:     host,
		Port:     port,
		Timeout:  common.DefaultReadinessTimeout,
		Interval: common.DefaultReadinessInterval,
	}
	if cfg != nil {
		t.Timeout = cfg.Timeout.WithDefault(common.DefaultReadinessTimeout)
		t.Interval = cfg.Interval.WithDefault(common.DefaultReadinessInterval)
	}
	return t
}

func (t PollTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

type Poller struct {
	logger *zerolog.Logger

	// dial is swappable in tests.
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

func NewPoller(logger *zerolog.Logger) *Poller {
	return &Poller{
		logger: logger,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// WaitForPort attempts a raw TCP connection to the target every Interval
// until one is accepted or Timeout elapses. It returns immediately on the
// first accepted connection and ErrReadinessTimeout once the budget is
// spent. At most ceil(Timeout/Interval) attempts are made.
func (p *Poller) WaitForPort(ctx context.Context, target PollTarget) error {
	return p.wait(ctx, target, func(dialTimeout time.Duration) bool {
		conn, err := p.dial(target.Addr(), dialTimeout)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	})
}

// WaitForHTTP polls an HTTP GET on the target's path until it answers 200.
// Useful for gateways that accept TCP connections before they can serve.
func (p *Poller) WaitForHTTP(ctx context.Context, target PollTarget, path string) error {
	client := &http.Client{Timeout: target.Interval}
	url := fmt.Sprintf("http://%s%s", target.Addr(), path)
	return p.wait(ctx, target, func(time.Duration) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})
}

// WaitForAll polls every target concurrently and returns the first failure,
// for callers that want the grpc and api ports checked in one shot.
func (p *Poller) WaitForAll(ctx context.Context, targets ...PollTarget) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return p.WaitForPort(gctx, target)
		})
	}
	return g.Wait()
}

func (p *Poller) wait(ctx context.Context, target PollTarget, probe func(dialTimeout time.Duration) bool) error {
	portLabel := strconv.Itoa(target.Port)
	start := time.Now()

	attempts := 0
	for {
		attempts++
		telemetry.MetricReadinessAttemptTotal.WithLabelValues(target.Host, portLabel).Inc()
		if probe(target.Interval) {
			p.logger.Debug().
				Str("addr", target.Addr()).
				Int("attempts", attempts).
				Msg("endpoint is accepting connections")
			return nil
		}

		// Sleep no further than the deadline, so exhaustion is reported at
		// budget expiry and never before.
		remaining := target.Timeout - time.Since(start)
		if remaining <= 0 {
			telemetry.MetricReadinessTimeoutTotal.WithLabelValues(target.Host, portLabel).Inc()
			return common.NewErrReadinessTimeout(target.Host, target.Port, attempts)
		}
		sleep := target.Interval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		if time.Since(start) >= target.Timeout {
			telemetry.MetricReadinessTimeoutTotal.WithLabelValues(target.Host, portLabel).Inc()
			return common.NewErrReadinessTimeout(target.Host, target.Port, attempts)
		}
	}
}
