package checker

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/spadilla89/proxy-universe/internal/domain"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 15
)

// Dialer opens the TCP connection used as a liveness probe.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProgressFunc receives (completed, total) after every finished probe.
type ProgressFunc func(completed, total int)

type Option func(*Validator)

func WithDialer(d Dialer) Option {
	return func(v *Validator) { v.dialer = d }
}

// WithRetries sets how many extra connection attempts a failed probe gets.
func WithRetries(retries int) Option {
	return func(v *Validator) {
		if retries > 0 {
			v.retries = retries
		}
	}
}

// Validator checks that a proxy's port accepts TCP connections. It does not
// tunnel any traffic through the proxy.
type Validator struct {
	timeout     time.Duration
	concurrency int
	retries     int
	dialer      Dialer
}

func NewValidator(timeout time.Duration, concurrency int, opts ...Option) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	v := &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		dialer:      &net.Dialer{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Concurrency() int {
	return v.concurrency
}

// ValidateOne probes a single proxy and returns the updated copy. Every kind
// of connection failure is reported as a failed record.
func (v *Validator) ValidateOne(ctx context.Context, proxy domain.Proxy) domain.Proxy {
	elapsed, attempt, err := v.checkWithRetries(ctx, proxy)
	if err != nil {
		log.Debug("Proxy probe failed", "proxy", proxy.GetFullProxy(), "attempts", attempt, "err", err)
		return proxy.WithValidation(false, 0)
	}
	return proxy.WithValidation(true, int(elapsed.Milliseconds()))
}

func (v *Validator) checkWithRetries(ctx context.Context, proxy domain.Proxy) (time.Duration, int, error) {
	var (
		elapsed time.Duration
		err     error
	)
	for attempt := 0; attempt <= v.retries; attempt++ {
		elapsed, err = v.probe(ctx, proxy)
		if err == nil || ctx.Err() != nil {
			return elapsed, attempt + 1, err
		}
	}
	return elapsed, v.retries + 1, err
}

func (v *Validator) probe(ctx context.Context, proxy domain.Proxy) (time.Duration, error) {
	dialCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	address := net.JoinHostPort(proxy.GetIp(), strconv.Itoa(int(proxy.Port)))

	start := time.Now()
	conn, err := v.dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()

	return elapsed, nil
}

// ValidateMany probes proxies in chunks of the configured concurrency; a
// chunk must finish before the next one starts. onProgress is called once per
// completed probe with a strictly increasing count. The result keeps the
// input order.
func (v *Validator) ValidateMany(ctx context.Context, proxies []domain.Proxy, onProgress ProgressFunc) []domain.Proxy {
	total := len(proxies)
	results := make([]domain.Proxy, total)
	start := time.Now()

	var (
		mu        sync.Mutex
		completed int
	)

	for chunkStart := 0; chunkStart < total; chunkStart += v.concurrency {
		chunkEnd := min(chunkStart+v.concurrency, total)

		var g errgroup.Group
		for i := chunkStart; i < chunkEnd; i++ {
			g.Go(func() error {
				results[i] = v.ValidateOne(ctx, proxies[i])

				mu.Lock()
				completed++
				if onProgress != nil {
					onProgress(completed, total)
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	working, failed := Summarize(results)
	log.Info("Validation finished", "total", total, "working", working, "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))

	return results
}

// Summarize counts working and failed records; unchecked ones count as neither.
func Summarize(proxies []domain.Proxy) (working, failed int) {
	for _, proxy := range proxies {
		ok, known := proxy.IsWorking()
		switch {
		case ok:
			working++
		case known:
			failed++
		}
	}
	return working, failed
}
