// Package ratelimit is a per-identity, per-endpoint sliding-window admission
// gate for the payment endpoints.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"festpass/internal/metrics"
)

const (
	DefaultWindow = 15 * time.Minute
	DefaultQuota  = 10
)

type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// Degraded is set when the store failed and the fail policy decided.
	Degraded bool `json:"-"`
}

// RetryAfter is the whole seconds until the oldest counted request leaves the window.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}

// Store records admissions for a key. Allow must purge entries older than
// now-window, deny without recording when the count is at limit, and otherwise
// record one entry and allow.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

type Limiter struct {
	store    Store
	window   time.Duration
	quota    int
	failOpen bool
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

func WithQuota(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.quota = n
		}
	}
}

// WithFailOpen sets the policy applied when the store errors: admit (true)
// or reject (false).
func WithFailOpen(open bool) Option {
	return func(l *Limiter) { l.failOpen = open }
}

func WithLogger(log *zerolog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(store Store, opts ...Option) *Limiter {
	nop := zerolog.Nop()
	l := &Limiter{
		store:    store,
		window:   DefaultWindow,
		quota:    DefaultQuota,
		failOpen: true,
		log:      &nop,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func Key(identity, endpoint string) string {
	return "ratelimit:" + endpoint + ":" + identity
}

// Admit charges one request for (identity, endpoint). A store error is not
// returned: it is logged and resolved by the configured fail policy.
func (l *Limiter) Admit(ctx context.Context, identity, endpoint string) Result {
	res, err := l.store.Allow(ctx, Key(identity, endpoint), l.quota, l.window)
	if err == nil {
		if !res.Allowed {
			l.metrics.RateLimited(endpoint)
		}
		return res
	}

	policy := "closed"
	if l.failOpen {
		policy = "open"
	}
	l.metrics.RateLimitBackendError(policy)
	l.log.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Str("policy", policy).
		Msg("rate limiter store unavailable")

	return Result{
		Allowed:   l.failOpen,
		Limit:     l.quota,
		Remaining: 0,
		ResetAt:   time.Now().Add(l.window),
		Degraded:  true,
	}
}

func (l *Limiter) Quota() int { return l.quota }
func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) FailOpen() bool { return l.failOpen }
