package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/metrics"
)

// Result is the admission decision for one request
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Err is ErrRateLimited for a rejected request
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, r.RetryAfter)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header
func (r Result) RetryAfterSeconds() int64 {
	secs := int64(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return max(secs, 1)
}

// Limiter is the admission gate shared by all routes
type Limiter struct {
	store    Store
	rules    map[string]Rule
	identify *Identifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Limiter)

func WithIdentifier(id *Identifier) Option {
	return func(l *Limiter) {
		l.identify = id
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(store Store, rules []Rule, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		rules:    make(map[string]Rule, len(rules)),
		identify: defaultIdentifier,
		now:      time.Now,
	}
	for _, r := range rules {
		l.rules[r.Name] = r
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Identify derives the client key of a request
func (l *Limiter) Identify(r *http.Request) string {
	return l.identify.ClientIdentity(r)
}

func (l *Limiter) Rule(name string) (Rule, bool) {
	r, ok := l.rules[name]
	return r, ok
}

// CheckAndConsume counts one request of key against the named rule.
// It fails open: an unknown rule or a store failure is logged and the request is allowed.
func (l *Limiter) CheckAndConsume(ctx context.Context, key, ruleName string) Result {
	rule, ok := l.rules[ruleName]
	if !ok {
		slog.Error("ratelimit unknown rule", "rule", ruleName)
		return Result{Allowed: true}
	}

	now := l.now()
	entry, err := l.store.Consume(ctx, key, rule, now)
	if err != nil {
		l.metrics.LimiterError()
		slog.Warn("ratelimit store failed, allowing request", "rule", rule.Name, "key", key, "error", err)
		return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, ResetAt: now.Add(rule.Period)}
	}

	res := Result{
		Allowed:   !entry.Blocked,
		Limit:     rule.Limit,
		Remaining: max(rule.Limit-entry.Count, 0),
		ResetAt:   entry.ResetAt,
	}
	if entry.Blocked {
		res.Remaining = 0
		res.RetryAfter = max(entry.ResetAt.Sub(now), 0)
		l.metrics.RateLimited(rule.Name)
	}
	return res
}
