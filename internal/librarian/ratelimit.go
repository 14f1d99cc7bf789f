package librarian

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/crate/internal/entity"
)

// Limiter spaces out provider calls with a token bucket. The clock and
// the sleep are injectable so tests run without waiting.
type Limiter struct {
	bucket *rate.Limiter
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock replaces the wall clock and sleep used by Wait.
func WithLimiterClock(now func() time.Time, sleep func(context.Context, time.Duration) error) LimiterOption {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// NewLimiter allows one call per interval with bursts of up to burst
// calls.
func NewLimiter(interval time.Duration, burst int, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		bucket: rate.NewLimiter(rate.Every(interval), max(burst, 1)),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := l.bucket.ReserveN(l.now(), 1)
	if !r.OK() {
		return errors.New("rate limit exceeds burst")
	}
	delay := r.DelayFrom(l.now())
	if delay <= 0 {
		return nil
	}
	if err := l.sleep(ctx, delay); err != nil {
		r.CancelAt(l.now())
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimited makes every call to p wait on l first.
func RateLimited(p Provider, l *Limiter) Provider {
	return &rateLimited{p: p, limiter: l}
}

type rateLimited struct {
	p       Provider
	limiter *Limiter
}

func (r *rateLimited) Name() string { return r.p.Name() }

func (r *rateLimited) Get(ctx context.Context, e entity.Entity, mode NetworkMode) (entity.Entity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.p.Get(ctx, e, mode)
}

func (r *rateLimited) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity, mode NetworkMode) ([]entity.Entity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.p.List(ctx, kind, relatedTo, mode)
}

func (r *rateLimited) Search(ctx context.Context, q SearchQuery, mode NetworkMode) ([]entity.Entity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.p.Search(ctx, q, mode)
}
