package helper

import (
	"context"
	"time"

	"research-assistant/internal/config"
	"research-assistant/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// CallPolicy bounds every outbound provider request: a timeout per attempt,
// a shared rate limit and a bounded exponential backoff between attempts.
type CallPolicy struct {
	Name          string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	Limiter       *rate.Limiter
}

// NewCallPolicy builds the policy for one provider, name is used as the metrics label
func NewCallPolicy(name string, cfg config.ProviderConfig) *CallPolicy {
	p := &CallPolicy{
		Name:          name,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

// Do runs fn until it succeeds, returns a permanent error or retries run out.
// Wrap an error with backoff.Permanent to stop retrying.
func (p *CallPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0

	operation := func() error {
		attempt++
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	if p.RetryInterval > 0 {
		eb.InitialInterval = p.RetryInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(0, p.MaxRetries))), ctx)

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("provider", p.Name).Int("attempt", attempt).Dur("wait", wait).Msg("Provider call failed, retrying")
	})
	metrics.ObserveProvider(p.Name, start, err)
	if err != nil {
		log.Debug().Err(err).Str("provider", p.Name).Int("attempts", attempt).Dur("elapsed", time.Since(start)).Msg("Provider call failed")
	}
	return err
}
