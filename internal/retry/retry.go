// Package retry re-runs warehouse statements that fail transiently.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config holds the backoff schedule.
type Config struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DefaultConfig returns sensible defaults. Retries are off unless
// MaxRetries is set; a re-run is the normal recovery path.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        0,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	return cfg
}

// Backoff computes exponential backoff with +/-25% jitter for the given
// attempt, starting at 1.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}

	backoff := base + base*0.25*(2*rand.Float64()-1)
	if backoff < 0 {
		backoff = 0
	}
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Notify is called before each retry with the attempt about to run.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs fn until it succeeds, returns a permanent error, the context ends
// or the retries are used up. The last error is returned.
func Do(ctx context.Context, cfg Config, notify Notify, fn func(ctx context.Context) error) error {
	cfg = ApplyDefaults(cfg)

	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := Backoff(attempt, cfg)
			if notify != nil {
				notify(attempt, err, wait)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}
	}
}
