package bybit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig is the backoff policy for market requests
type RetryConfig struct {
	MaxRetries    int           `json:"maxRetries"`
	InitialDelay  time.Duration `json:"initialDelay"`
	MaxDelay      time.Duration `json:"maxDelay"`
	BackoffFactor float64       `json:"backoffFactor"`
	Jitter        float64       `json:"jitter"` // fraction of the delay, 0 disables
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.1,
	}
}

// RetryWithConfig runs fn until it succeeds, returns a non-transient error,
// or the attempts run out. Auth failures return on the first attempt.
func (c *Client) RetryWithConfig(ctx context.Context, fn func() error, config RetryConfig) error {
	var err error
	attempt := 0
	for ; attempt <= config.MaxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if IsAuthError(err) {
			return fmt.Errorf("credentials rejected: %w", err)
		}
		if !IsTransient(err) || attempt == config.MaxRetries {
			break
		}

		timer := time.NewTimer(config.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if attempt > 0 {
		return fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
	}
	return err
}

func (config RetryConfig) backoff(attempt int) time.Duration {
	d := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if config.MaxDelay > 0 && d > config.MaxDelay {
		d = config.MaxDelay
	}
	if config.Jitter > 0 {
		d += time.Duration(float64(d) * config.Jitter * (2*rand.Float64() - 1))
	}
	return d
}
