// Package retry provides bounded retries with jittered backoff for transient
// network failures.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches the instrument-fetch defaults.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 800 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
}

// Do runs fn until it succeeds, the error is permanent, retries are
// exhausted, or ctx is canceled. Only transient-looking errors are retried.
func Do(ctx context.Context, logger *logrus.Logger, cfg Config, op string, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsTransient(lastErr) || attempt == cfg.MaxRetries {
			break
		}

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			}).Warnf("transient error, retrying: %v", lastErr)
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempt(s): %w", op, cfg.MaxRetries+1, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// IsTransient reports whether err looks like a temporary network or server
// failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
