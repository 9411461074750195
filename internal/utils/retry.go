package utils

import (
	"fmt"
	"time"

	"alert-engine/internal/logging"
)

// Retry runs fn up to maxAttempts times with a fixed delay between attempts,
// labelling log lines and the final error with op. This is for short
// in-process retries inside a single adapter call; bounded cross-attempt
// redelivery is the engine's retry manager.
func Retry(logger *logging.Logger, op string, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Warnf("%s attempt %d/%d failed: %v", op, attempt, maxAttempts, err)
			if attempt < maxAttempts {
				time.Sleep(delay)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxAttempts, lastErr)
}
