package orchestrator

import (
	"math/rand"
	"time"
)

// retryDelay computes the exponential backoff for the given attempt number
// (1-based), with up to 20% jitter so retries spread out.
func retryDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}
