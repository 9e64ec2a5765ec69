package worker

import "time"

// backoffExponentCap limits transient-failure backoff to 2^6 units.
const backoffExponentCap = 6

// TransientBackoff returns the pause after the given delivery attempt
// (1-based) failed with a transport error: 2^min(attempt-1, 6) units.
func TransientBackoff(attempt int, unit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if unit <= 0 {
		unit = time.Second
	}
	exp := attempt - 1
	if exp > backoffExponentCap {
		exp = backoffExponentCap
	}
	return unit * (1 << exp)
}

// RateLimitDelay honors the server-specified wait with a floor, so a 429
// without Retry-After still backs off.
func RateLimitDelay(retryAfter, floor time.Duration) time.Duration {
	if floor <= 0 {
		floor = time.Second
	}
	if retryAfter > floor {
		return retryAfter
	}
	return floor
}
