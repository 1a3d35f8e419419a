package client

import "time"

// Policy computes reconnection backoff. It is pure: the Manager owns
// the attempt counter and asks the policy what to do with it.
type Policy struct {
	// BaseDelay is the floor of the backoff curve and the delay used
	// by manual Reconnect. Default: 1 second.
	BaseDelay time.Duration

	// MaxDelay caps the backoff curve. Default: 5 seconds.
	MaxDelay time.Duration

	// MaxAttempts is the number of consecutive failures after which
	// automatic retries stop. Default: 5.
	MaxAttempts int
}

// DefaultPolicy returns the backoff policy used when none is
// configured: 1s base, 5s cap, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 5,
	}
}

// NextDelay returns the wait before retry number attempt:
// BaseDelay * 2^attempt, clamped to [BaseDelay, MaxDelay].
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d < p.BaseDelay {
		return p.BaseDelay
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether another automatic attempt is allowed
// after attempt consecutive failures.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
