package spawn

import "time"

// ReconnectPolicy decides whether and when to attempt the next reconnect.
type ReconnectPolicy struct {
	// MaxAttempts is the number of consecutive automatic attempts allowed.
	MaxAttempts int
	// BaseDelay is the delay before the first attempt.
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// Delay returns the wait before the given attempt.
// attempt is 1-based: attempt 1 waits BaseDelay, attempt 2 waits twice that.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether another attempt is allowed after made attempts.
func (p ReconnectPolicy) ShouldRetry(made int) bool {
	return made < p.MaxAttempts
}

func (c Config) policy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: c.MaxReconnectAttempts,
		BaseDelay:   c.BaseReconnectDelay,
		MaxDelay:    c.MaxReconnectDelay,
	}
}
