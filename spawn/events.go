package spawn

import "time"

// ReconnectEvent is emitted each time an automatic attempt is scheduled.
type ReconnectEvent struct {
	Attempt int           // 1-based
	Delay   time.Duration // wait before the attempt
	Cause   error         // failure that triggered it
}
