package spawn

import (
	"sync"

	"github.com/rs/zerolog"
)

// notifier runs callbacks one at a time, in the order they were posted, on
// its own goroutine. Posting never blocks, so it is safe under Client.mu.
type notifier struct {
	logger zerolog.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier(logger zerolog.Logger) *notifier {
	n := &notifier{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) post(fn func()) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, fn)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for {
		stop := false
		select {
		case <-n.wake:
		case <-n.done:
			stop = true
		}
		n.drain()
		if stop {
			return
		}
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		n.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			n.call(fn)
		}
	}
}

func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().Interface("panic", r).Msg("callback panicked")
		}
	}()
	fn()
}

// close lets the goroutine deliver what is already posted, then stop.
// Callbacks posted afterwards are dropped.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()
	close(n.done)
}
