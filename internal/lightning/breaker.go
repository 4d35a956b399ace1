package lightning

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("lightning: gateway circuit open")

// breaker trips after enough consecutive gateway failures and lets a
// probe request through once the cooldown elapses. It keeps webhook and
// invoice handlers from piling up on a dead LNbits node.
type breaker struct {
	mu            sync.Mutex
	failures      int
	maxFailures   int
	cooldown      time.Duration
	openedAt      time.Time
	open          bool
	halfOpen      bool
	probeInFlight bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if time.Since(b.openedAt) < b.cooldown {
		return ErrBreakerOpen
	}
	if b.probeInFlight {
		return ErrBreakerOpen
	}
	b.halfOpen = true
	b.probeInFlight = true
	return nil
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halfOpen {
		b.probeInFlight = false
		if err == nil {
			b.open = false
			b.halfOpen = false
			b.failures = 0
			return
		}
		b.openedAt = time.Now()
		return
	}

	if err == nil {
		b.failures = 0
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.open = true
		b.openedAt = time.Now()
	}
}
