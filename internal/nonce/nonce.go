package nonce

import (
	"sync"
	"time"
)

// Provider returns nonces for signed requests. Each call must return a value
// greater than every previous one for the same API key.
type Provider interface {
	Nonce() uint64
}

// Increasing issues millisecond timestamps, bumped by one whenever the clock
// has not moved past the previous nonce.
type Increasing struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func NewIncreasing() *Increasing {
	return &Increasing{now: time.Now}
}

func (p *Increasing) Nonce() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := uint64(p.now().UnixMilli())
	if n <= p.last {
		n = p.last + 1
	}
	p.last = n
	return n
}
