package remote

import (
	"context"
	"sync"
)

// pending counts writes in flight and wakes waiters when the count drops
// to zero. Unlike sync.WaitGroup it may be waited on while new writes start.
type pending struct {
	mu      sync.Mutex
	n       int
	waiters []chan struct{}
}

func (p *pending) begin() {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
}

func (p *pending) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n--
	if p.n > 0 {
		return
	}
	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil
}

func (p *pending) wait(ctx context.Context) error {
	p.mu.Lock()
	if p.n == 0 {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
