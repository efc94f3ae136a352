package sandbox

import (
	"context"
	"sync"
	"time"
)

// Pool manages a pool of reusable runtimes. A runtime is reset before it
// goes back into the pool, so no script state crosses executions.
type Pool struct {
	config Config
	idle   chan *Runtime
	size   int
	mu     sync.RWMutex
	closed bool
}

// PoolStats is a point-in-time view of pool occupancy.
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates a pool of size runtimes, 4 when size is not positive.
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config: config,
		idle:   make(chan *Runtime, size),
		size:   size,
	}

	for i := 0; i < size; i++ {
		rt, err := New(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.idle <- rt
	}

	return pool, nil
}

// Acquire gets a runtime from the pool, waiting at most AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	wait := p.config.AcquireTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case rt := <-p.idle:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets the runtime and returns it to the pool.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		if fresh, err := New(p.config); err == nil {
			p.idle <- fresh
		}
		return err
	}

	select {
	case p.idle <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Execute runs script on a pooled runtime.
func (p *Pool) Execute(ctx context.Context, script Script) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(ctx, script)
}

// Generate calls generateData on a pooled runtime.
func (p *Pool) Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Generate(ctx, script, payload)
}

// Close closes pool and all runtimes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.idle)

	for rt := range p.idle {
		rt.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.idle),
		InUse:     p.size - len(p.idle),
		Closed:    p.closed,
	}
}
