package yolo

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultPoolSize   = 4
	acquireTimeout    = 5 * time.Second
	healthCheckPeriod = 60 * time.Second
)

// ErrSessionTimeout is returned when every pooled session stays busy for
// the whole acquire window.
var ErrSessionTimeout = errors.New("timed out waiting for an available inference session")

// ErrPoolClosed is returned by Acquire after Destroy.
var ErrPoolClosed = errors.New("session pool is closed")

type sessionFactory func() (*modelSession, error)

// sessionPool hands out pre-built model sessions. Sessions lost to
// failures are recreated by a background replenish loop.
type sessionPool struct {
	sessions chan *modelSession
	size     int
	factory  sessionFactory

	mu         sync.Mutex
	closed     bool
	lastErrors []error

	metrics poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time snapshot of pool activity.
type PoolStats struct {
	Size            int   `json:"size"`
	InUse           int   `json:"in_use"`
	TotalAcquired   int64 `json:"total_acquired"`
	TotalReleased   int64 `json:"total_released"`
	AcquireFailures int64 `json:"acquire_failures"`
}

func newSessionPool(size int, factory sessionFactory) (*sessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &sessionPool{
		sessions: make(chan *modelSession, size),
		size:     size,
		factory:  factory,
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, err
		}
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *sessionPool) Acquire(ctx context.Context) (*modelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case session := <-p.sessions:
		if session == nil {
			// Channel closed by a concurrent Destroy.
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-time.After(acquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ErrSessionTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sessionPool) Release(session *modelSession) {
	// The closed check and the send have to happen under the same lock,
	// or a concurrent Destroy can close the channel between them.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		session.Destroy()
		return
	}

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.sessions <- session
}

func (p *sessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *sessionPool) healthCheck() {
	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}

		// Sessions checked out by in-flight calls are not missing, only
		// ones lost to failed releases.
		p.metrics.mu.RLock()
		inUse := p.metrics.inUse
		p.metrics.mu.RUnlock()
		if missing := p.size - len(p.sessions) - inUse; missing > 0 {
			p.replenishSessions(missing)
		}
	}
}

func (p *sessionPool) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}
		p.sessions <- session
	}
}

func (p *sessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *sessionPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
	}
}
