// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
)

type Task func(ctx context.Context) error

const defaultDrainGrace = 15 * time.Second

// Pool runs fire-and-forget units on their own goroutines. Units share a base
// context that is independent of any request and is cancelled only when
// Stop gives up waiting. maxConcurrent > 0 bounds how many run at once;
// extra units wait for a slot instead of being dropped.
type Pool struct {
	base     context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	inFlight atomic.Int64
	grace    time.Duration
	log      *zerolog.Logger
}

func NewPool(ctx context.Context, maxConcurrent int, log *zerolog.Logger) *Pool {
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := log.With().Str("component", "WorkerPool").Logger()
	p := &Pool{base: base, cancel: cancel, grace: defaultDrainGrace, log: &l}
	if maxConcurrent > 0 {
		p.sem = make(chan struct{}, maxConcurrent)
	}
	return p
}

// Go schedules task. It fails only after Stop was called.
func (p *Pool) Go(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrDispatcherClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if p.sem != nil {
			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-p.base.Done():
				// cancelled while queued: run anyway so the unit records its outcome
			}
		}
		p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("worker unit panicked")
			}
		}()
		if err := task(p.base); err != nil {
			p.log.Error().Err(err).Msg("worker unit error")
		}
	}()
	return nil
}

// InFlight reports units currently executing (not those waiting for a slot).
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Stop rejects new units and waits for running ones. When ctx expires first
// the shared context is cancelled and Stop waits up to the drain grace for
// units, queued ones included, to record their outcome and exit.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.log.Warn().Int("in_flight", p.InFlight()).Msg("stop deadline reached, cancelling running units")
		p.cancel()
		select {
		case <-done:
		case <-time.After(p.grace):
			p.log.Error().Int("in_flight", p.InFlight()).Msg("units still running after drain grace")
		}
		return ctx.Err()
	}
}
