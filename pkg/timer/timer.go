// Package timer provides single-shot delayed completion of promises, used
// for retry backoff and expiry.
//
// A timer is either fired (its promise succeeds) or cancelled (its promise
// fails with ErrCancelled). Both are terminal. When expiry and cancellation
// race, the promise's own compare-and-set decides the winner; the service
// never serialises the two.
package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

// Timer errors.
var (
	// ErrCancelled is the cause of a promise failed by Cancel.
	ErrCancelled = errors.New("timer cancelled")

	// ErrStopped is the cause of a promise scheduled after Stop.
	ErrStopped = errors.New("timer service stopped")
)

// Timer outcomes as recorded in protocol log events.
const (
	OutcomeScheduled = "SCHEDULED"
	OutcomeFired     = "FIRED"
	OutcomeCancelled = "CANCELLED"
)

// TimerService schedules single-shot completions.
// Implemented by Service.
type TimerService interface {
	// Schedule completes p successfully once delay has elapsed. The promise
	// is completed from a timer goroutine, never from the caller.
	Schedule(delay time.Duration, p *promise.Promise[struct{}])

	// Cancel fails p with ErrCancelled if it has not fired yet. Cancelling a
	// promise that was never scheduled or already completed has no effect.
	Cancel(p *promise.Promise[struct{}])
}

// Config configures a timer Service.
type Config struct {
	// ProtocolLogger receives timer events (default: NoopLogger).
	ProtocolLogger log.Logger
}

// entry tracks one scheduled promise.
type entry struct {
	delay time.Duration
	timer atomic.Pointer[time.Timer]
}

// Service is a TimerService backed by runtime timers.
type Service struct {
	logger  log.Logger
	pending sync.Map // *promise.Promise[struct{}] -> *entry
	count   atomic.Int64
	stopped atomic.Bool
}

// NewService creates a timer service.
func NewService(cfg Config) *Service {
	return &Service{logger: log.OrNoop(cfg.ProtocolLogger)}
}

// Schedule implements TimerService. Scheduling a promise that is already
// scheduled or completed is a no-op.
func (s *Service) Schedule(delay time.Duration, p *promise.Promise[struct{}]) {
	if p == nil || p.IsDone() {
		return
	}
	if s.stopped.Load() {
		p.Fail(clienterr.Cancelled("schedule", ErrStopped))
		return
	}

	e := &entry{delay: delay}
	if _, loaded := s.pending.LoadOrStore(p, e); loaded {
		return
	}
	s.count.Add(1)
	s.logEvent(delay, OutcomeScheduled)

	e.timer.Store(time.AfterFunc(delay, func() {
		s.forget(p)
		if p.Succeed(struct{}{}) {
			s.logEvent(delay, OutcomeFired)
		}
	}))
}

// ScheduleMillis schedules p after delay milliseconds.
func (s *Service) ScheduleMillis(delay int64, p *promise.Promise[struct{}]) {
	s.Schedule(time.Duration(delay)*time.Millisecond, p)
}

// Cancel implements TimerService.
func (s *Service) Cancel(p *promise.Promise[struct{}]) {
	if p == nil {
		return
	}
	v, ok := s.pending.LoadAndDelete(p)
	if !ok {
		return
	}
	s.count.Add(-1)
	e := v.(*entry)
	if t := e.timer.Load(); t != nil {
		t.Stop()
	}
	if p.Fail(clienterr.Cancelled("timer", ErrCancelled)) {
		s.logEvent(e.delay, OutcomeCancelled)
	}
}

// Pending returns the number of scheduled timers that have neither fired
// nor been cancelled.
func (s *Service) Pending() int {
	return int(s.count.Load())
}

// Stop cancels every pending timer. Promises scheduled afterwards fail
// immediately with ErrStopped.
func (s *Service) Stop() {
	s.stopped.Store(true)
	s.pending.Range(func(key, _ any) bool {
		s.Cancel(key.(*promise.Promise[struct{}]))
		return true
	})
}

// forget removes p from the registry, reporting whether this call removed it.
func (s *Service) forget(p *promise.Promise[struct{}]) bool {
	if _, ok := s.pending.LoadAndDelete(p); ok {
		s.count.Add(-1)
		return true
	}
	return false
}

func (s *Service) logEvent(delay time.Duration, outcome string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTimer,
		Category:  log.CategoryTimer,
		Timer: &log.TimerEvent{
			Delay:   delay,
			Outcome: outcome,
		},
	})
}

var _ TimerService = (*Service)(nil)
