package promise

import (
	"errors"
	"sync/atomic"
)

// ErrPending is returned by Result while the promise has not completed.
var ErrPending = errors.New("promise pending")

// State is the completion state of a promise.
type State int32

const (
	// StatePending indicates no completion has taken effect yet.
	StatePending State = iota

	// stateCompleting is held by the winning caller while it publishes the result.
	stateCompleting

	// StateSucceeded indicates Succeed won.
	StateSucceeded

	// StateFailed indicates Fail won.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending, stateCompleting:
		return "PENDING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Promise is a single-fire completion handle.
// The zero value is not usable; create promises with New.
type Promise[T any] struct {
	state      atomic.Int32
	done       chan struct{}
	onComplete func(value T, err error)

	// Written once by the winner before done is closed.
	value T
	err   error
}

// New creates a pending promise. onComplete, if non-nil, runs at most once
// with the winning result.
func New[T any](onComplete func(value T, err error)) *Promise[T] {
	return &Promise[T]{
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
}

// Succeed completes the promise with value. It reports whether this call
// determined the outcome.
func (p *Promise[T]) Succeed(value T) bool {
	return p.complete(StateSucceeded, value, nil)
}

// Fail completes the promise with err. It reports whether this call
// determined the outcome. A failed promise always carries a non-nil cause.
func (p *Promise[T]) Fail(err error) bool {
	if err == nil {
		err = errNilFailure
	}
	var zero T
	return p.complete(StateFailed, zero, err)
}

var errNilFailure = errors.New("promise failed without cause")

func (p *Promise[T]) complete(final State, value T, err error) bool {
	if !p.state.CompareAndSwap(int32(StatePending), int32(stateCompleting)) {
		return false
	}

	p.value = value
	p.err = err
	p.state.Store(int32(final))
	close(p.done)

	if p.onComplete != nil {
		p.onComplete(value, err)
	}
	return true
}

// State returns the current state.
func (p *Promise[T]) State() State {
	s := State(p.state.Load())
	if s == stateCompleting {
		return StatePending
	}
	return s
}

// IsDone reports whether the promise reached a terminal state.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the promise has completed.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome without blocking. While pending it returns
// ErrPending.
func (p *Promise[T]) Result() (T, error) {
	if !p.IsDone() {
		var zero T
		return zero, ErrPending
	}
	return p.value, p.err
}

// Chain returns a promise whose outcome is forwarded to next after being
// mapped by fn. It is a helper for adapting promise result types.
func Chain[T, U any](next *Promise[U], fn func(T) U) *Promise[T] {
	return New(func(value T, err error) {
		if err != nil {
			next.Fail(err)
			return
		}
		next.Succeed(fn(value))
	})
}
