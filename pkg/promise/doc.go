// Package promise provides the single-fire completion handle used by every
// asynchronous operation in the client runtime.
//
// A Promise starts pending and moves to exactly one terminal state:
//
//	pending ──Succeed(v)──▶ succeeded
//	   │
//	   └──────Fail(err)───▶ failed
//
// The transition is decided by a compare-and-set, so timers, cancellations and
// I/O completions may race to complete the same promise; the first caller wins
// and every later call is dropped. The continuation passed to New runs at most
// once, on the goroutine of the winning caller.
//
// Callers never block on a promise. Code that needs the outcome either
// registers a continuation at creation time or selects on Done.
package promise
