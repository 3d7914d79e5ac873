// Package pipeline holds the cross-task coordination primitives shared
// by the four capture-pipeline components. It intentionally owns no
// business logic: every type here is a synchronization primitive.
package pipeline

import "sync"

// Signal is a level-triggered, set-once broadcast: once Set is called,
// every past and future receive on Done() returns immediately. Multiple
// calls to Set are safe and idempotent. This models the spec's
// "three named, single-setter broadcast signals" (§9) deliberately kept
// separate rather than collapsed into one context.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unset Signal, ready to use.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal as fired. Safe to call more than once or from
// multiple goroutines.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel that is closed once Set has been called.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// IsSet reports whether Set has already been called, without blocking.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Signals bundles the three orthogonal shutdown notifications the
// pipeline's components watch (spec §5 "Cancellation", §9's
// re-architecture note against conflating them):
//
//   - Sleep fires on any fatal escalation (watchdog expiry, interface
//     left monitor mode, upload error budget exceeded).
//   - SigInt fires once the root task observes an interrupt.
//   - CSVWriterExit is the handshake from CSV Batcher telling the
//     Uploader that no more work will ever arrive through normal flow.
//
// Keeping them distinct lets a worker distinguish "something upstream
// failed" from "the user asked us to stop" from "my producer is done",
// each of which drives a different local decision.
type Signals struct {
	Sleep         *Signal
	SigInt        *Signal
	CSVWriterExit *Signal
}

// NewSignals constructs a fresh, unset Signals bundle.
func NewSignals() *Signals {
	return &Signals{
		Sleep:         NewSignal(),
		SigInt:        NewSignal(),
		CSVWriterExit: NewSignal(),
	}
}

// ShuttingDown reports whether either a fatal condition or a user
// interrupt has requested shutdown. It does not consider CSVWriterExit,
// which is a narrower handshake between two specific components.
func (s *Signals) ShuttingDown() bool {
	return s.Sleep.IsSet() || s.SigInt.IsSet()
}
