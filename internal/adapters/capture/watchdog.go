package capture

import (
	"sync"
	"time"
)

// Watchdog implements the cross-platform equivalent of the spec's
// SIGALRM-based packet timeout (§4.3, §9): a timer goroutine that fires
// if no "kick" is observed within the timeout, rather than relying on
// signal delivery.
type Watchdog struct {
	timeout time.Duration

	mu       sync.Mutex
	lastKick time.Time
	fired    chan struct{}
	once     sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatchdog builds a Watchdog with the given timeout. Call Start to
// begin monitoring; Kick on every successful packet enqueue.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout:  timeout,
		lastKick: time.Now(),
		fired:    make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// Kick records a successful enqueue, resetting the timeout window.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	w.lastKick = time.Now()
	w.mu.Unlock()
}

// Start runs the monitoring loop in the calling goroutine; callers
// typically `go w.Start()`. It returns once Fired() or Stop() has been
// observed.
func (w *Watchdog) Start() {
	ticker := time.NewTicker(w.timeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			elapsed := time.Since(w.lastKick)
			w.mu.Unlock()
			if elapsed >= w.timeout {
				w.once.Do(func() { close(w.fired) })
				return
			}
		}
	}
}

// Fired returns a channel closed once the watchdog has detected a
// timeout.
func (w *Watchdog) Fired() <-chan struct{} {
	return w.fired
}

// Stop halts the monitoring loop without firing, used on clean shutdown.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
