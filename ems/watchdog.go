package ems

import (
	"sync"
	"time"
)

// WatchdogTimer is a stoppable, restartable single-shot timer, the Go
// translation of watchdog.py's WatchdogTimer: start/reset/stop remember the
// last-armed (timeout, handler) pair so Reset can re-arm identically, and
// Stop is synchronous — once it returns, the handler is guaranteed not to
// run again for the timer instance that was stopped.
type WatchdogTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	handler func()
	log     Logger
	armed   bool
	// generation is bumped by every arm and cancel; a firing timer runs its
	// handler only if the generation it was armed with is still current.
	generation uint64
}

// NewWatchdogTimer returns a timer not yet armed. Expiry with no handler
// installed is discarded until SetLogger gives it somewhere to go.
func NewWatchdogTimer() *WatchdogTimer {
	return &WatchdogTimer{log: nopLogger{}}
}

// SetLogger installs the sink fire() reports ErrWatchdogTimeout to when
// Start was given a nil handler. Driver calls this once, right after
// construction, so the fallback routes to the same Logger as everything
// else instead of crashing the process.
func (w *WatchdogTimer) SetLogger(log Logger) {
	if log == nil {
		log = nopLogger{}
	}
	w.mu.Lock()
	w.log = log
	w.mu.Unlock()
}

// Start arms the timer, cancelling any timer already running. If handler is
// nil, expiry logs ErrWatchdogTimeout instead of invoking a caller handler.
func (w *WatchdogTimer) Start(timeout time.Duration, handler func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	w.timeout = timeout
	w.handler = handler
	w.arm(timeout)
}

// Reset re-arms the timer with the most recently supplied timeout/handler.
// It is an error to Reset a timer that was never Started.
func (w *WatchdogTimer) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout == 0 && w.handler == nil {
		return ErrWatchdogNotArmed
	}
	w.cancelLocked()
	w.arm(w.timeout)
	return nil
}

// Stop cancels the timer if running and reports whether it was running.
// Cancellation is synchronous with respect to future firings: this
// generation's handler will not run after Stop returns, even if expiry
// raced the call.
func (w *WatchdogTimer) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.armed
	w.cancelLocked()
	return was
}

func (w *WatchdogTimer) arm(timeout time.Duration) {
	w.generation++
	gen := w.generation
	handler := w.handler
	w.armed = true
	w.timer = time.AfterFunc(timeout, func() {
		w.fire(gen, handler)
	})
}

func (w *WatchdogTimer) fire(gen uint64, handler func()) {
	w.mu.Lock()
	if gen != w.generation || !w.armed {
		w.mu.Unlock()
		return
	}
	w.armed = false
	w.mu.Unlock()

	if handler != nil {
		handler()
		return
	}
	w.mu.Lock()
	log := w.log
	w.mu.Unlock()
	log.Error(ErrWatchdogTimeout.Error())
}

func (w *WatchdogTimer) cancelLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.armed = false
	w.generation++ // invalidate any in-flight fire for the old generation
}
