package agentdriver

import "sync/atomic"

// CancelFlag is the shared cooperative cancellation signal for one turn. The
// stdout reader checks it between lines; the canceller goroutine polls it and
// hard-kills the subprocess once set. Setting the flag is one-way.
type CancelFlag struct {
	canceled atomic.Bool
}

// Cancel requests cancellation. Safe to call from any goroutine, any number
// of times.
func (f *CancelFlag) Cancel() {
	f.canceled.Store(true)
}

// Canceled reports whether cancellation has been requested.
func (f *CancelFlag) Canceled() bool {
	if f == nil {
		return false
	}
	return f.canceled.Load()
}
