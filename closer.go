package nodelog

import "time"

// closerSignal runs the shutdown handshake described in SPEC_FULL.md §4.8:
// flip closed, wake the writer, and wait for it to report closedFinished
// within a deadline.
//
// The deadline is tracked against the real wall clock (time.Now), not the
// Logger's injected RotationClock: waitWithTimeout's underlying timer is
// always real regardless of what clock drives rotation, so measuring the
// deadline against an injected fake clock that a test never advances would
// make this loop spin until the fake clock moves, i.e. forever.
type closerSignal struct {
	buf *BoundedLogBuffer
}

func newCloserSignal(buf *BoundedLogBuffer) *closerSignal {
	return &closerSignal{buf: buf}
}

// close sets closed, then waits for closedFinished for at most deadline.
// Idempotent: a second call observes closed already true and just waits
// for (what may already be) completion. Returns whether the drain
// completed before the deadline.
func (c *closerSignal) close(deadline time.Duration) bool {
	c.buf.mu.Lock()
	defer c.buf.mu.Unlock()

	wasClosed := c.buf.closed
	c.buf.closed = true
	if !wasClosed {
		c.buf.cond.Broadcast()
	}

	until := time.Now().Add(deadline)
	const recheck = 500 * time.Millisecond
	for !c.buf.closedFinished {
		remaining := until.Sub(time.Now())
		if remaining <= 0 {
			return false
		}
		step := remaining
		if step > recheck {
			step = recheck
		}
		waitWithTimeout(c.buf.cond, step)
	}
	return true
}
