package nodelog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_CloserSignal_CompletesBeforeDeadline(t *testing.T) {
	buf := NewBoundedLogBuffer(10, 1000)
	cs := newCloserSignal(buf)

	// simulate the writer finishing the drain concurrently.
	go func() {
		buf.mu.Lock()
		defer buf.mu.Unlock()
		buf.closedFinished = true
		buf.cond.Broadcast()
	}()

	ok := cs.close(time.Second)
	assert.True(t, ok)

	buf.mu.Lock()
	assert.True(t, buf.closed)
	buf.mu.Unlock()
}

func Test_CloserSignal_TimesOutWhenWriterStuck(t *testing.T) {
	buf := NewBoundedLogBuffer(10, 1000)
	cs := newCloserSignal(buf)

	ok := cs.close(5 * time.Millisecond)
	assert.False(t, ok)
}

func Test_CloserSignal_Idempotent(t *testing.T) {
	buf := NewBoundedLogBuffer(10, 1000)
	cs := newCloserSignal(buf)

	buf.mu.Lock()
	buf.closed = true
	buf.closedFinished = true
	buf.mu.Unlock()

	assert.True(t, cs.close(time.Second))
	assert.True(t, cs.close(time.Second))
}
