package nodelog

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriterLoop(t *testing.T, clk clockwork.Clock, flushDelay time.Duration) (*WriterLoop, *BoundedLogBuffer) {
	t.Helper()
	buf := NewBoundedLogBuffer(1000, 1_000_000)
	rc, err := NewRotationClock("HOUR", clk)
	require.NoError(t, err)
	diag := newDiagnostics(nil)
	wl := newWriterLoop(buf, rc, NewArchiveIndex(0, diag), nil, newSwitchRequest(), diag, "", false, flushDelay)
	return wl, buf
}

func Test_WriterLoop_Wait_ReturnsImmediatelyWhenRecordQueued(t *testing.T) {
	clk := clockwork.NewFakeClock()
	wl, buf := newTestWriterLoop(t, clk, time.Second)

	buf.Enqueue([]byte("hi"))

	record, died, timedOut := wl.wait()
	require.False(t, died)
	require.False(t, timedOut)
	assert.Equal(t, []byte("hi"), record)
}

func Test_WriterLoop_Wait_DetectsClosedWithNoRecord(t *testing.T) {
	clk := clockwork.NewFakeClock()
	wl, buf := newTestWriterLoop(t, clk, time.Second)

	buf.mu.Lock()
	buf.closed = true
	buf.mu.Unlock()

	record, died, timedOut := wl.wait()
	assert.Nil(t, record)
	assert.True(t, died)
	assert.False(t, timedOut)
}

func Test_WriterLoop_Wait_TimesOutWithoutRecord(t *testing.T) {
	clk := clockwork.NewFakeClock()
	wl, _ := newTestWriterLoop(t, clk, 5*time.Millisecond)

	record, died, timedOut := wl.wait()
	assert.Nil(t, record)
	assert.False(t, died)
	assert.True(t, timedOut)
}

func Test_WriterLoop_Wait_DrainsOnceThresholdReached(t *testing.T) {
	clk := clockwork.NewFakeClock()
	buf := NewBoundedLogBuffer(1000, 400) // writeThreshold = 100
	rc, err := NewRotationClock("HOUR", clk)
	require.NoError(t, err)
	diag := newDiagnostics(nil)
	wl := newWriterLoop(buf, rc, NewArchiveIndex(0, diag), nil, newSwitchRequest(), diag, "", false, 200*time.Millisecond)

	go func() {
		time.Sleep(2 * time.Millisecond)
		buf.Enqueue(make([]byte, 50)) // 110 bytes accounted, already >= writeThreshold
	}()

	record, died, timedOut := wl.wait()
	require.False(t, died)
	require.False(t, timedOut)
	assert.Len(t, record, 50)
}

func Test_WriterLoop_Wait_HoldsBelowThresholdUntilFlushDelay(t *testing.T) {
	clk := clockwork.NewFakeClock()
	buf := NewBoundedLogBuffer(1000, 1_000_000) // writeThreshold = 250000, never reached
	rc, err := NewRotationClock("HOUR", clk)
	require.NoError(t, err)
	diag := newDiagnostics(nil)
	wl := newWriterLoop(buf, rc, NewArchiveIndex(0, diag), nil, newSwitchRequest(), diag, "", false, 20*time.Millisecond)

	go func() {
		time.Sleep(2 * time.Millisecond)
		buf.Enqueue([]byte("hi")) // well below writeThreshold
	}()

	record, died, timedOut := wl.wait()
	assert.Nil(t, record)
	assert.False(t, died)
	assert.True(t, timedOut)

	// the record is still queued, untouched by the timeout; the next call
	// drains it unconditionally.
	record2, died2, timedOut2 := wl.wait()
	assert.Equal(t, []byte("hi"), record2)
	assert.False(t, died2)
	assert.False(t, timedOut2)
}

func Test_WriterLoop_SetFlushDelay(t *testing.T) {
	wl, _ := newTestWriterLoop(t, clockwork.NewFakeClock(), time.Second)
	wl.setFlushDelay(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, wl.getFlushDelay())
}

func Test_NameFieldsFromTime(t *testing.T) {
	nf := nameFieldsFromTime(time.Date(2026, 3, 5, 14, 37, 9, 0, time.UTC), 3)
	assert.Equal(t, nameFields{Build: 3, Year: 2026, Month: 3, Day: 5, Hour: 14, Minute: 37}, nf)
}
