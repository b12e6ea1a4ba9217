package nodelog

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// writerState is the WriterLoop's lifecycle, surfaced for tests/metrics
// (SPEC_FULL.md §4.7).
type writerState int32

const (
	stateStarting writerState = iota
	stateRunning
	stateDraining
	stateFinished
)

// WriterLoop is the single dedicated goroutine that drains a
// BoundedLogBuffer, rotates the primary (and optional mirror) sink on
// schedule, and performs the shutdown drain. Nothing else ever opens,
// writes to, or closes a sink.
type WriterLoop struct {
	buf     *BoundedLogBuffer
	clock   *RotationClock
	archive *ArchiveIndex
	codec   *FileNameCodec
	sw      *switchRequest
	diag    *diagnostics

	baseFilename string
	mirror       bool

	flushDelayMu sync.Mutex
	flushDelay   time.Duration

	stateMu sync.Mutex
	state   writerState

	currentName              string
	currentStart, currentEnd time.Time
	primary                  *sink
	mirrorSink               *sink

	doneCh chan struct{}
}

func newWriterLoop(buf *BoundedLogBuffer, clock *RotationClock, archive *ArchiveIndex, codec *FileNameCodec, sw *switchRequest, diag *diagnostics, baseFilename string, mirror bool, flushDelay time.Duration) *WriterLoop {
	return &WriterLoop{
		buf:          buf,
		clock:        clock,
		archive:      archive,
		codec:        codec,
		sw:           sw,
		diag:         diag,
		baseFilename: baseFilename,
		mirror:       mirror,
		flushDelay:   flushDelay,
		doneCh:       make(chan struct{}),
	}
}

func nameFieldsFromTime(t time.Time, build int) nameFields {
	t = t.UTC()
	return nameFields{
		Build:  build,
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// State returns the loop's current lifecycle state.
func (w *WriterLoop) State() writerState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *WriterLoop) setState(s writerState) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

// done returns a channel closed once the loop has finished draining and
// exited. Close does not use it; it waits on closedFinished instead.
func (w *WriterLoop) done() <-chan struct{} {
	return w.doneCh
}

// setFlushDelay updates the wait protocol's flush-timeout delay; safe from
// any goroutine.
func (w *WriterLoop) setFlushDelay(d time.Duration) {
	w.flushDelayMu.Lock()
	w.flushDelay = d
	w.flushDelayMu.Unlock()
}

func (w *WriterLoop) getFlushDelay() time.Duration {
	w.flushDelayMu.Lock()
	defer w.flushDelayMu.Unlock()
	return w.flushDelay
}

// run is the WriterLoop's entire body; callers launch it with `go
// wl.run()`. It returns only after the shutdown handshake completes.
func (w *WriterLoop) run() {
	w.setState(stateStarting)
	if w.baseFilename != "" {
		w.startup(w.clock.Now())
	}
	w.setState(stateRunning)

	for !w.safeIteration() {
	}

	w.setState(stateFinished)
	close(w.doneCh)
}

// safeIteration recovers a panic from a single loop body and reports it,
// matching the distilled spec's "catch Throwable and keep going": the
// loop never aborts except through the shutdown handshake.
func (w *WriterLoop) safeIteration() (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			if w.diag != nil {
				w.diag.writerPanic(r)
			}
			stop = false
		}
	}()
	return w.iteration()
}

func (w *WriterLoop) iteration() bool {
	now := w.clock.Now()
	if w.baseFilename != "" {
		_, pending := w.sw.peek()
		if now.After(w.currentEnd) || pending {
			w.rotate(now)
		}
	}

	record, died, timedOut := w.wait()

	switch {
	case died:
		w.shutdown()
		return true
	case timedOut:
		w.flushAll()
	}

	if record != nil {
		w.writeRecord(record)
	}
	return false
}

// wait implements the §4.7.2 protocol: return immediately with a drained
// record if one is already queued; otherwise wait up to flushDelay
// (rechecked every 500ms so shutdown is observed promptly), draining as
// soon as the buffer's accounted bytes reach writeThreshold so the gzip
// stream sees sizeable blocks under sustained load, and otherwise giving
// up at flushDelay and reporting a flush timeout so a lone record under
// idle load isn't held indefinitely.
//
// Elapsed time here is measured against the real wall clock, not
// w.clock (the injected RotationClock): waitWithTimeout's timer is always
// real, so tracking elapsed against a fake clock a test never advances
// would make this loop spin until the fake clock moves, i.e. forever.
// w.clock is still what decides whether a rotation boundary has passed,
// checked once per outer loop iteration before wait is called.
func (w *WriterLoop) wait() (record []byte, died bool, timedOut bool) {
	w.buf.mu.Lock()
	defer w.buf.mu.Unlock()

	if r, ok := w.buf.drain(); ok {
		return r, false, false
	}

	armed := false
	var waitStart time.Time
	const recheck = 500 * time.Millisecond
	flushDelay := w.getFlushDelay()
	threshold := w.buf.writeThreshold

	for {
		if w.buf.closed {
			if r, ok := w.buf.drain(); ok {
				return r, false, false
			}
			return nil, true, false
		}

		if !armed {
			armed = true
			waitStart = time.Now()
		}

		elapsed := time.Since(waitStart)
		if elapsed >= flushDelay {
			return nil, false, true
		}

		step := flushDelay - elapsed
		if step > recheck {
			step = recheck
		}
		waitWithTimeout(w.buf.cond, step)

		if w.buf.bytes >= threshold {
			if r, ok := w.buf.drain(); ok {
				return r, false, false
			}
		}
	}
}

// startup implements §4.7 startup: align the current boundary, run the
// archive scanner, reclaim a scanner-filed entry that's about to become
// the live file, then open the primary (and optional mirror) sink.
func (w *WriterLoop) startup(now time.Time) {
	start, end := w.clock.Align(now)
	name := w.codec.Encode(nameFieldsFromTime(start, w.codec.build), true)

	dir := filepath.Dir(w.baseFilename)
	if err := os.MkdirAll(dir, 0o755); err != nil && w.diag != nil {
		w.diag.rotationError("startup-mkdir", err)
	}
	if err := scanArchive(dir, w.baseFilename, w.codec, now, filepath.Base(name), w.archive, w.diag); err != nil && w.diag != nil {
		w.diag.rotationError("startup-scan", err)
	}
	w.archive.popIfNameMatches(name)

	w.currentName = name
	w.currentStart = start
	w.currentEnd = end
	w.primary = openSink(name, true, w.diag)
	if w.mirror {
		w.mirrorSink = openSink(mirrorLatestName(w.baseFilename), false, w.diag)
	}
}

// rotate implements the §4.7.1 algorithm: close and archive the current
// primary, apply any pending SwitchRequest, open the new primary at the
// freshly-aligned boundary, and roll the mirror if configured.
func (w *WriterLoop) rotate(now time.Time) {
	if w.primary != nil {
		w.primary.close()
		if fi, err := os.Stat(w.currentName); err == nil {
			w.archive.Append(OldLogFile{Name: w.currentName, Start: w.currentStart, End: w.currentEnd, Size: fi.Size()})
		} else if w.diag != nil {
			w.diag.rotationError("rotate-stat", err)
		}
		w.archive.Trim()
	}

	if pending, ok := w.sw.peek(); ok {
		if codec, err := NewFileNameCodec(pending, w.codec.build, w.codec.withMinute); err != nil {
			if w.diag != nil {
				w.diag.rotationError("rotate-switch-codec", err)
			}
		} else {
			w.baseFilename = pending
			w.codec = codec
		}
	}

	start, end := w.clock.Align(now)
	w.currentStart = start
	w.currentEnd = end
	w.currentName = w.codec.Encode(nameFieldsFromTime(start, w.codec.build), true)
	w.primary = openSink(w.currentName, true, w.diag)

	if w.mirror {
		if w.mirrorSink != nil {
			w.mirrorSink.close()
		}
		latest := mirrorLatestName(w.baseFilename)
		previous := mirrorPreviousName(w.baseFilename)
		if _, err := os.Stat(latest); err == nil {
			if err := os.Rename(latest, previous); err != nil && w.diag != nil {
				w.diag.rotationError("rotate-mirror-rename", err)
			}
		}
		if err := os.Remove(latest); err != nil && !os.IsNotExist(err) && w.diag != nil {
			w.diag.rotationError("rotate-mirror-remove", err)
		}
		w.mirrorSink = openSink(latest, false, w.diag)
	}

	if _, ok := w.sw.peek(); ok {
		w.sw.clear()
	}
}

func (w *WriterLoop) writeRecord(record []byte) {
	if w.primary != nil {
		w.primary.write(record)
	}
	if w.mirrorSink != nil {
		w.mirrorSink.write(record)
	}
}

func (w *WriterLoop) flushAll() {
	if w.primary != nil {
		w.primary.flush()
	}
	if w.mirrorSink != nil {
		w.mirrorSink.flush()
	}
}

// shutdown runs the tail end of the CloserSignal handshake from the
// writer's side: flush and close both sinks, then mark closedFinished and
// wake anyone waiting in CloserSignal.
func (w *WriterLoop) shutdown() {
	w.setState(stateDraining)
	w.flushAll()
	if w.primary != nil {
		w.primary.close()
	}
	if w.mirrorSink != nil {
		w.mirrorSink.close()
	}

	w.buf.mu.Lock()
	w.buf.closedFinished = true
	w.buf.cond.Broadcast()
	w.buf.mu.Unlock()
}
