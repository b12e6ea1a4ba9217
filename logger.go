// Package nodelog is an asynchronous, rotating, compressed file logger for
// a long-running peer-to-peer node. Producers submit preformatted records
// with Enqueue; a single background writer goroutine drains them to a
// compressed, time-rotated primary file (and an optional uncompressed
// "latest" mirror), enforces a byte quota over the retained archive, and
// shuts down cleanly within a bounded deadline.
package nodelog

import (
	"io"
	"regexp"
	"sync"
	"time"
)

// Logger is the public producer-facing facade wiring together the
// RotationClock, ArchiveIndex, FileNameCodec, BoundedLogBuffer,
// WriterLoop, CloserSignal and SwitchRequest components.
type Logger struct {
	opts         *Options
	baseFilename string

	buf     *BoundedLogBuffer
	archive *ArchiveIndex
	sw      *switchRequest
	diag    *diagnostics
	wl      *WriterLoop
	closer  *closerSignal

	mu      sync.Mutex
	started bool
}

// New constructs a Logger for baseFilename (the full path prefix of
// rotated files, e.g. "/var/log/mynode/node"; an empty string disables
// file output entirely, matching the teacher's own bare-Logger allowance).
// It returns ErrInvalidInterval synchronously if the configured rotation
// interval doesn't parse; this is the only error surfaced to the caller
// (SPEC_FULL.md §7).
func New(baseFilename string, options ...Option) (*Logger, error) {
	opts := parseOptions(options...)

	rc, err := NewRotationClock(opts.interval, opts.clock)
	if err != nil {
		return nil, err
	}

	var codec *FileNameCodec
	if baseFilename != "" {
		codec, err = NewFileNameCodec(baseFilename, opts.buildNum, opts.withMinute())
		if err != nil {
			return nil, err
		}
	}

	diag := newDiagnostics(opts.diagLogger)
	archive := NewArchiveIndex(opts.maxOldLogsSize, diag)
	buf := NewBoundedLogBuffer(opts.maxRecords, opts.maxListBytes)
	sw := newSwitchRequest()
	wl := newWriterLoop(buf, rc, archive, codec, sw, diag, baseFilename, opts.mirror, opts.maxBacklogNotBusy)
	closer := newCloserSignal(buf)

	return &Logger{
		opts:         opts,
		baseFilename: baseFilename,
		buf:          buf,
		archive:      archive,
		sw:           sw,
		diag:         diag,
		wl:           wl,
		closer:       closer,
	}, nil
}

// Start launches the writer goroutine. Calling Start more than once is a
// no-op; a Logger that is never Started simply accumulates (and silently
// drops under overload) whatever is Enqueued, since nothing drains it.
func (l *Logger) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	l.started = true
	go l.wl.run()
	return nil
}

// Enqueue submits a preformatted record. Non-blocking beyond the buffer's
// mutex; never panics, never returns an error — loss under overload is
// reported in-band as a synthetic marker record, not to the caller.
func (l *Logger) Enqueue(b []byte) {
	l.buf.Enqueue(b)
}

// Close runs the shutdown handshake: marks the buffer closed, wakes the
// writer, and waits up to the configured drain deadline for it to finish
// draining. Returns whether the drain completed in time. Idempotent.
func (l *Logger) Close() bool {
	ok := l.closer.close(l.opts.drainDeadline)
	l.diag.sync()
	return ok
}

// SetMaxListBytes updates the in-memory buffer's byte quota. Safe from any
// goroutine.
func (l *Logger) SetMaxListBytes(n int64) {
	l.buf.SetMaxBytes(n)
}

// SetMaxBacklogNotBusy updates the writer's flush-timeout delay. Safe from
// any goroutine.
func (l *Logger) SetMaxBacklogNotBusy(d time.Duration) {
	l.wl.setFlushDelay(d)
}

// SetMaxOldLogsSize updates the archive's byte quota and schedules a trim
// on a background goroutine. Safe from any goroutine.
func (l *Logger) SetMaxOldLogsSize(n int64) {
	l.archive.SetMaxBytes(n)
}

// SwitchBaseFilename requests that the writer switch to a new base
// filename at its next rotation check, and returns a channel that closes
// once the switch has been applied. Pass the channel to WaitForSwitch to
// block until then.
func (l *Logger) SwitchBaseFilename(path string) <-chan struct{} {
	return l.sw.request(path)
}

// DeleteAllOldLogFiles deletes every file currently tracked in the
// archive.
func (l *Logger) DeleteAllOldLogFiles() {
	l.archive.DeleteAll()
}

// ListAvailableLogs returns a snapshot of the rotated files currently
// retained on disk, oldest first.
func (l *Logger) ListAvailableLogs() []OldLogFile {
	return l.archive.Snapshot()
}

// SendLogByContainedDate locates the archived file whose span contains t,
// decompresses it, and copies its records to w, optionally filtered to
// lines matching pattern.
func (l *Logger) SendLogByContainedDate(t time.Time, w io.Writer, pattern *regexp.Regexp) error {
	return sendLogByContainedDate(l.archive, t, w, pattern)
}
