package nodelog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"os"
	"time"
)

// byteOrderMark is written once at the start of every physical file this
// package opens (compressed or not), per SPEC_FULL.md §4.5 / §6.
var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

const (
	outerBufSize = 512 * 1024
	innerBufSize = 64 * 1024

	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

// sink is one open output stream backing a physical file: either a
// compressed stream (bufio -> gzip -> bufio) or a single buffered,
// uncompressed stream. Opens and writes retry forever on failure with
// doubling backoff: the writer goroutine's job is to eventually persist,
// even against a temporarily full disk (SPEC_FULL.md §4.5, §5).
type sink struct {
	path     string
	compress bool

	f     *os.File
	outer *bufio.Writer // 512KiB, wraps f; only present when compress
	gz    *gzip.Writer  // wraps outer; only present when compress
	inner *bufio.Writer // 64KiB, what Write()/Flush() actually touch

	// pending holds every byte accepted by write() since the last
	// successful flush. bufio.Writer and gzip.Writer latch their first
	// error permanently, so recovering from one means discarding and
	// rebuilding those layers; pending is what gets replayed into the
	// fresh layers so a rebuild never silently drops bytes that were
	// sitting unflushed in the layers it replaces.
	pending bytes.Buffer

	diag    *diagnostics
	sleeper func(time.Duration)
}

// openSink opens (creating if necessary) path for writing, retrying
// indefinitely on failure, and writes the byte-order mark as the first
// bytes of the new file.
func openSink(path string, compress bool, diag *diagnostics) *sink {
	s := &sink{path: path, compress: compress, diag: diag, sleeper: time.Sleep}

	attempt := 0
	backoff := minBackoff
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err == nil {
			s.f = f
			break
		}
		attempt++
		if diag != nil {
			diag.sinkOpenRetry(path, attempt, backoff.String(), err)
		}
		s.sleeper(backoff)
		backoff = nextBackoff(backoff)
	}

	s.rebuildChain()
	s.write(byteOrderMark)
	return s
}

// rebuildChain (re)constructs the buffering layers on top of s.f. It is
// also how a jammed write recovers: bufio.Writer and gzip.Writer latch
// their first error permanently (Flush/Write short-circuit once errored),
// so "retry forever" requires discarding and rebuilding those layers, not
// just calling Write again on the same ones. Recovery always replays
// pending into the rebuilt layers (see replayPending) so nothing sitting
// in the discarded layers is lost.
func (s *sink) rebuildChain() {
	if s.compress {
		s.outer = bufio.NewWriterSize(s.f, outerBufSize)
		s.gz = gzip.NewWriter(s.outer)
		s.inner = bufio.NewWriterSize(s.gz, innerBufSize)
	} else {
		s.inner = bufio.NewWriterSize(s.f, innerBufSize)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// write appends b, retrying forever with backoff on failure. b is also
// appended to pending, since a successful Write only means the bytes were
// accepted into a buffering layer, not that they reached the file; pending
// is only cleared once a full flush confirms that.
func (s *sink) write(b []byte) {
	s.pending.Write(b) // bytes.Buffer.Write never errors
	if _, err := s.inner.Write(b); err != nil {
		s.replayPending(err)
	}
}

// flush pushes all buffered layers down to the file, retrying forever with
// backoff on failure. This corresponds to write(sink, null) in the
// distilled spec.
func (s *sink) flush() {
	for {
		err := s.inner.Flush()
		if err == nil && s.compress {
			err = s.gz.Flush()
			if err == nil {
				err = s.outer.Flush()
			}
		}
		if err == nil {
			s.pending.Reset()
			return
		}
		s.replayPending(err)
	}
}

// replayPending rebuilds the buffering chain and rewrites the entire
// backlog of unflushed bytes into it, retrying forever with backoff until
// the rebuilt chain accepts all of it. Called whenever write or flush
// observes a layer that has latched an error.
func (s *sink) replayPending(err error) {
	attempt := 0
	backoff := minBackoff
	for {
		attempt++
		if s.diag != nil {
			s.diag.sinkWriteRetry(s.path, attempt, backoff.String(), err)
		}
		s.sleeper(backoff)
		backoff = nextBackoff(backoff)
		s.rebuildChain()
		_, err = s.inner.Write(s.pending.Bytes())
		if err == nil {
			return
		}
	}
}

// close flushes and closes the sink. Errors are logged, not propagated
// (SPEC_FULL.md §4.5).
func (s *sink) close() {
	s.flush()
	if s.compress {
		if err := s.gz.Close(); err != nil && s.diag != nil {
			s.diag.sinkCloseError(s.path, err)
		}
	}
	if err := s.f.Close(); err != nil && s.diag != nil {
		s.diag.sinkCloseError(s.path, err)
	}
}
