package nodelog

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Sink_WritesBOMAndCompresses(t *testing.T) {
	dir := filepath.Join(baseLogDir, "Test_Sink_WritesBOMAndCompresses")
	defer os.RemoveAll(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "a.log.gz")
	s := openSink(path, true, nil)
	s.write([]byte("hello\n"))
	s.close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(content, byteOrderMark))
	assert.Contains(t, string(content), "hello\n")
}

func Test_Sink_UncompressedMirror(t *testing.T) {
	dir := filepath.Join(baseLogDir, "Test_Sink_UncompressedMirror")
	defer os.RemoveAll(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "latest.log")
	s := openSink(path, false, nil)
	s.write([]byte("hi\n"))
	s.close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, byteOrderMark))
	assert.Contains(t, string(content), "hi\n")
}

func Test_Sink_FlushPersistsWithoutClose(t *testing.T) {
	dir := filepath.Join(baseLogDir, "Test_Sink_FlushPersistsWithoutClose")
	defer os.RemoveAll(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "a.log.gz")
	s := openSink(path, true, nil)
	s.write([]byte("one\n"))
	s.flush()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	s.close()
}

func Test_Sink_RebuildReplaysUnflushedBytesAfterError(t *testing.T) {
	dir := filepath.Join(baseLogDir, "Test_Sink_RebuildReplaysUnflushedBytesAfterError")
	defer os.RemoveAll(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "a.log")
	s := openSink(path, false, nil)
	s.write([]byte("first\n"))

	// Jam the sink: close the fd out from under it, so the next flush
	// hits an I/O error and bufio latches it permanently. The injected
	// sleeper repairs s.f before the retry, standing in for "the disk
	// becomes writable again" without a real backoff sleep.
	require.NoError(t, s.f.Close())
	repaired := false
	s.sleeper = func(time.Duration) {
		if !repaired {
			f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
			require.NoError(t, err)
			s.f = f
			repaired = true
		}
	}

	s.flush() // recovers by rebuilding and replaying "first\n", not just retrying a no-op flush
	s.write([]byte("second\n"))
	s.flush()
	s.close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "first\n")
	assert.Contains(t, string(content), "second\n")
}

func Test_NextBackoff_DoublesAndCaps(t *testing.T) {
	b := minBackoff
	for i := 0; i < 10; i++ {
		b = nextBackoff(b)
	}
	assert.Equal(t, maxBackoff, b)
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
}
