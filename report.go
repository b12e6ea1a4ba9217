package nodelog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"
)

// sendLogByContainedDate finds the archived file in idx whose [Start, End)
// span contains t, decompresses it, and copies its records to w. If
// pattern is non-nil, only matching lines are copied. This is a thin
// reader layered on ArchiveIndex.Snapshot(); formatting/report generation
// proper is the caller's business (SPEC_FULL.md §1 Non-goals).
func sendLogByContainedDate(idx *ArchiveIndex, t time.Time, w io.Writer, pattern *regexp.Regexp) error {
	var target OldLogFile
	found := false
	for _, f := range idx.Snapshot() {
		if !t.Before(f.Start) && t.Before(f.End) {
			target = f
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("nodelog: no archived log contains %s", t.Format(time.RFC3339))
	}

	f, err := os.Open(target.Name)
	if err != nil {
		return fmt.Errorf("nodelog: opening %s: %w", target.Name, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("nodelog: decompressing %s: %w", target.Name, err)
	}
	defer gz.Close()

	// The byte-order mark at the start of the file is not part of any record.
	br := bufio.NewReader(gz)
	if head, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(head, byteOrderMark) {
		_, _ = br.Discard(len(byteOrderMark))
	}

	if pattern == nil {
		_, err = io.Copy(w, br)
		return err
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !pattern.Match(line) {
			continue
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return scanner.Err()
}
