package nodelog

import (
	"os"
	"sync"
	"time"
)

// OldLogFile identifies one rotated, closed log file retained on disk.
type OldLogFile struct {
	Name  string    // full path
	Start time.Time // inclusive
	End   time.Time // exclusive
	Size  int64
}

// ArchiveIndex tracks the rotated log files on disk and enforces a byte
// quota over them. Only the writer goroutine and background trim
// goroutines mutate it (see SPEC_FULL.md §5).
//
// Two mutexes guard disjoint concerns on purpose: listMu protects the
// ordered file list, totalsMu protects the running byte total and
// serializes Trim so concurrent SetMaxBytes calls can't race each other's
// eviction decisions. Acquisition order is always totalsMu -> listMu.
type ArchiveIndex struct {
	totalsMu     sync.Mutex
	maxBytes     int64
	totalBytes   int64

	listMu sync.Mutex
	files  []OldLogFile

	diag *diagnostics
}

// NewArchiveIndex returns an empty index enforcing maxBytes as its quota (0
// or negative disables the quota: Trim becomes a no-op).
func NewArchiveIndex(maxBytes int64, diag *diagnostics) *ArchiveIndex {
	return &ArchiveIndex{maxBytes: maxBytes, diag: diag}
}

// Append records a newly rotated file and adds its size to the running
// total. It does not trim; callers call Trim explicitly (matching the spec,
// where rotation appends then trims as two separate steps).
func (a *ArchiveIndex) Append(olf OldLogFile) {
	a.totalsMu.Lock()
	defer a.totalsMu.Unlock()

	a.listMu.Lock()
	a.files = append(a.files, olf)
	a.listMu.Unlock()

	a.totalBytes += olf.Size
}

// Trim evicts the oldest files, deleting them from disk, until totalBytes
// fits within maxBytes or the index is empty. If totalBytes is still
// positive with no files left to account for it, an inconsistency is
// reported and trimming stops (it cannot bring a nonexistent list's bytes
// down further).
func (a *ArchiveIndex) Trim() {
	a.totalsMu.Lock()
	defer a.totalsMu.Unlock()

	if a.maxBytes <= 0 {
		return
	}

	for a.totalBytes > a.maxBytes {
		a.listMu.Lock()
		if len(a.files) == 0 {
			a.listMu.Unlock()
			if a.totalBytes > 0 && a.diag != nil {
				a.diag.archiveInconsistent(a.totalBytes)
			}
			return
		}
		victim := a.files[0]
		a.files = a.files[1:]
		a.listMu.Unlock()

		if err := os.Remove(victim.Name); err != nil && !os.IsNotExist(err) && a.diag != nil {
			a.diag.archiveDeleteError(victim.Name, err)
		}
		a.totalBytes -= victim.Size
	}
}

// DeleteAll drains every entry from the index, deleting each file from
// disk.
func (a *ArchiveIndex) DeleteAll() {
	a.totalsMu.Lock()
	defer a.totalsMu.Unlock()

	a.listMu.Lock()
	victims := a.files
	a.files = nil
	a.listMu.Unlock()

	for _, v := range victims {
		if err := os.Remove(v.Name); err != nil && !os.IsNotExist(err) && a.diag != nil {
			a.diag.archiveDeleteError(v.Name, err)
		}
	}
	a.totalBytes = 0
}

// Snapshot returns a defensive copy of the current archive contents,
// oldest first.
func (a *ArchiveIndex) Snapshot() []OldLogFile {
	a.listMu.Lock()
	defer a.listMu.Unlock()
	out := make([]OldLogFile, len(a.files))
	copy(out, a.files)
	return out
}

// SetMaxBytes updates the quota and schedules a Trim on a background
// goroutine; it never blocks the caller.
func (a *ArchiveIndex) SetMaxBytes(v int64) {
	a.totalsMu.Lock()
	a.maxBytes = v
	a.totalsMu.Unlock()
	go a.Trim()
}

// popIfNameMatches removes and returns the most recently appended entry if its name
// matches, used by WriterLoop startup (§4.7) when the archive scanner
// already filed away what's about to become the live file.
func (a *ArchiveIndex) popIfNameMatches(name string) (OldLogFile, bool) {
	a.totalsMu.Lock()
	defer a.totalsMu.Unlock()

	a.listMu.Lock()
	defer a.listMu.Unlock()

	if len(a.files) == 0 {
		return OldLogFile{}, false
	}
	last := a.files[len(a.files)-1]
	if last.Name != name {
		return OldLogFile{}, false
	}
	a.files = a.files[:len(a.files)-1]
	a.totalBytes -= last.Size
	return last, true
}
