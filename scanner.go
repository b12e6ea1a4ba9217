package nodelog

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mirrorLatestName and mirrorPreviousName return the convenience-mirror
// paths derived from a base path, per SPEC_FULL.md §6.
func mirrorLatestName(base string) string   { return base + "-latest.log" }
func mirrorPreviousName(base string) string { return base + "-previous.log" }

// scanArchive runs once at writer startup, before the first log file
// opens. It reconciles the log directory against codec's naming scheme,
// builds the set of OldLogFile entries into idx, and resolves any name
// collision with the about-to-be-opened current file.
//
// currentName is the filename (basename only) the writer is about to open
// for the live boundary [currentStart, currentEnd); if a file of that name
// already exists on disk, it is renamed aside with the lowest available
// disambiguation digit.
func scanArchive(dir, base string, codec *FileNameCodec, now time.Time, currentName string, idx *ArchiveIndex, diag *diagnostics) error {
	latest := mirrorLatestName(base)
	previous := mirrorPreviousName(base)

	// Guarded rename: only when latest.log actually exists (§9 open
	// question, resolved in favor of the guarded behavior).
	if _, err := os.Stat(latest); err == nil {
		if err := os.Rename(latest, previous); err != nil && diag != nil {
			diag.rotationError("scan-latest-to-previous", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	prefix := strings.ToLower(filepath.Base(base) + "-")
	latestBase := filepath.Base(latest)
	previousBase := filepath.Base(previous)

	type decoded struct {
		name  string // full path
		start time.Time
		size  int64
	}
	var groups []decoded

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) {
			if diag != nil {
				diag.scanIgnored(filepath.Join(dir, name), "outside prefix")
			}
			continue
		}
		if name == latestBase || name == previousBase {
			continue
		}

		full := filepath.Join(dir, name)
		if !strings.HasSuffix(lower, ".log.gz") {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) && diag != nil {
				diag.archiveDeleteError(full, err)
			}
			continue
		}

		nf, ok := codec.Decode(name)
		if !ok {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) && diag != nil {
				diag.archiveDeleteError(full, err)
			}
			continue
		}

		fi, err := os.Stat(full)
		if err != nil {
			if diag != nil {
				diag.scanIgnored(full, "stat failed: "+err.Error())
			}
			continue
		}

		groups = append(groups, decoded{name: full, start: nf.Time(), size: fi.Size()})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].start.Before(groups[j].start) })

	// distinct start-times, in order
	var distinct []time.Time
	for _, g := range groups {
		if len(distinct) == 0 || !distinct[len(distinct)-1].Equal(g.start) {
			distinct = append(distinct, g.start)
		}
	}
	endFor := func(start time.Time) time.Time {
		for i, d := range distinct {
			if d.Equal(start) {
				if i+1 < len(distinct) {
					return distinct[i+1]
				}
				return now
			}
		}
		return now
	}

	for _, g := range groups {
		idx.Append(OldLogFile{Name: g.name, Start: g.start, End: endFor(g.start), Size: g.size})
	}

	// Resolve a collision with the file the writer is about to create.
	currentFull := filepath.Join(dir, currentName)
	if _, err := os.Stat(currentFull); err == nil {
		resolveCollision(dir, currentName, idx, diag)
	}

	idx.Trim()
	return nil
}

// resolveCollision renames the file at dir/name aside with the lowest
// available disambiguation digit (>= 1) and updates the matching
// OldLogFile entry in idx, if any, per SPEC_FULL.md §4.3 step 6.
func resolveCollision(dir, name string, idx *ArchiveIndex, diag *diagnostics) {
	ext := ""
	base := name
	for _, suf := range []string{".log.gz", ".log"} {
		if strings.HasSuffix(name, suf) {
			ext = suf
			base = strings.TrimSuffix(name, suf)
			break
		}
	}

	var newName string
	for digit := 1; ; digit++ {
		candidate := base + "-" + strconv.Itoa(digit) + ext
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			newName = candidate
			break
		}
		if digit > 1<<20 {
			if diag != nil {
				diag.rotationError("scan-collision", os.ErrExist)
			}
			return
		}
	}

	oldFull := filepath.Join(dir, name)
	newFull := filepath.Join(dir, newName)
	if err := os.Rename(oldFull, newFull); err != nil {
		if diag != nil {
			diag.rotationError("scan-collision-rename", err)
		}
		return
	}

	idx.listMu.Lock()
	for i := range idx.files {
		if idx.files[i].Name == oldFull {
			idx.files[i].Name = newFull
		}
	}
	idx.listMu.Unlock()
}
