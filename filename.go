package nodelog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// nameFields is the decoded/encodable content of a rotated log filename:
// <base>-<build>-YYYY-MM-DD-HH[-MM][-<digit>].log[.gz]
type nameFields struct {
	Build  int
	Year   int
	Month  int // 1-12, matches time.Month numbering (filenames are already 1-based)
	Day    int
	Hour   int
	Minute int // Decode sets -1 when the codec's interval isn't MINUTE; Encode ignores it then
	Digit  int // 0 when no disambiguation suffix is present
}

// Time returns the calendar instant (UTC, seconds/nanoseconds zeroed) that
// nf's date/time fields describe.
func (nf nameFields) Time() time.Time {
	minute := nf.Minute
	if minute < 0 {
		minute = 0
	}
	return time.Date(nf.Year, time.Month(nf.Month), nf.Day, nf.Hour, minute, 0, 0, time.UTC)
}

// FileNameCodec encodes and decodes rotated log filenames for a single base
// path. withMinute must be true iff the configured rotation interval is
// MINUTE (see SPEC_FULL.md §4.2): it's what disambiguates a trailing
// "-<n>" token between "this is the minute field" and "this is the
// collision-disambiguation digit" at decode time.
type FileNameCodec struct {
	base       string
	build      int
	withMinute bool
	pattern    *strftime.Strftime
}

// NewFileNameCodec compiles a codec for the given base path, build number,
// and MINUTE-interval flag.
func NewFileNameCodec(base string, build int, withMinute bool) (*FileNameCodec, error) {
	layout := "%Y-%m-%d-%H"
	if withMinute {
		layout = "%Y-%m-%d-%H-%M"
	}
	p, err := strftime.New(layout)
	if err != nil {
		return nil, fmt.Errorf("nodelog: compiling filename pattern: %w", err)
	}
	return &FileNameCodec{base: base, build: build, withMinute: withMinute, pattern: p}, nil
}

// Encode renders nf as a filename, compressed (".log.gz") or not (".log").
func (c *FileNameCodec) Encode(nf nameFields, compress bool) string {
	datePart := c.pattern.FormatString(nf.Time())
	name := fmt.Sprintf("%s-%d-%s", c.base, nf.Build, datePart)
	if nf.Digit > 0 {
		name = fmt.Sprintf("%s-%d", name, nf.Digit)
	}
	if compress {
		return name + ".log.gz"
	}
	return name + ".log"
}

// Decode parses basename (no directory component) back into nameFields. It
// returns false on any parse failure, in which case the caller (normally
// ArchiveScanner) deletes the file as unrecognized.
func (c *FileNameCodec) Decode(basename string) (nameFields, bool) {
	name := strings.TrimSuffix(basename, ".log.gz")
	name = strings.TrimSuffix(name, ".log")

	// basename has no directory component, so the prefix to strip is only
	// the base filename's own last path element, not the whole base path.
	prefix := filepath.Base(c.base) + "-"
	if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
		return nameFields{}, false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return nameFields{}, false
	}

	tokens := strings.Split(rest, "-")
	ints := make([]int, len(tokens))
	for i, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nameFields{}, false
		}
		ints[i] = n
	}

	// build, year, month, day, hour are mandatory.
	if len(ints) < 5 {
		return nameFields{}, false
	}
	nf := nameFields{
		Build:  ints[0],
		Year:   ints[1],
		Month:  ints[2],
		Day:    ints[3],
		Hour:   ints[4],
		Minute: -1,
	}
	rem := ints[5:]

	if c.withMinute {
		if len(rem) == 0 {
			return nameFields{}, false
		}
		nf.Minute = rem[0]
		rem = rem[1:]
	}

	switch len(rem) {
	case 0:
		// no disambiguation digit
	case 1:
		nf.Digit = rem[0]
	default:
		return nameFields{}, false
	}

	if nf.Month < 1 || nf.Month > 12 || nf.Day < 1 || nf.Day > 31 || nf.Hour < 0 || nf.Hour > 23 {
		return nameFields{}, false
	}
	if nf.Minute >= 0 && nf.Minute > 59 {
		return nameFields{}, false
	}
	return nf, true
}
