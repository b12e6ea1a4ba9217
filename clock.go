package nodelog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// intervalField is one of the calendar units a rotation interval can be
// expressed in.
type intervalField int

const (
	fieldMinute intervalField = iota
	fieldHour
	fieldDay
	fieldWeek
	fieldMonth
	fieldYear
)

func (f intervalField) String() string {
	switch f {
	case fieldMinute:
		return "MINUTE"
	case fieldHour:
		return "HOUR"
	case fieldDay:
		return "DAY"
	case fieldWeek:
		return "WEEK"
	case fieldMonth:
		return "MONTH"
	case fieldYear:
		return "YEAR"
	default:
		return "UNKNOWN"
	}
}

var fieldNames = map[string]intervalField{
	"MINUTE": fieldMinute,
	"HOUR":   fieldHour,
	"DAY":    fieldDay,
	"WEEK":   fieldWeek,
	"MONTH":  fieldMonth,
	"YEAR":   fieldYear,
}

// weekEpoch anchors WEEK-multiplier alignment: the Monday on/before the Unix
// epoch. Weeks are counted from here so that "2WEEK" always lands on the
// same pair of weeks regardless of what instant is passed in.
var weekEpoch = time.Date(1969, time.December, 29, 0, 0, 0, 0, time.UTC) // a Monday

// RotationClock computes rotation boundaries from a configured interval and
// multiplier, aligned to UTC calendar units. See SPEC_FULL.md §4.1.
type RotationClock struct {
	field      intervalField
	multiplier int
	clock      clockwork.Clock
}

// NewRotationClock parses an interval spec of the form "<digits><UNIT>[S]"
// (case-insensitive, digits default to 1) and returns a RotationClock using
// the given clockwork.Clock as its time source. clk may be nil, in which
// case clockwork.NewRealClock() is used.
func NewRotationClock(interval string, clk clockwork.Clock) (*RotationClock, error) {
	field, multiplier, err := parseInterval(interval)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &RotationClock{field: field, multiplier: multiplier, clock: clk}, nil
}

func parseInterval(interval string) (intervalField, int, error) {
	s := strings.ToUpper(strings.TrimSpace(interval))
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty interval", ErrInvalidInterval)
	}
	s = strings.TrimSuffix(s, "S")

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	digits, unit := s[:i], s[i:]

	multiplier := 1
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: bad multiplier %q", ErrInvalidInterval, digits)
		}
		multiplier = n
	}

	field, ok := fieldNames[unit]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidInterval, unit)
	}
	return field, multiplier, nil
}

// Now returns the clock's current time.
func (c *RotationClock) Now() time.Time {
	return c.clock.Now()
}

// Align computes the rotation boundary [start, end) containing instant.
// end is exclusive: rotation should fire once now.After(end).
func (c *RotationClock) Align(instant time.Time) (start, end time.Time) {
	start = c.alignStart(instant)
	end = c.boundaryEnd(start)
	return start, end
}

// alignStart zeros every calendar field finer than c.field, then rounds the
// field's own value down to a multiple of c.multiplier.
func (c *RotationClock) alignStart(instant time.Time) time.Time {
	t := instant.UTC()
	year, month, day := t.Date()
	hour, minute, _ := t.Clock()

	switch c.field {
	case fieldMinute:
		minute -= minute % c.multiplier
		return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)

	case fieldHour:
		hour -= hour % c.multiplier
		return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)

	case fieldDay:
		d0 := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		offset := (day - 1) % c.multiplier
		return d0.AddDate(0, 0, -offset)

	case fieldWeek:
		d0 := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		wd := int(d0.Weekday())      // Sunday=0 .. Saturday=6
		daysSinceMonday := (wd + 6) % 7 // Monday=0 .. Sunday=6
		weekStart := d0.AddDate(0, 0, -daysSinceMonday)
		weeks := int(weekStart.Sub(weekEpoch).Hours() / (24 * 7))
		offset := weeks % c.multiplier
		if offset < 0 {
			offset += c.multiplier
		}
		return weekStart.AddDate(0, 0, -7*offset)

	case fieldMonth:
		m := int(month) - 1
		m -= m % c.multiplier
		return time.Date(year, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)

	case fieldYear:
		y := year - year%c.multiplier
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)

	default:
		return t
	}
}

// boundaryEnd advances start by c.multiplier units of c.field.
func (c *RotationClock) boundaryEnd(start time.Time) time.Time {
	switch c.field {
	case fieldMinute:
		return start.Add(time.Duration(c.multiplier) * time.Minute)
	case fieldHour:
		return start.Add(time.Duration(c.multiplier) * time.Hour)
	case fieldDay:
		return start.AddDate(0, 0, c.multiplier)
	case fieldWeek:
		return start.AddDate(0, 0, 7*c.multiplier)
	case fieldMonth:
		return start.AddDate(0, c.multiplier, 0)
	case fieldYear:
		return start.AddDate(c.multiplier, 0, 0)
	default:
		return start
	}
}
