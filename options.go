package nodelog

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Options is supplied as the optional arguments for New.
type Options struct {
	clock clockwork.Clock

	interval string
	buildNum int
	mirror   bool

	maxBacklogNotBusy time.Duration
	maxListBytes      int64
	maxOldLogsSize    int64
	maxRecords        int

	drainDeadline time.Duration

	diagLogger *zap.Logger
}

// Option is the functional option type.
type Option func(*Options)

func newDefaultOptions() *Options {
	return &Options{
		clock:             clockwork.NewRealClock(),
		interval:          "HOUR",
		buildNum:          0,
		mirror:            true,
		maxBacklogNotBusy: time.Second,
		maxListBytes:      64 * 1024 * 1024,  // 64MiB buffer
		maxOldLogsSize:    512 * 1024 * 1024, // 512MiB archive quota
		maxRecords:        100000,
		drainDeadline:     10 * time.Second,
	}
}

func parseOptions(setters ...Option) *Options {
	// default Options
	opts := newDefaultOptions()
	for _, setter := range setters {
		setter(opts)
	}
	return opts
}

// withMinute reports whether opts.interval resolves to the MINUTE field,
// which is what FileNameCodec needs to know to render (and later
// disambiguate) the minute component of rotated filenames.
func (o *Options) withMinute() bool {
	field, _, err := parseInterval(o.interval)
	if err != nil {
		return false
	}
	return field == fieldMinute
}

// WithClock specifies the clock used to determine the current time and
// drive rotation. Defaults to the system clock (clockwork.NewRealClock).
func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

// WithInterval sets the rotation interval, a string of the form
// "<digits><UNIT>[S]" (see SPEC_FULL.md §6). Default: "HOUR".
func WithInterval(interval string) Option {
	return func(o *Options) {
		o.interval = strings.TrimSpace(interval)
	}
}

// WithBuildNumber sets the build number embedded in rotated filenames.
// Default: 0.
func WithBuildNumber(n int) Option {
	return func(o *Options) {
		o.buildNum = n
	}
}

// WithMirror enables or disables the uncompressed "latest" convenience
// mirror file. Default: enabled.
func WithMirror(enabled bool) Option {
	return func(o *Options) {
		o.mirror = enabled
	}
}

// WithMaxBacklogNotBusy sets the flush-timeout delay used by the writer's
// wait protocol (§4.7.2): how long to hold the loop open hoping for more
// records before flushing anyway. Default: 1s.
func WithMaxBacklogNotBusy(d time.Duration) Option {
	return func(o *Options) {
		o.maxBacklogNotBusy = d
	}
}

// WithMaxListBytes sets the BoundedLogBuffer's byte quota. Default: 64MiB.
func WithMaxListBytes(n int64) Option {
	return func(o *Options) {
		o.maxListBytes = n
	}
}

// WithMaxRecords sets the BoundedLogBuffer's record-count quota. Default:
// 100000.
func WithMaxRecords(n int) Option {
	return func(o *Options) {
		o.maxRecords = n
	}
}

// WithMaxOldLogsSize sets the ArchiveIndex's byte quota over rotated
// files. 0 disables quota enforcement. Default: 512MiB.
func WithMaxOldLogsSize(n int64) Option {
	return func(o *Options) {
		o.maxOldLogsSize = n
	}
}

// WithDrainDeadline sets how long Close() waits for the writer to finish
// draining before giving up. Default: 10s.
func WithDrainDeadline(d time.Duration) Option {
	return func(o *Options) {
		o.drainDeadline = d
	}
}

// WithDiagLogger overrides the zap logger used for the package's own
// internal fault reporting (sink retries, archive inconsistency, recovered
// panics). Default: zap.NewDevelopment().
func WithDiagLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.diagLogger = l
	}
}
