package nodelog

import (
	"go.uber.org/zap"
)

// diagnostics is the package's ambient fault logger: it reports on the
// health of the logging subsystem itself (sink retries, archive
// inconsistency, a recovered panic in the writer loop) and never touches
// the record stream it is rotating/writing. Swappable via WithDiagLogger;
// defaults to a minimal development-style core writing to stderr, matching
// how tools-go/go-utils/trace and the teacher's own examples/zap wire a
// zap core around a rotating writer.
type diagnostics struct {
	log *zap.Logger
}

func newDiagnostics(l *zap.Logger) *diagnostics {
	if l == nil {
		l, _ = zap.NewDevelopment()
	}
	return &diagnostics{log: l}
}

func (d *diagnostics) sinkOpenRetry(path string, attempt int, sleep string, err error) {
	d.log.Warn("nodelog: sink open failed, retrying",
		zap.String("path", path), zap.Int("attempt", attempt),
		zap.String("backoff", sleep), zap.Error(err))
}

func (d *diagnostics) sinkWriteRetry(path string, attempt int, sleep string, err error) {
	d.log.Warn("nodelog: sink write failed, retrying",
		zap.String("path", path), zap.Int("attempt", attempt),
		zap.String("backoff", sleep), zap.Error(err))
}

func (d *diagnostics) sinkCloseError(path string, err error) {
	d.log.Error("nodelog: sink close failed", zap.String("path", path), zap.Error(err))
}

func (d *diagnostics) archiveInconsistent(totalBytes int64) {
	d.log.Error("nodelog: archive index inconsistent",
		zap.Int64("totalBytes", totalBytes), zap.Error(ErrArchiveInconsistent))
}

func (d *diagnostics) archiveDeleteError(name string, err error) {
	d.log.Warn("nodelog: failed to delete archived log", zap.String("name", name), zap.Error(err))
}

func (d *diagnostics) scanIgnored(name string, reason string) {
	d.log.Debug("nodelog: scanner left file alone", zap.String("name", name), zap.String("reason", reason))
}

func (d *diagnostics) writerPanic(r any) {
	d.log.Error("nodelog: recovered panic in writer loop", zap.Any("recovered", r))
}

func (d *diagnostics) rotationError(stage string, err error) {
	d.log.Error("nodelog: rotation step failed", zap.String("stage", stage), zap.Error(err))
}

// sync flushes the diagnostics logger; errors are intentionally ignored,
// matching zap's own documented guidance for stderr/stdout-backed cores.
func (d *diagnostics) sync() {
	_ = d.log.Sync()
}
