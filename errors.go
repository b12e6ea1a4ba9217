package nodelog

import "errors"

// ErrInvalidInterval is returned when a rotation interval string does not
// match the "<digits><UNIT>[S]" grammar described on WithInterval.
var ErrInvalidInterval = errors.New("nodelog: invalid rotation interval")

// ErrArchiveInconsistent is never returned to a caller; it only ever reaches
// the diagnostics logger when ArchiveIndex.Trim observes a non-zero total
// with an empty file list.
var ErrArchiveInconsistent = errors.New("nodelog: archive index byte total inconsistent with empty file list")
