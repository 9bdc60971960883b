package checklog

import (
	"context"
	"time"
)

// Store defines persistence operations for check log entries.
type Store interface {
	// AppendCheckLog persists a new entry.
	AppendCheckLog(ctx context.Context, e *Entry) error

	// CheckLogs returns entries matching the filter, newest first.
	CheckLogs(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// PruneCheckLogs removes entries created before the cutoff and
	// returns how many were removed.
	PruneCheckLogs(ctx context.Context, before time.Time) (int64, error)
}
