package checklog

import (
	"context"
	"time"
)

// labeled is implemented by check requests that can describe their
// declared authorizations. Defined structurally to avoid importing the
// manager package.
type labeled interface {
	AuthorizationLabels() []string
}

// Recorder is an AfterCheck plugin that appends an audit entry for every
// transaction authorization check.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Name implements plugin.Plugin.
func (r *Recorder) Name() string { return "checklog" }

// OnAfterCheck implements plugin.AfterCheck.
func (r *Recorder) OnAfterCheck(ctx context.Context, req any, checkErr error, evalTime time.Duration) error {
	entry := &Entry{
		ID:         NewID(),
		Satisfied:  checkErr == nil,
		EvalTimeNs: evalTime.Nanoseconds(),
		CreatedAt:  r.now(),
	}
	if l, ok := req.(labeled); ok {
		entry.Authorizations = l.AuthorizationLabels()
	}
	if checkErr != nil {
		entry.Reason = checkErr.Error()
	}
	return r.store.AppendCheckLog(ctx, entry)
}
