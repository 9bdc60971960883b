// Package checklog defines the authorization decision audit log. Entries
// record the outcome of authorization checks for operators and tooling;
// they are never read back by the consensus path.
package checklog

import (
	"fmt"
	"time"

	"go.jetify.com/typeid/v2"
)

// IDPrefix is the TypeID prefix for check log entries.
const IDPrefix = "achk"

// NewID generates a K-sortable, globally unique entry ID.
func NewID() string {
	tid, err := typeid.Generate(IDPrefix)
	if err != nil {
		panic(fmt.Sprintf("checklog: generate id: %v", err))
	}
	return tid.String()
}

// Entry is a single authorization check audit record.
type Entry struct {
	ID             string    `json:"id" db:"id"`
	Authorizations []string  `json:"authorizations" db:"authorizations"`
	Satisfied      bool      `json:"satisfied" db:"satisfied"`
	Reason         string    `json:"reason,omitempty" db:"reason"`
	EvalTimeNs     int64     `json:"eval_time_ns" db:"eval_time_ns"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying check log entries.
type QueryFilter struct {
	Satisfied *bool      `json:"satisfied,omitempty"`
	After     *time.Time `json:"after,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
