// Package store defines the persistence interface for the permission
// graph: permission rows, their usage records, and action links, behind
// the secondary indices authorization needs. Backends: Memory (the
// consensus evaluation path), SQLite, and Postgres.
package store

import (
	"context"
	"errors"

	"github.com/Bitconch/authz/checklog"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
)

// ErrNotFound is the sentinel for missing rows. Backends wrap it with the
// entity and key.
var ErrNotFound = errors.New("not found")

// ErrExists is the sentinel for unique-key violations.
var ErrExists = errors.New("already exists")

// Store is the aggregate persistence interface. All range scans traverse
// in lexicographic key order; callers rely on that for canonical
// iteration. Mutations run inside the host's transaction scope; the
// backend is responsible for atomicity.
type Store interface {
	// CreatePermission inserts p, assigning the next dense ID (the first
	// row ever created gets ID 0, the reserved sentinel). Fails with
	// ErrExists when (owner, name) is already taken by a live row.
	CreatePermission(ctx context.Context, p *permission.Permission) error

	// PermissionByID returns the permission with the given ID.
	PermissionByID(ctx context.Context, id permission.ID) (*permission.Permission, error)

	// PermissionByOwner returns the permission keyed (owner, name).
	PermissionByOwner(ctx context.Context, owner name.AccountName, permName name.PermissionName) (*permission.Permission, error)

	// PermissionsByOwner returns all of owner's permissions, name ascending.
	PermissionsByOwner(ctx context.Context, owner name.AccountName) ([]*permission.Permission, error)

	// HasChildren reports whether any permission has id as its parent.
	HasChildren(ctx context.Context, id permission.ID) (bool, error)

	// UpdatePermission persists changes to an existing permission row.
	UpdatePermission(ctx context.Context, p *permission.Permission) error

	// RemovePermission deletes the permission row.
	RemovePermission(ctx context.Context, id permission.ID) error

	// WalkPermissions visits every permission in ID order. Returning an
	// error from fn stops the walk and propagates.
	WalkPermissions(ctx context.Context, fn func(*permission.Permission) error) error

	// CreateUsage inserts u, assigning the next dense UsageID.
	CreateUsage(ctx context.Context, u *permission.Usage) error

	// UsageByID returns the usage record with the given ID.
	UsageByID(ctx context.Context, id permission.UsageID) (*permission.Usage, error)

	// UpdateUsage persists changes to an existing usage row.
	UpdateUsage(ctx context.Context, u *permission.Usage) error

	// RemoveUsage deletes the usage row.
	RemoveUsage(ctx context.Context, id permission.UsageID) error

	// CreateLink inserts a link. (owner, contract, action) is unique.
	CreateLink(ctx context.Context, l *permission.Link) error

	// LinkByActionName returns the link keyed (owner, contract, action).
	// action may be empty for the contract-wide default.
	LinkByActionName(ctx context.Context, owner, contract name.AccountName, action name.ActionName) (*permission.Link, error)

	// LinksByOwner returns all of owner's links, (contract, action)
	// ascending.
	LinksByOwner(ctx context.Context, owner name.AccountName) ([]*permission.Link, error)

	// RemoveLink deletes the link keyed (owner, contract, action).
	RemoveLink(ctx context.Context, owner, contract name.AccountName, action name.ActionName) error

	// WalkLinks visits every link in (owner, contract, action) order.
	WalkLinks(ctx context.Context, fn func(*permission.Link) error) error

	checklog.Store

	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
