// Package plugin defines the plugin system for the authorization manager.
// Plugins are notified of lifecycle events (permission mutated, check
// performed) and can react — audit logging, metrics, tracing.
//
// Each lifecycle hook is a separate interface so plugins opt in only to
// the events they care about. Hooks run outside the consensus verdict:
// their errors are logged, never propagated.
package plugin

import (
	"context"
	"time"

	"github.com/Bitconch/authz/permission"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before a transaction authorization check runs.
// The req parameter is *authz.CheckRequest (passed as any to avoid an
// import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after a transaction authorization check completes.
// The req parameter is *authz.CheckRequest; err is the verdict (nil when
// every obligation was satisfied).
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req any, err error, evalTime time.Duration) error
}

// ──────────────────────────────────────────────────
// Permission lifecycle hooks
// ──────────────────────────────────────────────────

// PermissionCreated is called after a permission is created.
type PermissionCreated interface {
	OnPermissionCreated(ctx context.Context, p *permission.Permission) error
}

// PermissionModified is called after a permission's authority changes.
type PermissionModified interface {
	OnPermissionModified(ctx context.Context, p *permission.Permission) error
}

// PermissionRemoved is called after a permission is removed.
type PermissionRemoved interface {
	OnPermissionRemoved(ctx context.Context, permID permission.ID) error
}

// UsageUpdated is called after a permission's usage timestamp advances.
type UsageUpdated interface {
	OnUsageUpdated(ctx context.Context, p *permission.Permission) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
