package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/Bitconch/authz/permission"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type permissionCreatedEntry struct {
	name string
	hook PermissionCreated
}
type permissionModifiedEntry struct {
	name string
	hook PermissionModified
}
type permissionRemovedEntry struct {
	name string
	hook PermissionRemoved
}
type usageUpdatedEntry struct {
	name string
	hook UsageUpdated
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck        []beforeCheckEntry
	afterCheck         []afterCheckEntry
	permissionCreated  []permissionCreatedEntry
	permissionModified []permissionModifiedEntry
	permissionRemoved  []permissionRemovedEntry
	usageUpdated       []usageUpdatedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable hook
// caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(PermissionCreated); ok {
		r.permissionCreated = append(r.permissionCreated, permissionCreatedEntry{name, h})
	}
	if h, ok := p.(PermissionModified); ok {
		r.permissionModified = append(r.permissionModified, permissionModifiedEntry{name, h})
	}
	if h, ok := p.(PermissionRemoved); ok {
		r.permissionRemoved = append(r.permissionRemoved, permissionRemovedEntry{name, h})
	}
	if h, ok := p.(UsageUpdated); ok {
		r.usageUpdated = append(r.usageUpdated, usageUpdatedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req any, checkErr error, evalTime time.Duration) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, checkErr, evalTime); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// EmitPermissionCreated notifies all plugins that implement PermissionCreated.
func (r *Registry) EmitPermissionCreated(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionCreated {
		if err := e.hook.OnPermissionCreated(ctx, p); err != nil {
			r.logHookError("OnPermissionCreated", e.name, err)
		}
	}
}

// EmitPermissionModified notifies all plugins that implement PermissionModified.
func (r *Registry) EmitPermissionModified(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionModified {
		if err := e.hook.OnPermissionModified(ctx, p); err != nil {
			r.logHookError("OnPermissionModified", e.name, err)
		}
	}
}

// EmitPermissionRemoved notifies all plugins that implement PermissionRemoved.
func (r *Registry) EmitPermissionRemoved(ctx context.Context, permID permission.ID) {
	for _, e := range r.permissionRemoved {
		if err := e.hook.OnPermissionRemoved(ctx, permID); err != nil {
			r.logHookError("OnPermissionRemoved", e.name, err)
		}
	}
}

// EmitUsageUpdated notifies all plugins that implement UsageUpdated.
func (r *Registry) EmitUsageUpdated(ctx context.Context, p *permission.Permission) {
	for _, e := range r.usageUpdated {
		if err := e.hook.OnUsageUpdated(ctx, p); err != nil {
			r.logHookError("OnUsageUpdated", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not alter the
// consensus verdict.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
