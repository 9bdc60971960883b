package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/plugin"
	"github.com/Bitconch/authz/store"
)

// Manager owns the permission graph and decides transaction
// authorization. It mutates the store only through the explicit graph
// operations; the check paths are read-only.
type Manager struct {
	store    store.Store
	logger   *slog.Logger
	config   Config
	now      TimeFunc
	features FeatureSet
	deferred DeferredStore
	cache    AuthorityCache
	plugins  *plugin.Registry
}

// NewManager creates an authorization manager with the given options.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		logger:   slog.Default(),
		config:   DefaultConfig(),
		features: noFeatures{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		return nil, errors.New("authz: store is required")
	}
	if m.plugins == nil {
		m.plugins = plugin.NewRegistry(m.logger)
	}
	return m, nil
}

// Store returns the underlying permission graph store.
func (m *Manager) Store() store.Store { return m.store }

// Config returns the chain limits the manager runs with.
func (m *Manager) Config() Config { return m.config }

// InitializeDatabase reserves permission 0, the root sentinel every
// top-level permission points at. Must run once on an empty store.
func (m *Manager) InitializeDatabase(ctx context.Context) error {
	reserved := &permission.Permission{}
	if err := m.store.CreatePermission(ctx, reserved); err != nil {
		return fmt.Errorf("authz: reserve permission 0: %w", err)
	}
	if reserved.ID != 0 {
		return fmt.Errorf("authz: reserve permission 0: store assigned id %d", reserved.ID)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Graph operations
// ──────────────────────────────────────────────────

// CreatePermission inserts a new permission and its usage record. A zero
// creationTime means the pending block time. The authority must be
// well-formed and the parent chain must leave room inside the depth
// limit.
func (m *Manager) CreatePermission(ctx context.Context, owner name.AccountName, permName name.PermissionName, parent permission.ID, auth authority.Authority, creationTime time.Time) (*permission.Permission, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkParentDepth(ctx, parent); err != nil {
		return nil, err
	}

	if creationTime.IsZero() {
		creationTime = m.now()
	}

	usage := &permission.Usage{LastUsed: creationTime}
	if err := m.store.CreateUsage(ctx, usage); err != nil {
		return nil, fmt.Errorf("authz: create permission usage: %w", err)
	}

	perm := &permission.Permission{
		UsageID:     usage.ID,
		Parent:      parent,
		Owner:       owner,
		Name:        permName,
		LastUpdated: creationTime,
		Auth:        auth,
	}
	if err := m.store.CreatePermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("authz: create permission: %w", err)
	}

	m.plugins.EmitPermissionCreated(ctx, perm)
	m.logger.Debug("permission created",
		slog.String("owner", owner.String()),
		slog.String("name", permName.String()),
		slog.Uint64("id", uint64(perm.ID)),
	)
	return perm, nil
}

// checkParentDepth verifies that a child of parent stays within the
// authority depth limit.
func (m *Manager) checkParentDepth(ctx context.Context, parent permission.ID) error {
	depth := uint16(1)
	for cur := parent; cur != 0; depth++ {
		if depth >= m.config.MaxAuthorityDepth {
			return fmt.Errorf("%w: permission tree would exceed depth limit %d", ErrActionValidate, m.config.MaxAuthorityDepth)
		}
		p, err := m.store.PermissionByID(ctx, cur)
		if err != nil {
			return fmt.Errorf("%w: parent %d: %w", ErrPermissionQuery, parent, err)
		}
		cur = p.Parent
	}
	return nil
}

// ModifyPermission replaces the permission's authority and stamps
// LastUpdated with the pending block time. Name and parent are
// untouched.
func (m *Manager) ModifyPermission(ctx context.Context, perm *permission.Permission, auth authority.Authority) error {
	if perm.ID == 0 {
		return fmt.Errorf("%w: cannot modify reserved permission 0", ErrActionValidate)
	}
	if err := auth.Validate(); err != nil {
		return err
	}
	perm.Auth = auth
	perm.LastUpdated = m.now()
	if err := m.store.UpdatePermission(ctx, perm); err != nil {
		return fmt.Errorf("authz: modify permission: %w", err)
	}
	if m.cache != nil {
		m.cache.Invalidate(perm.Level())
	}
	m.plugins.EmitPermissionModified(ctx, perm)
	return nil
}

// RemovePermission deletes the permission and its usage record. Fails
// while any other permission still names it as parent.
func (m *Manager) RemovePermission(ctx context.Context, perm *permission.Permission) error {
	if perm.ID == 0 {
		return fmt.Errorf("%w: cannot remove reserved permission 0", ErrActionValidate)
	}
	hasChildren, err := m.store.HasChildren(ctx, perm.ID)
	if err != nil {
		return fmt.Errorf("authz: remove permission: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("%w: cannot remove a permission which has children, remove the children first", ErrActionValidate)
	}
	if err := m.store.RemoveUsage(ctx, perm.UsageID); err != nil {
		return fmt.Errorf("authz: remove permission usage: %w", err)
	}
	if err := m.store.RemovePermission(ctx, perm.ID); err != nil {
		return fmt.Errorf("authz: remove permission: %w", err)
	}
	if m.cache != nil {
		m.cache.Invalidate(perm.Level())
	}
	m.plugins.EmitPermissionRemoved(ctx, perm.ID)
	return nil
}

// UpdatePermissionUsage stamps the permission's usage record with the
// pending block time. Called once per authorizing permission per
// successful transaction.
func (m *Manager) UpdatePermissionUsage(ctx context.Context, perm *permission.Permission) error {
	usage, err := m.store.UsageByID(ctx, perm.UsageID)
	if err != nil {
		return fmt.Errorf("authz: update permission usage: %w", err)
	}
	usage.LastUsed = m.now()
	if err := m.store.UpdateUsage(ctx, usage); err != nil {
		return fmt.Errorf("authz: update permission usage: %w", err)
	}
	m.plugins.EmitUsageUpdated(ctx, perm)
	return nil
}

// PermissionLastUsed returns when the permission last authorized a
// transaction.
func (m *Manager) PermissionLastUsed(ctx context.Context, perm *permission.Permission) (time.Time, error) {
	usage, err := m.store.UsageByID(ctx, perm.UsageID)
	if err != nil {
		return time.Time{}, fmt.Errorf("authz: permission last used: %w", err)
	}
	return usage.LastUsed, nil
}

// ──────────────────────────────────────────────────
// Lookups
// ──────────────────────────────────────────────────

// FindPermission returns the permission named by level, or nil when no
// such permission exists.
func (m *Manager) FindPermission(ctx context.Context, level authority.PermissionLevel) (*permission.Permission, error) {
	if level.Actor.Empty() || level.Permission.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, level)
	}
	p, err := m.store.PermissionByOwner(ctx, level.Actor, level.Permission)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPermissionQuery, level, err)
	}
	return p, nil
}

// GetPermission returns the permission named by level, failing when it
// does not exist.
func (m *Manager) GetPermission(ctx context.Context, level authority.PermissionLevel) (*permission.Permission, error) {
	if level.Actor.Empty() || level.Permission.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, level)
	}
	p, err := m.store.PermissionByOwner(ctx, level.Actor, level.Permission)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPermissionQuery, level, err)
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Structural satisfaction
// ──────────────────────────────────────────────────

// permissionSatisfies reports whether candidate is ancestor-or-equal of
// min within the owner's tree: the declared permission covers the
// minimum exactly when the minimum lies underneath it.
func (m *Manager) permissionSatisfies(ctx context.Context, candidate, min *permission.Permission) (bool, error) {
	if candidate.Owner != min.Owner {
		return false, nil
	}
	if candidate.ID == min.ID || candidate.ID == min.Parent {
		return true, nil
	}

	cur := min.Parent
	for steps := uint16(0); steps < m.config.MaxAuthorityDepth; steps++ {
		if cur == 0 {
			return false, nil
		}
		p, err := m.store.PermissionByID(ctx, cur)
		if err != nil {
			return false, fmt.Errorf("%w: ancestor %d: %w", ErrPermissionQuery, cur, err)
		}
		if candidate.ID == p.Parent {
			return true, nil
		}
		cur = p.Parent
	}
	return false, nil
}

// authorityProvider adapts permission lookup for the authority checker,
// consulting the cache when one is configured.
func (m *Manager) authorityProvider() AuthorityProvider {
	return func(ctx context.Context, level authority.PermissionLevel) (authority.Authority, error) {
		if m.cache != nil {
			if auth, ok := m.cache.Get(level); ok {
				return auth, nil
			}
		}
		p, err := m.GetPermission(ctx, level)
		if err != nil {
			return authority.Authority{}, err
		}
		if m.cache != nil {
			m.cache.Set(level, p.Auth)
		}
		return p.Auth, nil
	}
}
