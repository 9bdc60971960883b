package authz

import (
	"log/slog"

	"github.com/Bitconch/authz/plugin"
	"github.com/Bitconch/authz/store"
)

// Option is a functional option for the Manager.
type Option func(*Manager)

// WithStore sets the permission graph store.
func WithStore(s store.Store) Option { return func(m *Manager) { m.store = s } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithConfig sets the chain configuration limits.
func WithConfig(c Config) Option { return func(m *Manager) { m.config = c } }

// WithTimeFunc sets the pending-block-time source.
func WithTimeFunc(fn TimeFunc) Option { return func(m *Manager) { m.now = fn } }

// WithFeatureSet sets the protocol feature gate.
func WithFeatureSet(fs FeatureSet) Option { return func(m *Manager) { m.features = fs } }

// WithDeferredStore sets the deferred-transaction lookup used by
// canceldelay authorization.
func WithDeferredStore(ds DeferredStore) Option { return func(m *Manager) { m.deferred = ds } }

// WithAuthorityCache sets the authority lookup cache.
func WithAuthorityCache(c AuthorityCache) Option { return func(m *Manager) { m.cache = c } }

// WithPlugin registers a plugin with the manager.
func WithPlugin(p plugin.Plugin) Option {
	return func(m *Manager) {
		if m.plugins == nil {
			m.plugins = plugin.NewRegistry(m.logger)
		}
		m.plugins.Register(p)
	}
}
