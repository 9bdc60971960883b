// Package cache provides an authority lookup cache for the authorization
// manager. Entries are invalidated on every mutation of the underlying
// permission, so a hit always returns exactly what the store would.
package cache

import (
	"sync"

	"github.com/Bitconch/authz"
	"github.com/Bitconch/authz/authority"
)

// Compile-time interface check.
var _ authz.AuthorityCache = (*Authority)(nil)

// Authority is a bounded in-memory authority cache.
type Authority struct {
	mu      sync.RWMutex
	entries map[authority.PermissionLevel]authority.Authority
	maxSize int
}

// AuthorityOption configures the cache.
type AuthorityOption func(*Authority)

// WithMaxSize sets the maximum number of cached authorities.
func WithMaxSize(n int) AuthorityOption {
	return func(a *Authority) { a.maxSize = n }
}

// NewAuthority creates an authority cache.
func NewAuthority(opts ...AuthorityOption) *Authority {
	a := &Authority{
		entries: make(map[authority.PermissionLevel]authority.Authority),
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Get returns the cached authority for level.
func (a *Authority) Get(level authority.PermissionLevel) (authority.Authority, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	auth, ok := a.entries[level]
	return auth, ok
}

// Set caches the authority for level, evicting one arbitrary entry when
// at capacity.
func (a *Authority) Set(level authority.PermissionLevel, auth authority.Authority) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) >= a.maxSize {
		for k := range a.entries {
			delete(a.entries, k)
			break
		}
	}
	a.entries[level] = auth
}

// Invalidate drops the cached authority for level.
func (a *Authority) Invalidate(level authority.PermissionLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, level)
}
