// Package memory provides the in-memory indexed store the chain evaluates
// against. Range scans sort their keys before visiting so that iteration
// order is identical on every node.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/checklog"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type ownerKey struct {
	owner name.AccountName
	name  name.PermissionName
}

type linkKey struct {
	owner    name.AccountName
	contract name.AccountName
	action   name.ActionName
}

func (k linkKey) less(o linkKey) bool {
	if k.owner != o.owner {
		return k.owner < o.owner
	}
	if k.contract != o.contract {
		return k.contract < o.contract
	}
	return k.action < o.action
}

// Store is a thread-safe in-memory store for the permission graph.
type Store struct {
	mu sync.RWMutex

	permissions map[permission.ID]*permission.Permission
	byOwner     map[ownerKey]permission.ID
	children    map[permission.ID]int // parent -> live child count
	usages      map[permission.UsageID]*permission.Usage
	links       map[linkKey]*permission.Link
	checkLogs   []*checklog.Entry

	nextPermID  permission.ID
	nextUsageID permission.UsageID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		permissions: make(map[permission.ID]*permission.Permission),
		byOwner:     make(map[ownerKey]permission.ID),
		children:    make(map[permission.ID]int),
		usages:      make(map[permission.UsageID]*permission.Usage),
		links:       make(map[linkKey]*permission.Link),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Permissions
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{p.Owner, p.Name}
	if _, taken := s.byOwner[key]; taken {
		return fmt.Errorf("permission %s@%s: %w", p.Owner, p.Name, store.ErrExists)
	}

	p.ID = s.nextPermID
	s.nextPermID++

	s.permissions[p.ID] = copyPermission(p)
	s.byOwner[key] = p.ID
	if p.ID != 0 {
		s.children[p.Parent]++
	}
	return nil
}

func (s *Store) PermissionByID(_ context.Context, id permission.ID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, fmt.Errorf("permission id %d: %w", id, store.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) PermissionByOwner(_ context.Context, owner name.AccountName, permName name.PermissionName) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[ownerKey{owner, permName}]
	if !ok {
		return nil, fmt.Errorf("permission %s@%s: %w", owner, permName, store.ErrNotFound)
	}
	return copyPermission(s.permissions[id]), nil
}

func (s *Store) PermissionsByOwner(_ context.Context, owner name.AccountName) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*permission.Permission
	for key, id := range s.byOwner {
		if key.owner == owner && id != 0 {
			result = append(result, copyPermission(s.permissions[id]))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) HasChildren(_ context.Context, id permission.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children[id] > 0, nil
}

func (s *Store) UpdatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.permissions[p.ID]
	if !ok {
		return fmt.Errorf("permission id %d: %w", p.ID, store.ErrNotFound)
	}
	// Owner, name, and parent are immutable through Update; the graph
	// indexes stay valid.
	if old.Owner != p.Owner || old.Name != p.Name || old.Parent != p.Parent {
		return fmt.Errorf("permission id %d: cannot change owner, name, or parent: %w", p.ID, store.ErrExists)
	}
	s.permissions[p.ID] = copyPermission(p)
	return nil
}

func (s *Store) RemovePermission(_ context.Context, id permission.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return fmt.Errorf("permission id %d: %w", id, store.ErrNotFound)
	}
	delete(s.permissions, id)
	delete(s.byOwner, ownerKey{p.Owner, p.Name})
	if id != 0 {
		if s.children[p.Parent] > 1 {
			s.children[p.Parent]--
		} else {
			delete(s.children, p.Parent)
		}
	}
	return nil
}

func (s *Store) WalkPermissions(_ context.Context, fn func(*permission.Permission) error) error {
	s.mu.RLock()
	ids := make([]permission.ID, 0, len(s.permissions))
	for id := range s.permissions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]*permission.Permission, len(ids))
	for i, id := range ids {
		rows[i] = copyPermission(s.permissions[id])
	}
	s.mu.RUnlock()

	for _, row := range rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Usage records
// ──────────────────────────────────────────────────

func (s *Store) CreateUsage(_ context.Context, u *permission.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextUsageID
	s.nextUsageID++
	s.usages[u.ID] = &permission.Usage{ID: u.ID, LastUsed: u.LastUsed}
	return nil
}

func (s *Store) UsageByID(_ context.Context, id permission.UsageID) (*permission.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usages[id]
	if !ok {
		return nil, fmt.Errorf("permission usage id %d: %w", id, store.ErrNotFound)
	}
	return &permission.Usage{ID: u.ID, LastUsed: u.LastUsed}, nil
}

func (s *Store) UpdateUsage(_ context.Context, u *permission.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usages[u.ID]; !ok {
		return fmt.Errorf("permission usage id %d: %w", u.ID, store.ErrNotFound)
	}
	s.usages[u.ID] = &permission.Usage{ID: u.ID, LastUsed: u.LastUsed}
	return nil
}

func (s *Store) RemoveUsage(_ context.Context, id permission.UsageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usages[id]; !ok {
		return fmt.Errorf("permission usage id %d: %w", id, store.ErrNotFound)
	}
	delete(s.usages, id)
	return nil
}

// ──────────────────────────────────────────────────
// Links
// ──────────────────────────────────────────────────

func (s *Store) CreateLink(_ context.Context, l *permission.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{l.Owner, l.Contract, l.Action}
	if _, taken := s.links[key]; taken {
		return fmt.Errorf("link %s:%s::%s: %w", l.Owner, l.Contract, l.Action, store.ErrExists)
	}
	s.links[key] = copyLink(l)
	return nil
}

func (s *Store) LinkByActionName(_ context.Context, owner, contract name.AccountName, action name.ActionName) (*permission.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[linkKey{owner, contract, action}]
	if !ok {
		return nil, fmt.Errorf("link %s:%s::%s: %w", owner, contract, action, store.ErrNotFound)
	}
	return copyLink(l), nil
}

func (s *Store) LinksByOwner(_ context.Context, owner name.AccountName) ([]*permission.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]linkKey, 0)
	for key := range s.links {
		if key.owner == owner {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	result := make([]*permission.Link, len(keys))
	for i, key := range keys {
		result[i] = copyLink(s.links[key])
	}
	return result, nil
}

func (s *Store) RemoveLink(_ context.Context, owner, contract name.AccountName, action name.ActionName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{owner, contract, action}
	if _, ok := s.links[key]; !ok {
		return fmt.Errorf("link %s:%s::%s: %w", owner, contract, action, store.ErrNotFound)
	}
	delete(s.links, key)
	return nil
}

func (s *Store) WalkLinks(_ context.Context, fn func(*permission.Link) error) error {
	s.mu.RLock()
	keys := make([]linkKey, 0, len(s.links))
	for key := range s.links {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	rows := make([]*permission.Link, len(keys))
	for i, key := range keys {
		rows[i] = copyLink(s.links[key])
	}
	s.mu.RUnlock()

	for _, row := range rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Check log
// ──────────────────────────────────────────────────

func (s *Store) AppendCheckLog(_ context.Context, e *checklog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkLogs = append(s.checkLogs, copyEntry(e))
	return nil
}

func (s *Store) CheckLogs(_ context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*checklog.Entry
	for i := len(s.checkLogs) - 1; i >= 0; i-- {
		e := s.checkLogs[i]
		if filter != nil {
			if filter.Satisfied != nil && e.Satisfied != *filter.Satisfied {
				continue
			}
			if filter.After != nil && !e.CreatedAt.After(*filter.After) {
				continue
			}
			if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
				continue
			}
		}
		result = append(result, copyEntry(e))
	}
	return applyWindow(result, filter), nil
}

func (s *Store) PruneCheckLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.checkLogs[:0]
	var removed int64
	for _, e := range s.checkLogs {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.checkLogs = kept
	return removed, nil
}

func applyWindow(entries []*checklog.Entry, filter *checklog.QueryFilter) []*checklog.Entry {
	if filter == nil {
		return entries
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(entries) {
		entries = entries[:filter.Limit]
	}
	return entries
}

// ──────────────────────────────────────────────────
// Copy helpers — callers never share memory with the store.
// ──────────────────────────────────────────────────

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	c.Auth.Keys = append([]authority.KeyWeight(nil), p.Auth.Keys...)
	c.Auth.Accounts = append([]authority.PermissionLevelWeight(nil), p.Auth.Accounts...)
	c.Auth.Waits = append([]authority.WaitWeight(nil), p.Auth.Waits...)
	return &c
}

func copyLink(l *permission.Link) *permission.Link {
	c := *l
	return &c
}

func copyEntry(e *checklog.Entry) *checklog.Entry {
	c := *e
	c.Authorizations = append([]string(nil), e.Authorizations...)
	return &c
}
