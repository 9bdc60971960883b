// Package sqlite provides a SQLite implementation of the authorization
// store using grove ORM with Go-based migrations. It serves durable
// deployments and tooling; consensus evaluation normally runs against
// the memory store and replays into SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/Bitconch/authz/checklog"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the authorization store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB

	idMu        sync.Mutex
	idsPrimed   bool
	nextPermID  uint64
	nextUsageID uint64
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("authz/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("authz/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// primeIDs loads the dense ID counters from the current table contents.
// The host serializes all mutations, so a single process-local counter
// is sufficient.
func (s *Store) primeIDs(ctx context.Context) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if s.idsPrimed {
		return nil
	}

	var perms []permissionModel
	err := s.sdb.NewSelect(&perms).OrderExpr("id DESC").Limit(1).Scan(ctx)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("authz: prime permission ids: %w", err)
	}
	if len(perms) > 0 {
		s.nextPermID = perms[0].ID + 1
	}

	var usages []usageModel
	err = s.sdb.NewSelect(&usages).OrderExpr("id DESC").Limit(1).Scan(ctx)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("authz: prime usage ids: %w", err)
	}
	if len(usages) > 0 {
		s.nextUsageID = usages[0].ID + 1
	}

	s.idsPrimed = true
	return nil
}

// ──────────────────────────────────────────────────
// Permissions
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	if err := s.primeIDs(ctx); err != nil {
		return err
	}

	existing := new(permissionModel)
	err := s.sdb.NewSelect(existing).
		Where("owner = ?", p.Owner.String()).
		Where("name = ?", p.Name.String()).
		Scan(ctx)
	if err == nil {
		return fmt.Errorf("permission %s@%s: %w", p.Owner, p.Name, store.ErrExists)
	}
	if !isNoRows(err) {
		return fmt.Errorf("authz: create permission: %w", err)
	}

	s.idMu.Lock()
	p.ID = permission.ID(s.nextPermID)
	s.nextPermID++
	s.idMu.Unlock()

	m, err := permissionToModel(p)
	if err != nil {
		return fmt.Errorf("authz: create permission: %w", err)
	}
	m.CreatedAt = time.Now().UTC()
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("authz: create permission: %w", err)
	}
	return nil
}

func (s *Store) PermissionByID(ctx context.Context, id permission.ID) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).Where("id = ?", uint64(id)).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission id %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("authz: get permission: %w", err)
	}
	return permissionFromModel(m)
}

func (s *Store) PermissionByOwner(ctx context.Context, owner name.AccountName, permName name.PermissionName) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", owner.String()).
		Where("name = ?", permName.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission %s@%s: %w", owner, permName, store.ErrNotFound)
		}
		return nil, fmt.Errorf("authz: get permission: %w", err)
	}
	return permissionFromModel(m)
}

func (s *Store) PermissionsByOwner(ctx context.Context, owner name.AccountName) ([]*permission.Permission, error) {
	var models []permissionModel
	err := s.sdb.NewSelect(&models).
		Where("owner = ?", owner.String()).
		Where("id <> 0").
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		p, err := permissionFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("authz: list permissions: %w", err)
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) HasChildren(ctx context.Context, id permission.ID) (bool, error) {
	count, err := s.sdb.NewSelect((*permissionModel)(nil)).
		Where("parent = ?", uint64(id)).
		Where("id <> 0").
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("authz: count children: %w", err)
	}
	return count > 0, nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	m, err := permissionToModel(p)
	if err != nil {
		return fmt.Errorf("authz: update permission: %w", err)
	}
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("authz: update permission: %w", err)
	}
	return nil
}

func (s *Store) RemovePermission(ctx context.Context, id permission.ID) error {
	_, err := s.sdb.NewDelete((*permissionModel)(nil)).
		Where("id = ?", uint64(id)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("authz: remove permission: %w", err)
	}
	return nil
}

func (s *Store) WalkPermissions(ctx context.Context, fn func(*permission.Permission) error) error {
	var models []permissionModel
	err := s.sdb.NewSelect(&models).OrderExpr("id ASC").Scan(ctx)
	if err != nil {
		return fmt.Errorf("authz: walk permissions: %w", err)
	}
	for i := range models {
		p, err := permissionFromModel(&models[i])
		if err != nil {
			return fmt.Errorf("authz: walk permissions: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Usage records
// ──────────────────────────────────────────────────

func (s *Store) CreateUsage(ctx context.Context, u *permission.Usage) error {
	if err := s.primeIDs(ctx); err != nil {
		return err
	}
	s.idMu.Lock()
	u.ID = permission.UsageID(s.nextUsageID)
	s.nextUsageID++
	s.idMu.Unlock()

	if _, err := s.sdb.NewInsert(usageToModel(u)).Exec(ctx); err != nil {
		return fmt.Errorf("authz: create usage: %w", err)
	}
	return nil
}

func (s *Store) UsageByID(ctx context.Context, id permission.UsageID) (*permission.Usage, error) {
	m := new(usageModel)
	err := s.sdb.NewSelect(m).Where("id = ?", uint64(id)).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission usage id %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("authz: get usage: %w", err)
	}
	return usageFromModel(m), nil
}

func (s *Store) UpdateUsage(ctx context.Context, u *permission.Usage) error {
	if _, err := s.sdb.NewUpdate(usageToModel(u)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("authz: update usage: %w", err)
	}
	return nil
}

func (s *Store) RemoveUsage(ctx context.Context, id permission.UsageID) error {
	_, err := s.sdb.NewDelete((*usageModel)(nil)).
		Where("id = ?", uint64(id)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("authz: remove usage: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Links
// ──────────────────────────────────────────────────

func (s *Store) CreateLink(ctx context.Context, l *permission.Link) error {
	existing := new(linkModel)
	err := s.sdb.NewSelect(existing).
		Where("owner = ?", l.Owner.String()).
		Where("contract = ?", l.Contract.String()).
		Where("action = ?", l.Action.String()).
		Scan(ctx)
	if err == nil {
		return fmt.Errorf("link %s:%s::%s: %w", l.Owner, l.Contract, l.Action, store.ErrExists)
	}
	if !isNoRows(err) {
		return fmt.Errorf("authz: create link: %w", err)
	}

	if _, err := s.sdb.NewInsert(linkToModel(l)).Exec(ctx); err != nil {
		return fmt.Errorf("authz: create link: %w", err)
	}
	return nil
}

func (s *Store) LinkByActionName(ctx context.Context, owner, contract name.AccountName, action name.ActionName) (*permission.Link, error) {
	m := new(linkModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", owner.String()).
		Where("contract = ?", contract.String()).
		Where("action = ?", action.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("link %s:%s::%s: %w", owner, contract, action, store.ErrNotFound)
		}
		return nil, fmt.Errorf("authz: get link: %w", err)
	}
	return linkFromModel(m), nil
}

func (s *Store) LinksByOwner(ctx context.Context, owner name.AccountName) ([]*permission.Link, error) {
	var models []linkModel
	err := s.sdb.NewSelect(&models).
		Where("owner = ?", owner.String()).
		OrderExpr("contract ASC, action ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: list links: %w", err)
	}
	result := make([]*permission.Link, len(models))
	for i := range models {
		result[i] = linkFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) RemoveLink(ctx context.Context, owner, contract name.AccountName, action name.ActionName) error {
	_, err := s.sdb.NewDelete((*linkModel)(nil)).
		Where("owner = ?", owner.String()).
		Where("contract = ?", contract.String()).
		Where("action = ?", action.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("authz: remove link: %w", err)
	}
	return nil
}

func (s *Store) WalkLinks(ctx context.Context, fn func(*permission.Link) error) error {
	var models []linkModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("owner ASC, contract ASC, action ASC").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("authz: walk links: %w", err)
	}
	for i := range models {
		if err := fn(linkFromModel(&models[i])); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Check log
// ──────────────────────────────────────────────────

func (s *Store) AppendCheckLog(ctx context.Context, e *checklog.Entry) error {
	m, err := checkLogToModel(e)
	if err != nil {
		return fmt.Errorf("authz: append check log: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("authz: append check log: %w", err)
	}
	return nil
}

func (s *Store) CheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")
	if filter != nil {
		if filter.Satisfied != nil {
			q = q.Where("satisfied = ?", *filter.Satisfied)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("authz: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, len(models))
	for i := range models {
		e, err := checkLogFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("authz: list check logs: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PruneCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*checkLogModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("authz: prune check logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
