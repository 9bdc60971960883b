package authz

import (
	"context"
	"fmt"

	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/snapshot"
)

// AddToSnapshot writes the permission graph as two sections: permissions
// (usage inlined, parents by name) and links. Rows go out in index
// order, which is stable per writer.
func (m *Manager) AddToSnapshot(ctx context.Context, w snapshot.Writer) error {
	err := w.WriteSection(snapshot.PermissionSection, func(add func(row any) error) error {
		return m.store.WalkPermissions(ctx, func(p *permission.Permission) error {
			row := snapshot.PermissionRow{
				Owner:       p.Owner,
				Name:        p.Name,
				LastUpdated: p.LastUpdated,
				Auth:        p.Auth,
			}
			if p.Parent != 0 {
				parent, err := m.store.PermissionByID(ctx, p.Parent)
				if err != nil {
					return fmt.Errorf("authz: snapshot parent of %s@%s: %w", p.Owner, p.Name, err)
				}
				row.Parent = parent.Name
			}
			if p.ID != 0 {
				usage, err := m.store.UsageByID(ctx, p.UsageID)
				if err != nil {
					return fmt.Errorf("authz: snapshot usage of %s@%s: %w", p.Owner, p.Name, err)
				}
				row.LastUsed = usage.LastUsed
			}
			return add(row)
		})
	})
	if err != nil {
		return err
	}

	return w.WriteSection(snapshot.LinkSection, func(add func(row any) error) error {
		return m.store.WalkLinks(ctx, func(l *permission.Link) error {
			return add(snapshot.LinkRow{
				Owner:              l.Owner,
				Contract:           l.Contract,
				Action:             l.Action,
				RequiredPermission: l.RequiredPermission,
			})
		})
	})
}

// ReadFromSnapshot rebuilds the permission graph into an empty store.
// The first permission row must carry the reserved sentinel values;
// parents resolve by (owner, parent name) and must never map back to
// the reserved row.
func (m *Manager) ReadFromSnapshot(ctx context.Context, r snapshot.Reader) error {
	err := r.ReadSection(snapshot.PermissionSection, func(next func(row any) (bool, error)) error {
		first := true
		for {
			var row snapshot.PermissionRow
			more, err := next(&row)
			if err != nil {
				return err
			}
			if !more {
				break
			}

			if first {
				first = false
				if err := checkReservedRow(&row); err != nil {
					return err
				}
				reserved := &permission.Permission{}
				if err := m.store.CreatePermission(ctx, reserved); err != nil {
					return fmt.Errorf("authz: snapshot reserve permission 0: %w", err)
				}
				if reserved.ID != 0 {
					return fmt.Errorf("%w: reserved permission assigned id %d", ErrSnapshot, reserved.ID)
				}
				continue
			}

			var parentID permission.ID
			if !row.Parent.Empty() {
				parent, err := m.store.PermissionByOwner(ctx, row.Owner, row.Parent)
				if err != nil {
					return fmt.Errorf("%w: parent %s of %s@%s: %w", ErrSnapshot, row.Parent, row.Owner, row.Name, err)
				}
				if parent.ID == 0 {
					return fmt.Errorf("%w: unexpected mapping to reserved permission 0", ErrSnapshot)
				}
				parentID = parent.ID
			}

			usage := &permission.Usage{LastUsed: row.LastUsed}
			if err := m.store.CreateUsage(ctx, usage); err != nil {
				return fmt.Errorf("authz: snapshot usage of %s@%s: %w", row.Owner, row.Name, err)
			}
			perm := &permission.Permission{
				UsageID:     usage.ID,
				Parent:      parentID,
				Owner:       row.Owner,
				Name:        row.Name,
				LastUpdated: row.LastUpdated,
				Auth:        row.Auth,
			}
			if err := m.store.CreatePermission(ctx, perm); err != nil {
				return fmt.Errorf("authz: snapshot permission %s@%s: %w", row.Owner, row.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return r.ReadSection(snapshot.LinkSection, func(next func(row any) (bool, error)) error {
		for {
			var row snapshot.LinkRow
			more, err := next(&row)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
			link := &permission.Link{
				Owner:              row.Owner,
				Contract:           row.Contract,
				Action:             row.Action,
				RequiredPermission: row.RequiredPermission,
			}
			if err := m.store.CreateLink(ctx, link); err != nil {
				return fmt.Errorf("authz: snapshot link %s:%s::%s: %w", row.Owner, row.Contract, row.Action, err)
			}
		}
	})
}

// checkReservedRow asserts the sentinel values of permission 0.
func checkReservedRow(row *snapshot.PermissionRow) error {
	switch {
	case !row.Parent.Empty():
		return fmt.Errorf("%w: unexpected parent name on reserved permission 0", ErrSnapshot)
	case !row.Name.Empty():
		return fmt.Errorf("%w: unexpected permission name on reserved permission 0", ErrSnapshot)
	case !row.Owner.Empty():
		return fmt.Errorf("%w: unexpected owner name on reserved permission 0", ErrSnapshot)
	case len(row.Auth.Accounts) != 0:
		return fmt.Errorf("%w: unexpected auth accounts on reserved permission 0", ErrSnapshot)
	case len(row.Auth.Keys) != 0:
		return fmt.Errorf("%w: unexpected auth keys on reserved permission 0", ErrSnapshot)
	case len(row.Auth.Waits) != 0:
		return fmt.Errorf("%w: unexpected auth waits on reserved permission 0", ErrSnapshot)
	case row.Auth.Threshold != 0:
		return fmt.Errorf("%w: unexpected auth threshold on reserved permission 0", ErrSnapshot)
	case !row.LastUpdated.IsZero():
		return fmt.Errorf("%w: unexpected last updated on reserved permission 0", ErrSnapshot)
	}
	return nil
}
