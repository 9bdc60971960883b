package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/store"
	"github.com/Bitconch/authz/transaction"
)

// The five native permission-management actions bypass minimum-permission
// lookup and carry their own authorization rules. Each check expects
// exactly one declared authorization whose actor is the account named in
// the action payload.

func singleDeclaredAuth(action string, auths []authority.PermissionLevel) (authority.PermissionLevel, error) {
	if len(auths) != 1 {
		return authority.PermissionLevel{}, fmt.Errorf("%w: %s action should only have one declared authorization", ErrIrrelevantAuth, action)
	}
	return auths[0], nil
}

// checkUpdateauthAuthorization requires the declared authority to cover
// the permission being updated, or — when creating a new permission —
// the parent it will hang under.
func (m *Manager) checkUpdateauthAuthorization(ctx context.Context, update *transaction.UpdateAuth, auths []authority.PermissionLevel) error {
	auth, err := singleDeclaredAuth("updateauth", auths)
	if err != nil {
		return err
	}
	if auth.Actor != update.Account {
		return fmt.Errorf("%w: the owner of the affected permission needs to be the actor of the declared authorization", ErrIrrelevantAuth)
	}

	minPerm, err := m.FindPermission(ctx, authority.PermissionLevel{Actor: update.Account, Permission: update.Permission})
	if err != nil {
		return err
	}
	if minPerm == nil {
		// Creating a new permission; the parent is the minimum.
		minPerm, err = m.GetPermission(ctx, authority.PermissionLevel{Actor: update.Account, Permission: update.Parent})
		if err != nil {
			return err
		}
	}

	return m.requireSatisfies(ctx, "updateauth", auth, minPerm.Level())
}

// checkDeleteauthAuthorization requires the declared authority to cover
// the permission being deleted.
func (m *Manager) checkDeleteauthAuthorization(ctx context.Context, del *transaction.DeleteAuth, auths []authority.PermissionLevel) error {
	auth, err := singleDeclaredAuth("deleteauth", auths)
	if err != nil {
		return err
	}
	if auth.Actor != del.Account {
		return fmt.Errorf("%w: the owner of the permission to delete needs to be the actor of the declared authorization", ErrIrrelevantAuth)
	}

	return m.requireSatisfies(ctx, "deleteauth", auth, authority.PermissionLevel{Actor: del.Account, Permission: del.Permission})
}

// checkLinkauthAuthorization rejects linking the native actions (for the
// system contract always; for others until fix_linkauth_restriction
// activates) and requires the declared authority to cover the minimum
// currently effective for the link target.
func (m *Manager) checkLinkauthAuthorization(ctx context.Context, link *transaction.LinkAuth, auths []authority.PermissionLevel) error {
	auth, err := singleDeclaredAuth("linkauth", auths)
	if err != nil {
		return err
	}
	if auth.Actor != link.Account {
		return fmt.Errorf("%w: the owner of the linked permission needs to be the actor of the declared authorization", ErrIrrelevantAuth)
	}

	if link.Contract == SystemAccount || !m.features.IsActivated(FixLinkauthRestriction) {
		if isNativeAuthAction(link.Action) {
			return fmt.Errorf("%w: cannot link %s::%s to a minimum permission", ErrActionValidate, SystemAccount, link.Action)
		}
	}

	linkedName, ok, err := m.LookupMinimumPermission(ctx, link.Account, link.Contract, link.Action)
	if err != nil {
		return err
	}
	if !ok {
		// The action is linked to the "any authorization" wildcard.
		return nil
	}

	return m.requireSatisfies(ctx, "linkauth", auth, authority.PermissionLevel{Actor: link.Account, Permission: linkedName})
}

// checkUnlinkauthAuthorization requires an existing link and a declared
// authority covering the currently linked permission.
func (m *Manager) checkUnlinkauthAuthorization(ctx context.Context, unlink *transaction.UnlinkAuth, auths []authority.PermissionLevel) error {
	auth, err := singleDeclaredAuth("unlinkauth", auths)
	if err != nil {
		return err
	}
	if auth.Actor != unlink.Account {
		return fmt.Errorf("%w: the owner of the linked permission needs to be the actor of the declared authorization", ErrIrrelevantAuth)
	}

	unlinkedName, ok, err := m.LookupLinkedPermission(ctx, unlink.Account, unlink.Contract, unlink.Action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cannot unlink non-existent permission link of account %q for actions matching %s::%s", ErrTransaction, unlink.Account, unlink.Contract, unlink.Action)
	}
	if unlinkedName == AnyName {
		return nil
	}

	return m.requireSatisfies(ctx, "unlinkauth", auth, authority.PermissionLevel{Actor: unlink.Account, Permission: unlinkedName})
}

// checkCanceldelayAuthorization requires the declared authority to cover
// the canceling authority, and the target to be a user-originated
// deferred transaction that actually declared that authority. The
// returned duration is the canceled transaction's own delay, which the
// canceldelay action inherits.
func (m *Manager) checkCanceldelayAuthorization(ctx context.Context, cancel *transaction.CancelDelay, auths []authority.PermissionLevel) (time.Duration, error) {
	auth, err := singleDeclaredAuth("canceldelay", auths)
	if err != nil {
		return 0, err
	}

	if err := m.requireSatisfies(ctx, "canceldelay", auth, cancel.CancelingAuth); err != nil {
		return 0, err
	}

	if m.deferred == nil {
		return 0, fmt.Errorf("%w: no deferred transaction store configured", ErrTxNotFound)
	}
	deferred, err := m.deferred.DeferredByTrxID(ctx, cancel.TrxID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: cannot cancel trx_id=%s, there is no deferred transaction with that transaction id", ErrTxNotFound, cancel.TrxID)
		}
		return 0, fmt.Errorf("authz: canceldelay lookup: %w", err)
	}
	if !deferred.Sender.Empty() {
		return 0, fmt.Errorf("%w: cannot cancel trx_id=%s, the deferred transaction is not user-originated", ErrTxNotFound, cancel.TrxID)
	}

	trx, err := transaction.Unpack(deferred.PackedTrx)
	if err != nil {
		return 0, fmt.Errorf("authz: canceldelay unpack: %w", err)
	}
	found := false
	for _, act := range trx.Actions {
		for _, declared := range act.Authorization {
			if declared == cancel.CancelingAuth {
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: canceling_auth in canceldelay action was not found as authorization in the original delayed transaction", ErrActionValidate)
	}

	return deferred.DelayUntil.Sub(deferred.Published), nil
}

// requireSatisfies asserts that the declared authorization structurally
// covers the minimum permission level.
func (m *Manager) requireSatisfies(ctx context.Context, action string, declared, min authority.PermissionLevel) error {
	declaredPerm, err := m.GetPermission(ctx, declared)
	if err != nil {
		return err
	}
	minPerm, err := m.GetPermission(ctx, min)
	if err != nil {
		return err
	}
	ok, err := m.permissionSatisfies(ctx, declaredPerm, minPerm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s action declares irrelevant authority %s; minimum authority is %s", ErrIrrelevantAuth, action, declared, min)
	}
	return nil
}
