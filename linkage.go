package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/store"
)

// LookupLinkedPermission resolves the permission an account has linked
// for (contract, action). A link for the exact action wins over the
// contract-wide default. ok is false when neither exists.
func (m *Manager) LookupLinkedPermission(ctx context.Context, authorizer, contract name.AccountName, action name.ActionName) (linked name.PermissionName, ok bool, err error) {
	link, err := m.store.LinkByActionName(ctx, authorizer, contract, action)
	if err != nil && errors.Is(err, store.ErrNotFound) {
		// No specific link; check the contract-wide default.
		link, err = m.store.LinkByActionName(ctx, authorizer, contract, "")
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: link %s:%s::%s: %w", ErrPermissionQuery, authorizer, contract, action, err)
	}
	return link.RequiredPermission, true, nil
}

// LookupMinimumPermission resolves the weakest permission that
// authorizes (contract, action) for the authorizer: the linked
// permission if any, the well-known "active" otherwise. ok is false
// when the link names the "any authorization" wildcard. The five native
// permission-management actions are unlinkable and must never be routed
// through here.
func (m *Manager) LookupMinimumPermission(ctx context.Context, authorizer, contract name.AccountName, action name.ActionName) (min name.PermissionName, ok bool, err error) {
	if contract == SystemAccount && isNativeAuthAction(action) {
		return "", false, fmt.Errorf("%w: %s", ErrUnlinkableMinPermission, action)
	}

	linked, found, err := m.LookupLinkedPermission(ctx, authorizer, contract, action)
	if err != nil {
		return "", false, err
	}
	if !found {
		return ActiveName, true, nil
	}
	if linked == AnyName {
		return "", false, nil
	}
	return linked, true, nil
}
