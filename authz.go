// Package authz implements the authorization manager of the BUS chain:
// the hierarchical permission graph of every account, the links from
// (contract, action) pairs to required permissions, and the deterministic
// check that a transaction's declared authorizations are satisfied by the
// keys and permissions provided with it.
//
//	mgr, err := authz.NewManager(
//	    authz.WithStore(memory.New()),
//	)
//	err = mgr.CheckAuthorization(ctx, &authz.CheckRequest{
//	    Actions:      trx.Actions,
//	    ProvidedKeys: recoveredKeys,
//	})
//
// Every verdict is consensus-critical: the same store contents and the
// same request produce the same result on every node.
package authz

import (
	"context"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/transaction"
)

// Well-known chain names.
const (
	// SystemAccount is the chain's system account, owner of the native
	// permission-management actions.
	SystemAccount name.AccountName = "bccio"

	// ActiveName is the default minimum permission for unlinked actions.
	ActiveName name.PermissionName = "active"

	// OwnerName is the root permission of every account.
	OwnerName name.PermissionName = "owner"

	// AnyName is the wildcard link target: any authorization suffices.
	AnyName name.PermissionName = "bccio.any"
)

// Native permission-management action names. These five are unlinkable:
// they may never be routed through minimum-permission lookup.
const (
	UpdateAuthAction  name.ActionName = "updateauth"
	DeleteAuthAction  name.ActionName = "deleteauth"
	LinkAuthAction    name.ActionName = "linkauth"
	UnlinkAuthAction  name.ActionName = "unlinkauth"
	CancelDelayAction name.ActionName = "canceldelay"
)

// isNativeAuthAction reports whether act is one of the five unlinkable
// native actions.
func isNativeAuthAction(act name.ActionName) bool {
	switch act {
	case UpdateAuthAction, DeleteAuthAction, LinkAuthAction, UnlinkAuthAction, CancelDelayAction:
		return true
	}
	return false
}

// Feature identifies a consensus protocol feature gate.
type Feature string

// FixLinkauthRestriction, once activated, lifts the linkauth restriction
// on the five native actions for non-system contracts.
const FixLinkauthRestriction Feature = "fix_linkauth_restriction"

// FeatureSet reports which protocol features the chain has activated.
type FeatureSet interface {
	IsActivated(f Feature) bool
}

// FeatureSetFunc adapts a function to the FeatureSet interface.
type FeatureSetFunc func(Feature) bool

// IsActivated implements FeatureSet.
func (f FeatureSetFunc) IsActivated(ft Feature) bool { return f(ft) }

type noFeatures struct{}

func (noFeatures) IsActivated(Feature) bool { return false }

// CheckTime lets the host abort long-running authorization checks. It is
// invoked at every top-level satisfaction query and every recursion
// descent; a non-nil return unwinds the whole check unchanged.
type CheckTime func() error

// noopCheckTime is the process-wide default deadline hook.
func noopCheckTime() error { return nil }

// TimeFunc supplies the pending block time for mutations and usage
// stamps. Reading it is a pure read, not a source of nondeterminism.
type TimeFunc func() time.Time

// DeferredStore looks up scheduled transactions for canceldelay
// authorization. Implementations wrap store.ErrNotFound when no record
// matches.
type DeferredStore interface {
	DeferredByTrxID(ctx context.Context, id transaction.ID) (*transaction.Deferred, error)
}

// AuthorityCache caches authority lookups by permission level. Entries
// are invalidated whenever the permission mutates, so a hit is always
// identical to the store read it replaces.
type AuthorityCache interface {
	Get(level authority.PermissionLevel) (authority.Authority, bool)
	Set(level authority.PermissionLevel, auth authority.Authority)
	Invalidate(level authority.PermissionLevel)
}
