package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/store"
	"github.com/Bitconch/authz/transaction"
)

// fakeDeferredStore serves deferred transactions from memory.
type fakeDeferredStore struct {
	items map[transaction.ID]*transaction.Deferred
}

func newFakeDeferredStore() *fakeDeferredStore {
	return &fakeDeferredStore{items: make(map[transaction.ID]*transaction.Deferred)}
}

func (f *fakeDeferredStore) DeferredByTrxID(_ context.Context, id transaction.ID) (*transaction.Deferred, error) {
	d, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("deferred %s: %w", id, store.ErrNotFound)
	}
	return d, nil
}

// add schedules a user-originated deferred transaction authorized by
// account@active and returns the canceldelay payload targeting it.
func (f *fakeDeferredStore) add(t *testing.T, account name.AccountName, action name.ActionName, delay time.Duration) *transaction.CancelDelay {
	t.Helper()
	auth := authority.PermissionLevel{Actor: account, Permission: "active"}
	act, err := transaction.NewAction(account, action, []authority.PermissionLevel{auth}, nil)
	if err != nil {
		t.Fatal(err)
	}
	trx := &transaction.Transaction{Actions: []*transaction.Action{act}}
	packed, err := trx.Pack()
	if err != nil {
		t.Fatal(err)
	}
	id, err := trx.ID()
	if err != nil {
		t.Fatal(err)
	}
	f.items[id] = &transaction.Deferred{
		TrxID:      id,
		Published:  blockTime,
		DelayUntil: blockTime.Add(delay),
		PackedTrx:  packed,
	}
	return &transaction.CancelDelay{CancelingAuth: auth, TrxID: id}
}

func TestUpdateauthAuthorization(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	newPerm := func(parent name.PermissionName) *transaction.UpdateAuth {
		return &transaction.UpdateAuth{
			Account:    "alice",
			Permission: "publishing",
			Parent:     parent,
			Auth:       authority.SingleKey("K"),
		}
	}

	// Creating a new permission under active: declared active covers the
	// parent minimum.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UpdateAuthAction, []authority.PermissionLevel{aliceActive()}, newPerm("active")),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Creating under owner: active does not cover owner.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UpdateAuthAction, []authority.PermissionLevel{aliceActive()}, newPerm("owner")),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if !errors.Is(err, ErrIrrelevantAuth) {
		t.Fatalf("expected ErrIrrelevantAuth, got %v", err)
	}

	// Updating an existing permission: the permission itself is the
	// minimum; owner covers active.
	update := &transaction.UpdateAuth{
		Account:    "alice",
		Permission: "active",
		Parent:     "owner",
		Auth:       authority.SingleKey("newkey"),
	}
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UpdateAuthAction,
				[]authority.PermissionLevel{{Actor: "alice", Permission: "owner"}}, update),
		},
		ProvidedKeys: []authority.PublicKey{"alice.owner.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Shape errors: wrong actor, wrong count.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UpdateAuthAction,
				[]authority.PermissionLevel{{Actor: "bob", Permission: "active"}}, newPerm("active")),
		},
	})
	if !errors.Is(err, ErrIrrelevantAuth) {
		t.Fatalf("expected ErrIrrelevantAuth for foreign actor, got %v", err)
	}

	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UpdateAuthAction,
				[]authority.PermissionLevel{aliceActive(), {Actor: "alice", Permission: "owner"}}, newPerm("active")),
		},
	})
	if !errors.Is(err, ErrIrrelevantAuth) {
		t.Fatalf("expected ErrIrrelevantAuth for two declared authorizations, got %v", err)
	}
}

func TestDeleteauthAuthorization(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, active := createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))
	if _, err := m.CreatePermission(ctx, "alice", "publishing", active.ID, authority.SingleKey("K"), time.Time{}); err != nil {
		t.Fatal(err)
	}

	// active covers the child being deleted.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, DeleteAuthAction, []authority.PermissionLevel{aliceActive()},
				&transaction.DeleteAuth{Account: "alice", Permission: "publishing"}),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// active does not cover owner.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, DeleteAuthAction, []authority.PermissionLevel{aliceActive()},
				&transaction.DeleteAuth{Account: "alice", Permission: "owner"}),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if !errors.Is(err, ErrIrrelevantAuth) {
		t.Fatalf("expected ErrIrrelevantAuth, got %v", err)
	}
}

func TestLinkauthAuthorization(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	link := func(contract name.AccountName, action name.ActionName) *transaction.LinkAuth {
		return &transaction.LinkAuth{Account: "alice", Contract: contract, Action: action, Requirement: "active"}
	}
	declared := []authority.PermissionLevel{aliceActive()}
	keys := []authority.PublicKey{"alice.active.key"}

	// Ordinary link passes.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, LinkAuthAction, declared, link("blogcontract", "post")),
		},
		ProvidedKeys: keys,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Native actions are unlinkable while the fix feature is inactive,
	// for any contract.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, LinkAuthAction, declared, link("blogcontract", UpdateAuthAction)),
		},
		ProvidedKeys: keys,
	})
	if !errors.Is(err, ErrActionValidate) {
		t.Fatalf("expected ErrActionValidate, got %v", err)
	}
}

func TestLinkauthAuthorizationFeatureGate(t *testing.T) {
	features := FeatureSetFunc(func(f Feature) bool { return f == FixLinkauthRestriction })
	m, _ := newTestManager(t, WithFeatureSet(features))
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	declared := []authority.PermissionLevel{aliceActive()}
	keys := []authority.PublicKey{"alice.active.key"}

	// With the feature active, linking a native action name on a
	// non-system contract is allowed.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, LinkAuthAction, declared,
				&transaction.LinkAuth{Account: "alice", Contract: "blogcontract", Action: UpdateAuthAction, Requirement: "active"}),
		},
		ProvidedKeys: keys,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The system contract stays restricted regardless of the feature.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, LinkAuthAction, declared,
				&transaction.LinkAuth{Account: "alice", Contract: SystemAccount, Action: UpdateAuthAction, Requirement: "active"}),
		},
		ProvidedKeys: keys,
	})
	if !errors.Is(err, ErrActionValidate) {
		t.Fatalf("expected ErrActionValidate on the system contract, got %v", err)
	}
}

func TestUnlinkauthAuthorization(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	declared := []authority.PermissionLevel{aliceActive()}
	keys := []authority.PublicKey{"alice.active.key"}

	// Unlinking a non-existent link is a transaction error.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UnlinkAuthAction, declared,
				&transaction.UnlinkAuth{Account: "alice", Contract: "blogcontract", Action: "post"}),
		},
		ProvidedKeys: keys,
	})
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}

	// With the link in place the unlink passes.
	mustLink(t, s.CreateLink(ctx, &permission.Link{
		Owner: "alice", Contract: "blogcontract", Action: "post", RequiredPermission: "active",
	}))
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, UnlinkAuthAction, declared,
				&transaction.UnlinkAuth{Account: "alice", Contract: "blogcontract", Action: "post"}),
		},
		ProvidedKeys: keys,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCanceldelayAuthorization(t *testing.T) {
	deferredStore := newFakeDeferredStore()
	m, _ := newTestManager(t, WithDeferredStore(deferredStore))
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	cancel := deferredStore.add(t, "alice", "transfer", 30*time.Second)

	// Happy path.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, CancelDelayAction, []authority.PermissionLevel{aliceActive()}, cancel),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Unknown target.
	missing := &transaction.CancelDelay{CancelingAuth: aliceActive(), TrxID: transaction.ID{1, 2, 3}}
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, CancelDelayAction, []authority.PermissionLevel{aliceActive()}, missing),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if !errors.Is(err, ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}

	// A deferred transaction generated by a contract (non-empty sender)
	// cannot be canceled.
	generated := deferredStore.add(t, "alice", "burn", 10*time.Second)
	deferredStore.items[generated.TrxID].Sender = "somecontract"
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, CancelDelayAction, []authority.PermissionLevel{aliceActive()}, generated),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if !errors.Is(err, ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound for generated transaction, got %v", err)
	}

	// The canceling authority must appear in the original transaction.
	foreign := deferredStore.add(t, "alice", "mint", 10*time.Second)
	foreign.CancelingAuth = authority.PermissionLevel{Actor: "alice", Permission: "owner"}
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, SystemAccount, CancelDelayAction,
				[]authority.PermissionLevel{{Actor: "alice", Permission: "owner"}}, foreign),
		},
		ProvidedKeys: []authority.PublicKey{"alice.owner.key"},
	})
	if !errors.Is(err, ErrActionValidate) {
		t.Fatalf("expected ErrActionValidate, got %v", err)
	}
}
