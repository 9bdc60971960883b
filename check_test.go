package authz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/checklog"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
	"github.com/Bitconch/authz/store/memory"
	"github.com/Bitconch/authz/transaction"
)

func mustAction(t *testing.T, account name.AccountName, action name.ActionName, auths []authority.PermissionLevel, payload any) *transaction.Action {
	t.Helper()
	act, err := transaction.NewAction(account, action, auths, payload)
	if err != nil {
		t.Fatal(err)
	}
	return act
}

func aliceActive() authority.PermissionLevel {
	return authority.PermissionLevel{Actor: "alice", Permission: "active"}
}

// TestCheckAuthorizationSingleAction covers the S1/S2 scenarios: the
// default owner/active tree with and without the signing key.
func TestCheckAuthorizationSingleAction(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice",
		authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	transfer := mustAction(t, "alice", "transfer", []authority.PermissionLevel{aliceActive()}, nil)

	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions:      []*transaction.Action{transfer},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{transfer},
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization without keys, got %v", err)
	}
}

// TestCheckAuthorizationLinkedPermission covers S3: a custom permission
// linked to one contract action, satisfied directly or through
// ancestors.
func TestCheckAuthorizationLinkedPermission(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	_, active := createAccount(t, m, "alice",
		authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))
	_, err := m.CreatePermission(ctx, "alice", "publishing", active.ID, authority.SingleKey("K"), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	mustLink(t, s.CreateLink(ctx, &permission.Link{
		Owner: "alice", Contract: "blogcontract", Action: "post", RequiredPermission: "publishing",
	}))

	post := func(level authority.PermissionLevel) *transaction.Action {
		return mustAction(t, "blogcontract", "post", []authority.PermissionLevel{level}, nil)
	}

	cases := []struct {
		label string
		level authority.PermissionLevel
		key   authority.PublicKey
	}{
		{"declared publishing with its key", authority.PermissionLevel{Actor: "alice", Permission: "publishing"}, "K"},
		{"parent active satisfies the minimum", aliceActive(), "alice.active.key"},
		{"owner is ancestor of both", authority.PermissionLevel{Actor: "alice", Permission: "owner"}, "alice.owner.key"},
	}
	for _, tc := range cases {
		err := m.CheckAuthorization(ctx, &CheckRequest{
			Actions:      []*transaction.Action{post(tc.level)},
			ProvidedKeys: []authority.PublicKey{tc.key},
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.label, err)
		}
	}

	// A key that does not match publishing leaves the obligation
	// unsatisfied.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions:      []*transaction.Action{post(authority.PermissionLevel{Actor: "alice", Permission: "publishing"})},
		ProvidedKeys: []authority.PublicKey{"unrelated.key"},
		AllowUnusedKeys: true,
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization, got %v", err)
	}

	// A child permission does not satisfy a minimum above it.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, "somecontract", "act", []authority.PermissionLevel{{Actor: "alice", Permission: "publishing"}}, nil),
		},
		ProvidedKeys: []authority.PublicKey{"K"},
	})
	if !errors.Is(err, ErrIrrelevantAuth) {
		t.Fatalf("expected ErrIrrelevantAuth for publishing below active, got %v", err)
	}
}

// TestCheckAuthorizationCanonicalOrder covers property 10: obligations
// are checked ascending by (actor, permission), so the earliest failing
// obligation is the one reported.
func TestCheckAuthorizationCanonicalOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))
	createAccount(t, m, "bob", authority.SingleKey("bob.owner.key"), authority.SingleKey("bob.active.key"))

	// bob declared first, alice second; neither has keys provided.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, "somecontract", "act", []authority.PermissionLevel{{Actor: "bob", Permission: "active"}}, nil),
			mustAction(t, "somecontract", "act", []authority.PermissionLevel{aliceActive()}, nil),
		},
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization, got %v", err)
	}
	if !strings.Contains(err.Error(), "alice@active") {
		t.Fatalf("expected the first obligation in canonical order to be reported, got %v", err)
	}
}

// TestCheckAuthorizationSatisfiedSkipped: authorizations already proven
// in an earlier pass produce no obligations.
func TestCheckAuthorizationSatisfiedSkipped(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			mustAction(t, "somecontract", "act", []authority.PermissionLevel{aliceActive()}, nil),
		},
		Satisfied: []authority.PermissionLevel{aliceActive()},
	})
	if err != nil {
		t.Fatalf("expected pre-satisfied authorization to pass, got %v", err)
	}
}

// TestCheckAuthorizationUnusedKeys covers property 12.
func TestCheckAuthorizationUnusedKeys(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	transfer := mustAction(t, "alice", "transfer", []authority.PermissionLevel{aliceActive()}, nil)
	keys := []authority.PublicKey{"alice.active.key", "stray.key"}

	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions:      []*transaction.Action{transfer},
		ProvidedKeys: keys,
	})
	if !errors.Is(err, ErrIrrelevantSignatures) {
		t.Fatalf("expected ErrIrrelevantSignatures, got %v", err)
	}
	if !strings.Contains(err.Error(), "stray.key") {
		t.Fatalf("expected the stray key to be reported, got %v", err)
	}

	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions:         []*transaction.Action{transfer},
		ProvidedKeys:    keys,
		AllowUnusedKeys: true,
	})
	if err != nil {
		t.Fatalf("expected pass with AllowUnusedKeys, got %v", err)
	}
}

// TestCheckAuthorizationDelayCollision covers S6/property 11: the same
// declared authorization obliged at two delays keeps the minimum.
func TestCheckAuthorizationDelayCollision(t *testing.T) {
	deferredStore := newFakeDeferredStore()
	m, _ := newTestManager(t, WithDeferredStore(deferredStore))
	ctx := context.Background()

	// active needs both its key and a 20s wait.
	createAccount(t, m, "alice",
		authority.SingleKey("alice.owner.key"),
		authority.Authority{
			Threshold: 2,
			Keys:      []authority.KeyWeight{{Key: "alice.active.key", Weight: 1}},
			Waits:     []authority.WaitWeight{{WaitSec: 20, Weight: 1}},
		})

	cancel := deferredStore.add(t, "alice", "transfer", 30*time.Second)
	cancelAct := mustAction(t, SystemAccount, CancelDelayAction, []authority.PermissionLevel{aliceActive()}, cancel)

	// Alone, the canceldelay action raises its obligation's delay to
	// 30s, which meets the wait.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions:      []*transaction.Action{cancelAct},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// A second action obliging the same authorization at delay 0 pulls
	// the obligation back down to the minimum, and the wait no longer
	// counts.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{
			cancelAct,
			mustAction(t, "somecontract", "act", []authority.PermissionLevel{aliceActive()}, nil),
		},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected the minimum delay to win the collision, got %v", err)
	}
}

// TestCheckAuthorizationDelayCoercion: a provided delay at or beyond
// the chain maximum counts as unbounded.
func TestCheckAuthorizationDelayCoercion(t *testing.T) {
	m, _ := newTestManager(t, WithConfig(Config{MaxAuthorityDepth: 6, MaxTransactionDelay: time.Minute}))
	ctx := context.Background()

	createAccount(t, m, "alice",
		authority.SingleKey("alice.owner.key"),
		authority.Authority{
			Threshold: 1,
			Waits:     []authority.WaitWeight{{WaitSec: 3600, Weight: 1}},
		})

	transfer := mustAction(t, "alice", "transfer", []authority.PermissionLevel{aliceActive()}, nil)

	// Below the maximum the literal delay applies: 30s < 3600s wait.
	err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions:       []*transaction.Action{transfer},
		ProvidedDelay: 30 * time.Second,
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected unsatisfied below the wait, got %v", err)
	}

	// At the maximum the delay is coerced to unbounded and meets any
	// wait.
	err = m.CheckAuthorization(ctx, &CheckRequest{
		Actions:       []*transaction.Action{transfer},
		ProvidedDelay: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckPermissionAuthorization(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	err := m.CheckPermissionAuthorization(ctx, &PermissionCheckRequest{
		Account:      "alice",
		Permission:   "active",
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = m.CheckPermissionAuthorization(ctx, &PermissionCheckRequest{
		Account:      "alice",
		Permission:   "active",
		ProvidedKeys: []authority.PublicKey{"wrong.key"},
		AllowUnusedKeys: true,
	})
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization, got %v", err)
	}

	err = m.CheckPermissionAuthorization(ctx, &PermissionCheckRequest{
		Account:      "alice",
		Permission:   "active",
		ProvidedKeys: []authority.PublicKey{"alice.active.key", "stray.key"},
	})
	if !errors.Is(err, ErrIrrelevantSignatures) {
		t.Fatalf("expected ErrIrrelevantSignatures, got %v", err)
	}
}

// TestCheckAuthorizationRecordsAuditLog wires the checklog recorder in
// as a plugin and verifies both verdicts land in the store.
func TestCheckAuthorizationRecordsAuditLog(t *testing.T) {
	s := memory.New()
	m, err := NewManager(
		WithStore(s),
		WithTimeFunc(func() time.Time { return blockTime }),
		WithPlugin(checklog.NewRecorder(s)),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.InitializeDatabase(ctx); err != nil {
		t.Fatal(err)
	}

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))
	transfer := mustAction(t, "alice", "transfer", []authority.PermissionLevel{aliceActive()}, nil)

	if err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions:      []*transaction.Action{transfer},
		ProvidedKeys: []authority.PublicKey{"alice.active.key"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.CheckAuthorization(ctx, &CheckRequest{
		Actions: []*transaction.Action{transfer},
	}); !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization, got %v", err)
	}

	entries, err := s.CheckLogs(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	// Newest first: the failed check tops the list.
	if entries[0].Satisfied || !entries[1].Satisfied {
		t.Fatalf("unexpected verdicts: %+v %+v", entries[0], entries[1])
	}
	if len(entries[0].Authorizations) != 1 || entries[0].Authorizations[0] != "alice@active" {
		t.Fatalf("unexpected labels: %v", entries[0].Authorizations)
	}
}

func TestGetRequiredKeys(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	createAccount(t, m, "alice", authority.SingleKey("alice.owner.key"), authority.SingleKey("alice.active.key"))

	trx := &transaction.Transaction{Actions: []*transaction.Action{
		mustAction(t, "alice", "transfer", []authority.PermissionLevel{aliceActive()}, nil),
	}}

	keys, err := m.GetRequiredKeys(ctx, trx,
		[]authority.PublicKey{"alice.active.key", "unrelated.key"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "alice.active.key" {
		t.Fatalf("expected exactly the active key, got %v", keys)
	}

	// Candidates that cannot satisfy the declared authority fail.
	_, err = m.GetRequiredKeys(ctx, trx, []authority.PublicKey{"unrelated.key"}, 0)
	if !errors.Is(err, ErrUnsatisfiedAuthorization) {
		t.Fatalf("expected ErrUnsatisfiedAuthorization, got %v", err)
	}
}
