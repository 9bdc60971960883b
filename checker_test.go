package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/store"
)

// mapProvider serves authorities from a fixed map, treating absent
// levels the way a store would.
func mapProvider(authorities map[authority.PermissionLevel]authority.Authority) AuthorityProvider {
	return func(_ context.Context, level authority.PermissionLevel) (authority.Authority, error) {
		auth, ok := authorities[level]
		if !ok {
			return authority.Authority{}, fmt.Errorf("permission %s: %w", level, store.ErrNotFound)
		}
		return auth, nil
	}
}

func TestCheckerSingleKey(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: authority.SingleKey("BUS5key"),
	})

	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5key"}, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied")
	}
	if !checker.AllKeysUsed() {
		t.Fatal("the matching key must be marked used")
	}

	checker = NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5other"}, nil, 0, nil)
	ok, err = checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected unsatisfied without the key")
	}
	if len(checker.UnusedKeys()) != 1 {
		t.Fatal("the non-matching key must stay unused")
	}
}

func TestCheckerThresholdAndWeights(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 3,
			Keys: []authority.KeyWeight{
				{Key: "BUS5a", Weight: 1},
				{Key: "BUS5b", Weight: 2},
			},
		},
	})

	// Both keys together reach the threshold.
	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5a", "BUS5b"}, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied at combined weight 3")
	}

	// One weight-2 key alone does not.
	checker = NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5b"}, nil, 0, nil)
	ok, _ = checker.Satisfied(ctx, alice)
	if ok {
		t.Fatal("expected unsatisfied at weight 2 of 3")
	}
}

func TestCheckerWaits(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 2,
			Keys:      []authority.KeyWeight{{Key: "BUS5a", Weight: 1}},
			Waits:     []authority.WaitWeight{{WaitSec: 30, Weight: 1}},
		},
	})

	keys := []authority.PublicKey{"BUS5a"}

	checker := NewAuthorityChecker(provider, 6, keys, nil, 10*time.Second, nil)
	ok, _ := checker.Satisfied(ctx, alice)
	if ok {
		t.Fatal("expected unsatisfied below the wait")
	}

	checker = NewAuthorityChecker(provider, 6, keys, nil, 30*time.Second, nil)
	ok, _ = checker.Satisfied(ctx, alice)
	if !ok {
		t.Fatal("expected satisfied at the wait")
	}

	// Monotonicity: a larger delay preserves satisfaction.
	checker = NewAuthorityChecker(provider, 6, keys, nil, time.Hour, nil)
	ok, _ = checker.Satisfied(ctx, alice)
	if !ok {
		t.Fatal("expected satisfied above the wait")
	}
}

func TestCheckerProvidedPermissions(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	bob := authority.PermissionLevel{Actor: "bob", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 1,
			Accounts: []authority.PermissionLevelWeight{
				{Permission: bob, Weight: 1},
			},
		},
	})

	// bob@active provided directly: no recursion needed.
	checker := NewAuthorityChecker(provider, 6, nil, []authority.PermissionLevel{bob}, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied via provided permission")
	}
}

func TestCheckerRecursion(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	bob := authority.PermissionLevel{Actor: "bob", Permission: "active"}
	carol := authority.PermissionLevel{Actor: "carol", Permission: "active"}
	authorities := map[authority.PermissionLevel]authority.Authority{
		alice: {Threshold: 1, Accounts: []authority.PermissionLevelWeight{{Permission: bob, Weight: 1}}},
		bob:   {Threshold: 1, Accounts: []authority.PermissionLevelWeight{{Permission: carol, Weight: 1}}},
		carol: authority.SingleKey("BUS5carol"),
	}
	provider := mapProvider(authorities)
	keys := []authority.PublicKey{"BUS5carol"}

	checker := NewAuthorityChecker(provider, 2, keys, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied through two descents")
	}
	if !checker.AllKeysUsed() {
		t.Fatal("carol's key must be marked used")
	}

	// One descent fewer than needed exhausts the budget.
	checker = NewAuthorityChecker(provider, 1, keys, nil, 0, nil)
	_, err = checker.Satisfied(ctx, alice)
	if !errors.Is(err, ErrAuthorityTooHigh) {
		t.Fatalf("expected ErrAuthorityTooHigh, got %v", err)
	}
}

func TestCheckerCycleCutOffByBudget(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	bob := authority.PermissionLevel{Actor: "bob", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {Threshold: 1, Accounts: []authority.PermissionLevelWeight{{Permission: bob, Weight: 1}}},
		bob:   {Threshold: 1, Accounts: []authority.PermissionLevelWeight{{Permission: alice, Weight: 1}}},
	})

	checker := NewAuthorityChecker(provider, 4, nil, nil, 0, nil)
	_, err := checker.Satisfied(ctx, alice)
	if !errors.Is(err, ErrAuthorityTooHigh) {
		t.Fatalf("expected the depth budget to cut the cycle, got %v", err)
	}
}

func TestCheckerMissingReferencedPermission(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	gone := authority.PermissionLevel{Actor: "ghost", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 1,
			Keys:      []authority.KeyWeight{{Key: "BUS5a", Weight: 1}},
			Accounts:  []authority.PermissionLevelWeight{{Permission: gone, Weight: 1}},
		},
	})

	// A dangling reference contributes nothing but does not fail the
	// evaluation; the key still satisfies.
	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5a"}, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied via the key despite the dangling account")
	}
}

func TestCheckerKeyUsageRevertedOnFailure(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 2,
			Keys:      []authority.KeyWeight{{Key: "BUS5a", Weight: 1}},
		},
	})

	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5a"}, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("threshold 2 cannot be met by weight 1")
	}
	if len(checker.UsedKeys()) != 0 {
		t.Fatal("keys touched by a failed evaluation must be reverted")
	}
}

func TestCheckerMonotonicityInKeys(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: {
			Threshold: 2,
			Keys: []authority.KeyWeight{
				{Key: "BUS5a", Weight: 1},
				{Key: "BUS5b", Weight: 1},
			},
		},
	})

	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5a"}, nil, 0, nil)
	ok, _ := checker.Satisfied(ctx, alice)
	if ok {
		t.Fatal("one key should not satisfy threshold 2")
	}

	// Adding a key preserves (and here establishes) satisfaction.
	checker = NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5a", "BUS5b"}, nil, 0, nil)
	ok, _ = checker.Satisfied(ctx, alice)
	if !ok {
		t.Fatal("both keys should satisfy threshold 2")
	}
}

func TestCheckerCheckTimeAborts(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: authority.SingleKey("BUS5key"),
	})

	deadline := errors.New("deadline exceeded")
	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5key"}, nil, 0,
		func() error { return deadline })
	_, err := checker.Satisfied(ctx, alice)
	if !errors.Is(err, deadline) {
		t.Fatalf("expected the deadline error to propagate unchanged, got %v", err)
	}
}

func TestCheckerKeyPartition(t *testing.T) {
	ctx := context.Background()
	alice := authority.PermissionLevel{Actor: "alice", Permission: "active"}
	provider := mapProvider(map[authority.PermissionLevel]authority.Authority{
		alice: authority.SingleKey("BUS5a"),
	})

	checker := NewAuthorityChecker(provider, 6, []authority.PublicKey{"BUS5b", "BUS5a"}, nil, 0, nil)
	ok, err := checker.Satisfied(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied")
	}

	used := checker.UsedKeys()
	unused := checker.UnusedKeys()
	if len(used) != 1 || used[0] != "BUS5a" {
		t.Fatalf("unexpected used keys: %v", used)
	}
	if len(unused) != 1 || unused[0] != "BUS5b" {
		t.Fatalf("unexpected unused keys: %v", unused)
	}
	if checker.AllKeysUsed() {
		t.Fatal("an unused key remains")
	}
}
