// Package authority defines the weighted threshold structure that guards a
// permission, and the permission-level pairs that reference permissions
// across accounts.
package authority

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Bitconch/authz/name"
)

// PublicKey is an opaque public key string. Key recovery and signature
// verification happen outside this module; here a key either is or is not
// in the provided set.
type PublicKey string

// PermissionLevel is an (account, permission name) pair.
type PermissionLevel struct {
	Actor      name.AccountName    `json:"actor" cbor:"actor"`
	Permission name.PermissionName `json:"permission" cbor:"permission"`
}

// Compare orders levels by actor, ties broken by permission. This is the
// canonical obligation order.
func (l PermissionLevel) Compare(other PermissionLevel) int {
	if c := name.Compare(l.Actor, other.Actor); c != 0 {
		return c
	}
	return name.Compare(l.Permission, other.Permission)
}

// Valid reports whether both components are well-formed names.
func (l PermissionLevel) Valid() bool {
	return l.Actor.Valid() && l.Permission.Valid()
}

func (l PermissionLevel) String() string {
	return string(l.Actor) + "@" + string(l.Permission)
}

// KeyWeight grants weight to a provided public key.
type KeyWeight struct {
	Key    PublicKey `json:"key" cbor:"key"`
	Weight uint16    `json:"weight" cbor:"weight"`
}

// PermissionLevelWeight grants weight to another permission, provided
// directly or satisfied recursively.
type PermissionLevelWeight struct {
	Permission PermissionLevel `json:"permission" cbor:"permission"`
	Weight     uint16          `json:"weight" cbor:"weight"`
}

// WaitWeight grants weight when the transaction's effective delay reaches
// WaitSec seconds.
type WaitWeight struct {
	WaitSec uint32 `json:"wait_sec" cbor:"wait_sec"`
	Weight  uint16 `json:"weight" cbor:"weight"`
}

// Authority is a weighted threshold combination of keys, permission levels,
// and waits. Each inner list is kept strictly ascending by its non-weight
// component; ascending order is what makes greedy matching canonical.
type Authority struct {
	Threshold uint32                  `json:"threshold" cbor:"threshold"`
	Keys      []KeyWeight             `json:"keys,omitempty" cbor:"keys,omitempty"`
	Accounts  []PermissionLevelWeight `json:"accounts,omitempty" cbor:"accounts,omitempty"`
	Waits     []WaitWeight            `json:"waits,omitempty" cbor:"waits,omitempty"`
}

// ErrInvalidAuthority is returned by Validate for any shape violation.
var ErrInvalidAuthority = errors.New("authority: invalid authority")

// Validate checks the structural invariants: a positive threshold, positive
// weights, strictly ascending component lists (which excludes duplicates),
// and a total weight that can reach the threshold.
func (a Authority) Validate() error {
	if a.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidAuthority)
	}

	var total uint64

	for i, k := range a.Keys {
		if k.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidAuthority)
		}
		if k.Weight == 0 {
			return fmt.Errorf("%w: zero weight on key %s", ErrInvalidAuthority, k.Key)
		}
		if i > 0 && strings.Compare(string(a.Keys[i-1].Key), string(k.Key)) >= 0 {
			return fmt.Errorf("%w: keys not sorted and unique", ErrInvalidAuthority)
		}
		total += uint64(k.Weight)
	}

	for i, pw := range a.Accounts {
		if !pw.Permission.Valid() {
			return fmt.Errorf("%w: malformed permission level %s", ErrInvalidAuthority, pw.Permission)
		}
		if pw.Weight == 0 {
			return fmt.Errorf("%w: zero weight on account %s", ErrInvalidAuthority, pw.Permission)
		}
		if i > 0 && a.Accounts[i-1].Permission.Compare(pw.Permission) >= 0 {
			return fmt.Errorf("%w: accounts not sorted and unique", ErrInvalidAuthority)
		}
		total += uint64(pw.Weight)
	}

	for i, w := range a.Waits {
		if w.WaitSec == 0 {
			return fmt.Errorf("%w: zero wait", ErrInvalidAuthority)
		}
		if w.Weight == 0 {
			return fmt.Errorf("%w: zero weight on wait %d", ErrInvalidAuthority, w.WaitSec)
		}
		if i > 0 && a.Waits[i-1].WaitSec >= w.WaitSec {
			return fmt.Errorf("%w: waits not sorted and unique", ErrInvalidAuthority)
		}
		total += uint64(w.Weight)
	}

	if total < uint64(a.Threshold) {
		return fmt.Errorf("%w: total weight %d below threshold %d", ErrInvalidAuthority, total, a.Threshold)
	}
	return nil
}

// SingleKey builds the common one-key, threshold-one authority.
func SingleKey(key PublicKey) Authority {
	return Authority{
		Threshold: 1,
		Keys:      []KeyWeight{{Key: key, Weight: 1}},
	}
}
