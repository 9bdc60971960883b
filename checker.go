package authz

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/store"
)

// AuthorityProvider resolves a permission level to its authority. The
// checker treats a store.ErrNotFound-wrapped failure as "no weight": an
// authority may reference a permission that has since been deleted.
type AuthorityProvider func(ctx context.Context, level authority.PermissionLevel) (authority.Authority, error)

// AuthorityChecker decides whether permissions are satisfied by a fixed
// set of provided keys, provided permission levels, and an effective
// delay. One checker instance spans a whole transaction check so that
// key usage accumulates across all satisfaction queries.
//
// Evaluation is greedy over the sorted component lists — keys by key,
// accounts by permission level, waits by seconds ascending — and stops
// the moment the threshold is met. Nested permission levels are
// evaluated recursively under a depth budget; there is no visited set,
// the budget alone cuts cycles.
type AuthorityChecker struct {
	provider  AuthorityProvider
	maxDepth  uint16
	delay     time.Duration
	checkTime CheckTime

	keys     []authority.PublicKey       // sorted ascending
	used     []bool                      // parallel to keys
	provided []authority.PermissionLevel // sorted ascending
}

// NewAuthorityChecker builds a checker. providedKeys and
// providedPermissions are copied, sorted, and deduplicated; a nil
// checkTime gets the no-op default.
func NewAuthorityChecker(provider AuthorityProvider, maxDepth uint16, providedKeys []authority.PublicKey, providedPermissions []authority.PermissionLevel, providedDelay time.Duration, checkTime CheckTime) *AuthorityChecker {
	if checkTime == nil {
		checkTime = noopCheckTime
	}

	keys := append([]authority.PublicKey(nil), providedKeys...)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	keys = dedupKeys(keys)

	provided := append([]authority.PermissionLevel(nil), providedPermissions...)
	sort.Slice(provided, func(i, j int) bool { return provided[i].Compare(provided[j]) < 0 })
	provided = dedupLevels(provided)

	return &AuthorityChecker{
		provider:  provider,
		maxDepth:  maxDepth,
		delay:     providedDelay,
		checkTime: checkTime,
		keys:      keys,
		used:      make([]bool, len(keys)),
		provided:  provided,
	}
}

// Satisfied reports whether level is satisfied at the construction-time
// delay.
func (c *AuthorityChecker) Satisfied(ctx context.Context, level authority.PermissionLevel) (bool, error) {
	return c.SatisfiedAt(ctx, level, c.delay)
}

// SatisfiedAt reports whether level is satisfied at the given delay.
func (c *AuthorityChecker) SatisfiedAt(ctx context.Context, level authority.PermissionLevel, delay time.Duration) (bool, error) {
	if err := c.checkTime(); err != nil {
		return false, err
	}
	auth, err := c.provider(ctx, level)
	if err != nil {
		return false, err
	}
	return c.satisfies(ctx, auth, delay, c.maxDepth)
}

// satisfies tallies matching weights against the threshold. budget is
// the number of recursion descents still allowed. When the authority
// ends up unsatisfied, key-usage marks made during its evaluation are
// reverted: a key only counts as used by authorities that were actually
// satisfied.
func (c *AuthorityChecker) satisfies(ctx context.Context, auth authority.Authority, delay time.Duration, budget uint16) (satisfied bool, err error) {
	snapshot := append([]bool(nil), c.used...)
	defer func() {
		if !satisfied {
			copy(c.used, snapshot)
		}
	}()

	threshold := uint64(auth.Threshold)
	var total uint64

	for _, kw := range auth.Keys {
		i, ok := c.keyIndex(kw.Key)
		if !ok {
			continue
		}
		c.used[i] = true
		total += uint64(kw.Weight)
		if total >= threshold {
			return true, nil
		}
	}

	for _, pw := range auth.Accounts {
		matched := c.hasProvided(pw.Permission)
		if !matched {
			if budget == 0 {
				return false, ErrAuthorityTooHigh
			}
			if err := c.checkTime(); err != nil {
				return false, err
			}
			sub, err := c.provider(ctx, pw.Permission)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return false, err
			}
			matched, err = c.satisfies(ctx, sub, delay, budget-1)
			if err != nil {
				return false, err
			}
		}
		if matched {
			total += uint64(pw.Weight)
			if total >= threshold {
				return true, nil
			}
		}
	}

	for _, ww := range auth.Waits {
		if delay >= time.Duration(ww.WaitSec)*time.Second {
			total += uint64(ww.Weight)
			if total >= threshold {
				return true, nil
			}
		}
	}

	return false, nil
}

// AllKeysUsed reports whether every provided key was consumed by a
// satisfied authority.
func (c *AuthorityChecker) AllKeysUsed() bool {
	for _, u := range c.used {
		if !u {
			return false
		}
	}
	return true
}

// UsedKeys returns the provided keys consumed so far, ascending.
func (c *AuthorityChecker) UsedKeys() []authority.PublicKey {
	return c.partitionKeys(true)
}

// UnusedKeys returns the provided keys not consumed so far, ascending.
func (c *AuthorityChecker) UnusedKeys() []authority.PublicKey {
	return c.partitionKeys(false)
}

func (c *AuthorityChecker) partitionKeys(used bool) []authority.PublicKey {
	var out []authority.PublicKey
	for i, k := range c.keys {
		if c.used[i] == used {
			out = append(out, k)
		}
	}
	return out
}

func (c *AuthorityChecker) keyIndex(k authority.PublicKey) (int, bool) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= k })
	if i < len(c.keys) && c.keys[i] == k {
		return i, true
	}
	return 0, false
}

func (c *AuthorityChecker) hasProvided(level authority.PermissionLevel) bool {
	i := sort.Search(len(c.provided), func(i int) bool { return c.provided[i].Compare(level) >= 0 })
	return i < len(c.provided) && c.provided[i].Compare(level) == 0
}

func dedupKeys(keys []authority.PublicKey) []authority.PublicKey {
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || keys[i-1] != k {
			out = append(out, k)
		}
	}
	return out
}

func dedupLevels(levels []authority.PermissionLevel) []authority.PermissionLevel {
	out := levels[:0]
	for i, l := range levels {
		if i == 0 || levels[i-1].Compare(l) != 0 {
			out = append(out, l)
		}
	}
	return out
}
