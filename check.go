package authz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/transaction"
)

// unboundedDelay stands in for "no delay requirement can exceed this".
const unboundedDelay = time.Duration(math.MaxInt64)

// CheckRequest is the input to a transaction authorization check.
type CheckRequest struct {
	// Actions of the transaction, in declared order.
	Actions []*transaction.Action

	// ProvidedKeys are the keys recovered from the transaction's
	// signatures.
	ProvidedKeys []authority.PublicKey

	// ProvidedPermissions are permission levels the host vouches for
	// directly.
	ProvidedPermissions []authority.PermissionLevel

	// ProvidedDelay is the delay the transaction will be held for.
	ProvidedDelay time.Duration

	// CheckTime aborts long-running checks; nil means no deadline.
	CheckTime CheckTime

	// AllowUnusedKeys suppresses the irrelevant-signature rule.
	AllowUnusedKeys bool

	// Satisfied lists authorizations already proven in an earlier pass
	// (a delayed transaction's original check); they produce no
	// obligations.
	Satisfied []authority.PermissionLevel
}

// AuthorizationLabels returns the declared authorization levels as
// strings, for audit logging.
func (r *CheckRequest) AuthorizationLabels() []string {
	var labels []string
	for _, act := range r.Actions {
		for _, declared := range act.Authorization {
			labels = append(labels, declared.String())
		}
	}
	return labels
}

// PermissionCheckRequest is the input to a single-permission check.
type PermissionCheckRequest struct {
	Account             name.AccountName
	Permission          name.PermissionName
	ProvidedKeys        []authority.PublicKey
	ProvidedPermissions []authority.PermissionLevel
	ProvidedDelay       time.Duration
	CheckTime           CheckTime
	AllowUnusedKeys     bool
}

// effectiveDelay coerces a provided delay at or beyond the chain's
// maximum into "unbounded": such transactions wait long enough to meet
// any wait.
func (m *Manager) effectiveDelay(provided time.Duration) time.Duration {
	if provided >= m.config.MaxTransactionDelay {
		return unboundedDelay
	}
	return provided
}

// CheckAuthorization walks the transaction's actions, applies the native
// special cases, assembles the set of (permission, delay) obligations,
// and asserts each is satisfied in canonical ascending order. It reads
// the store but never mutates it; any failure leaves no partial state.
func (m *Manager) CheckAuthorization(ctx context.Context, req *CheckRequest) error {
	start := time.Now()
	m.plugins.EmitBeforeCheck(ctx, req)
	err := m.checkAuthorization(ctx, req)
	m.plugins.EmitAfterCheck(ctx, req, err, time.Since(start))
	return err
}

func (m *Manager) checkAuthorization(ctx context.Context, req *CheckRequest) error {
	checkTime := req.CheckTime
	if checkTime == nil {
		checkTime = noopCheckTime
	}

	effDelay := m.effectiveDelay(req.ProvidedDelay)
	checker := NewAuthorityChecker(m.authorityProvider(), m.config.MaxAuthorityDepth,
		req.ProvidedKeys, req.ProvidedPermissions, effDelay, checkTime)

	satisfied := make(map[authority.PermissionLevel]struct{}, len(req.Satisfied))
	for _, level := range req.Satisfied {
		satisfied[level] = struct{}{}
	}

	obligations := make(map[authority.PermissionLevel]time.Duration)

	for _, act := range req.Actions {
		specialCase := false
		delay := effDelay

		if act.Account == SystemAccount {
			specialCase = true
			switch act.Name {
			case UpdateAuthAction:
				var update transaction.UpdateAuth
				if err := act.DataAs(&update); err != nil {
					return err
				}
				if err := m.checkUpdateauthAuthorization(ctx, &update, act.Authorization); err != nil {
					return err
				}
			case DeleteAuthAction:
				var del transaction.DeleteAuth
				if err := act.DataAs(&del); err != nil {
					return err
				}
				if err := m.checkDeleteauthAuthorization(ctx, &del, act.Authorization); err != nil {
					return err
				}
			case LinkAuthAction:
				var link transaction.LinkAuth
				if err := act.DataAs(&link); err != nil {
					return err
				}
				if err := m.checkLinkauthAuthorization(ctx, &link, act.Authorization); err != nil {
					return err
				}
			case UnlinkAuthAction:
				var unlink transaction.UnlinkAuth
				if err := act.DataAs(&unlink); err != nil {
					return err
				}
				if err := m.checkUnlinkauthAuthorization(ctx, &unlink, act.Authorization); err != nil {
					return err
				}
			case CancelDelayAction:
				var cancel transaction.CancelDelay
				if err := act.DataAs(&cancel); err != nil {
					return err
				}
				contributed, err := m.checkCanceldelayAuthorization(ctx, &cancel, act.Authorization)
				if err != nil {
					return err
				}
				if contributed > delay {
					delay = contributed
				}
			default:
				specialCase = false
			}
		}

		for _, declared := range act.Authorization {
			if err := checkTime(); err != nil {
				return err
			}

			if !specialCase {
				minName, ok, err := m.LookupMinimumPermission(ctx, declared.Actor, act.Account, act.Name)
				if err != nil {
					return err
				}
				// A false ok here means the action is linked to the "any
				// authorization" wildcard; the special cases were already
				// handled above.
				if ok {
					if err := m.requireDeclaredSatisfies(ctx, declared, authority.PermissionLevel{Actor: declared.Actor, Permission: minName}, act); err != nil {
						return err
					}
				}
			}

			if _, done := satisfied[declared]; !done {
				// A permission obliged by several actions must first meet
				// the tightest one: keep the minimum delay on collision.
				if cur, exists := obligations[declared]; !exists || cur > delay {
					obligations[declared] = delay
				}
			}
		}
	}

	// The protocol specifies a sequential check in ascending order of
	// actor, ties broken by permission name — never parallelize this.
	levels := make([]authority.PermissionLevel, 0, len(obligations))
	for level := range obligations {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Compare(levels[j]) < 0 })

	for _, level := range levels {
		if err := checkTime(); err != nil {
			return err
		}
		ok, err := checker.SatisfiedAt(ctx, level, obligations[level])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: transaction declares authority %s, but does not have signatures for it under a provided delay of %v, provided permissions %v, and provided keys %v",
				ErrUnsatisfiedAuthorization, level, req.ProvidedDelay, req.ProvidedPermissions, req.ProvidedKeys)
		}
	}

	if !req.AllowUnusedKeys && !checker.AllKeysUsed() {
		return fmt.Errorf("%w: %v", ErrIrrelevantSignatures, checker.UnusedKeys())
	}
	return nil
}

// CheckPermissionAuthorization checks a single permission against the
// provided keys, permissions, and delay.
func (m *Manager) CheckPermissionAuthorization(ctx context.Context, req *PermissionCheckRequest) error {
	checkTime := req.CheckTime
	if checkTime == nil {
		checkTime = noopCheckTime
	}

	checker := NewAuthorityChecker(m.authorityProvider(), m.config.MaxAuthorityDepth,
		req.ProvidedKeys, req.ProvidedPermissions, m.effectiveDelay(req.ProvidedDelay), checkTime)

	level := authority.PermissionLevel{Actor: req.Account, Permission: req.Permission}
	ok, err := checker.Satisfied(ctx, level)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: permission %s was not satisfied under a provided delay of %v, provided permissions %v, and provided keys %v",
			ErrUnsatisfiedAuthorization, level, req.ProvidedDelay, req.ProvidedPermissions, req.ProvidedKeys)
	}

	if !req.AllowUnusedKeys && !checker.AllKeysUsed() {
		return fmt.Errorf("%w: %v", ErrIrrelevantSignatures, checker.UnusedKeys())
	}
	return nil
}

// GetRequiredKeys returns the subset of candidateKeys the transaction
// actually needs: every declared authorization must be satisfiable from
// the candidates alone, and the keys consumed in doing so are the
// answer.
func (m *Manager) GetRequiredKeys(ctx context.Context, trx *transaction.Transaction, candidateKeys []authority.PublicKey, providedDelay time.Duration) ([]authority.PublicKey, error) {
	checker := NewAuthorityChecker(m.authorityProvider(), m.config.MaxAuthorityDepth,
		candidateKeys, nil, providedDelay, nil)

	for _, act := range trx.Actions {
		for _, declared := range act.Authorization {
			ok, err := checker.Satisfied(ctx, declared)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: transaction declares authority %s, but does not have signatures for it", ErrUnsatisfiedAuthorization, declared)
			}
		}
	}
	return checker.UsedKeys(), nil
}

// requireDeclaredSatisfies asserts the generic per-action minimum.
func (m *Manager) requireDeclaredSatisfies(ctx context.Context, declared, min authority.PermissionLevel, act *transaction.Action) error {
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
		return fmt.Errorf("%w: action %s::%s declares irrelevant authority %s; minimum authority is %s",
			ErrIrrelevantAuth, act.Account, act.Name, declared, min)
	}
	return nil
}
