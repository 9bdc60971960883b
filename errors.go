package authz

import "errors"

var (
	// ErrInvalidPermission is returned for a lookup with an empty actor
	// or permission name.
	ErrInvalidPermission = errors.New("authz: invalid permission")

	// ErrPermissionQuery wraps store failures while retrieving a
	// permission.
	ErrPermissionQuery = errors.New("authz: failed to retrieve permission")

	// ErrIrrelevantAuth is returned when a declared authorization is
	// weaker than or outside the required minimum, and for shape errors
	// in the native checks (wrong actor, wrong count).
	ErrIrrelevantAuth = errors.New("authz: irrelevant authority declared")

	// ErrActionValidate is returned for structural rejections in native
	// actions: deleting a permission with children, linking an
	// unlinkable action, a canceling_auth absent from the original
	// transaction.
	ErrActionValidate = errors.New("authz: action validation failed")

	// ErrUnlinkableMinPermission is returned when minimum-permission
	// lookup is attempted on an unlinkable native action.
	ErrUnlinkableMinPermission = errors.New("authz: minimum permission lookup on unlinkable native action")

	// ErrTransaction is returned when unlinkauth targets a link that
	// does not exist.
	ErrTransaction = errors.New("authz: invalid transaction")

	// ErrTxNotFound is returned when canceldelay targets a deferred
	// transaction that is missing or not user-originated.
	ErrTxNotFound = errors.New("authz: deferred transaction not found")

	// ErrUnsatisfiedAuthorization is returned when a declared
	// authorization cannot be satisfied by the provided keys,
	// permissions, and delay.
	ErrUnsatisfiedAuthorization = errors.New("authz: unsatisfied authorization")

	// ErrIrrelevantSignatures is returned when provided keys go unused
	// and the caller forbade that.
	ErrIrrelevantSignatures = errors.New("authz: transaction bears irrelevant signatures")

	// ErrSnapshot is returned when a snapshot row violates the store
	// invariants, especially on reserved permission 0.
	ErrSnapshot = errors.New("authz: snapshot integrity violation")

	// ErrAuthorityTooHigh is returned when authority evaluation exhausts
	// the recursion depth budget.
	ErrAuthorityTooHigh = errors.New("authz: authority recursion depth exceeded")
)
