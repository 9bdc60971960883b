package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/Bitconch/authz"
	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/store"
)

// toVerdict converts a check outcome into a response. Authorization
// failures are verdicts; anything else stays an error for mapError.
func toVerdict(err error) (*AuthorizedResponse, error) {
	if err == nil {
		return &AuthorizedResponse{Authorized: true}, nil
	}
	if errors.Is(err, authz.ErrUnsatisfiedAuthorization) ||
		errors.Is(err, authz.ErrIrrelevantSignatures) ||
		errors.Is(err, authz.ErrIrrelevantAuth) {
		return &AuthorizedResponse{Authorized: false, Reason: err.Error()}, nil
	}
	return nil, mapError(err)
}

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, authz.ErrTxNotFound) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, authz.ErrInvalidPermission) ||
		errors.Is(err, authz.ErrActionValidate) ||
		errors.Is(err, authz.ErrTransaction) ||
		errors.Is(err, authz.ErrUnlinkableMinPermission) ||
		errors.Is(err, authority.ErrInvalidAuthority) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, authz.ErrUnsatisfiedAuthorization) ||
		errors.Is(err, authz.ErrIrrelevantSignatures) {
		return forge.Forbidden(err.Error())
	}
	return err
}
