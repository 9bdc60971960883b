package transaction

import (
	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
)

// Payloads of the five native permission-management actions. Each is a
// distinct record type decoded from Action.Data via DataAs.

// UpdateAuth creates or replaces a permission's authority.
type UpdateAuth struct {
	Account    name.AccountName    `json:"account" cbor:"account"`
	Permission name.PermissionName `json:"permission" cbor:"permission"`
	Parent     name.PermissionName `json:"parent" cbor:"parent"`
	Auth       authority.Authority `json:"auth" cbor:"auth"`
}

// DeleteAuth removes a permission.
type DeleteAuth struct {
	Account    name.AccountName    `json:"account" cbor:"account"`
	Permission name.PermissionName `json:"permission" cbor:"permission"`
}

// LinkAuth links (account, contract, action) to a required permission.
type LinkAuth struct {
	Account     name.AccountName    `json:"account" cbor:"account"`
	Contract    name.AccountName    `json:"code" cbor:"code"`
	Action      name.ActionName     `json:"type" cbor:"type"`
	Requirement name.PermissionName `json:"requirement" cbor:"requirement"`
}

// UnlinkAuth removes a link.
type UnlinkAuth struct {
	Account  name.AccountName `json:"account" cbor:"account"`
	Contract name.AccountName `json:"code" cbor:"code"`
	Action   name.ActionName  `json:"type" cbor:"type"`
}

// CancelDelay cancels a user-originated deferred transaction.
type CancelDelay struct {
	CancelingAuth authority.PermissionLevel `json:"canceling_auth" cbor:"canceling_auth"`
	TrxID         ID                        `json:"trx_id" cbor:"trx_id"`
}
