// Package permission defines the permission graph entities: the Permission
// itself, its paired Usage record, and the Link rows that map contract
// actions to required permissions.
package permission

import (
	"time"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
)

// ID is a dense permission identifier assigned by the store. ID 0 is
// reserved for the root sentinel and never carries a real authority.
type ID uint64

// UsageID identifies a Usage record. Dense, store-assigned.
type UsageID uint64

// Permission is a node in an account's permission tree. Parent 0 marks a
// top-level permission; the parent relation forms a forest with one tree
// per account.
type Permission struct {
	ID          ID                  `json:"id"`
	UsageID     UsageID             `json:"usage_id"`
	Parent      ID                  `json:"parent"`
	Owner       name.AccountName    `json:"owner"`
	Name        name.PermissionName `json:"name"`
	LastUpdated time.Time           `json:"last_updated"`
	Auth        authority.Authority `json:"auth"`
}

// Level returns the permission-level pair naming this permission.
func (p *Permission) Level() authority.PermissionLevel {
	return authority.PermissionLevel{Actor: p.Owner, Permission: p.Name}
}

// Usage records when a permission last authorized a transaction. Created
// and removed in lockstep with its Permission.
type Usage struct {
	ID       UsageID   `json:"id"`
	LastUsed time.Time `json:"last_used"`
}

// Link maps (owner, contract, action) to the permission required to invoke
// that action. An empty Action is the contract-wide default. Links survive
// the deletion of their target permission; resolvers must handle the
// absence.
type Link struct {
	Owner              name.AccountName    `json:"owner"`
	Contract           name.AccountName    `json:"contract"`
	Action             name.ActionName     `json:"action"`
	RequiredPermission name.PermissionName `json:"required_permission"`
}
