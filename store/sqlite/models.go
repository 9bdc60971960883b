package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/checklog"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
)

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:authz_permissions"`
	ID              uint64    `grove:"id,pk"`
	UsageID         uint64    `grove:"usage_id,notnull"`
	Parent          uint64    `grove:"parent,notnull"`
	Owner           string    `grove:"owner,notnull"`
	Name            string    `grove:"name,notnull"`
	LastUpdated     time.Time `grove:"last_updated,notnull"`
	Auth            string    `grove:"auth,notnull"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func permissionToModel(p *permission.Permission) (*permissionModel, error) {
	auth, err := json.Marshal(p.Auth)
	if err != nil {
		return nil, fmt.Errorf("marshal authority: %w", err)
	}
	return &permissionModel{
		ID:          uint64(p.ID),
		UsageID:     uint64(p.UsageID),
		Parent:      uint64(p.Parent),
		Owner:       p.Owner.String(),
		Name:        p.Name.String(),
		LastUpdated: p.LastUpdated,
		Auth:        string(auth),
	}, nil
}

func permissionFromModel(m *permissionModel) (*permission.Permission, error) {
	var auth authority.Authority
	if m.Auth != "" {
		if err := json.Unmarshal([]byte(m.Auth), &auth); err != nil {
			return nil, fmt.Errorf("unmarshal authority: %w", err)
		}
	}
	return &permission.Permission{
		ID:          permission.ID(m.ID),
		UsageID:     permission.UsageID(m.UsageID),
		Parent:      permission.ID(m.Parent),
		Owner:       name.AccountName(m.Owner),
		Name:        name.PermissionName(m.Name),
		LastUpdated: m.LastUpdated,
		Auth:        auth,
	}, nil
}

// ──────────────────────────────────────────────────
// Usage model
// ──────────────────────────────────────────────────

type usageModel struct {
	grove.BaseModel `grove:"table:authz_permission_usages"`
	ID              uint64    `grove:"id,pk"`
	LastUsed        time.Time `grove:"last_used,notnull"`
}

func usageToModel(u *permission.Usage) *usageModel {
	return &usageModel{ID: uint64(u.ID), LastUsed: u.LastUsed}
}

func usageFromModel(m *usageModel) *permission.Usage {
	return &permission.Usage{ID: permission.UsageID(m.ID), LastUsed: m.LastUsed}
}

// ──────────────────────────────────────────────────
// Link model
// ──────────────────────────────────────────────────

type linkModel struct {
	grove.BaseModel `grove:"table:authz_permission_links"`
	Owner           string `grove:"owner,pk"`
	Contract        string `grove:"contract,pk"`
	Action          string `grove:"action,pk"`
	Required        string `grove:"required_permission,notnull"`
}

func linkToModel(l *permission.Link) *linkModel {
	return &linkModel{
		Owner:    l.Owner.String(),
		Contract: l.Contract.String(),
		Action:   l.Action.String(),
		Required: l.RequiredPermission.String(),
	}
}

func linkFromModel(m *linkModel) *permission.Link {
	return &permission.Link{
		Owner:              name.AccountName(m.Owner),
		Contract:           name.AccountName(m.Contract),
		Action:             name.ActionName(m.Action),
		RequiredPermission: name.PermissionName(m.Required),
	}
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:authz_check_logs"`
	ID              string    `grove:"id,pk"`
	Authorizations  string    `grove:"authorizations"` // JSON text
	Satisfied       bool      `grove:"satisfied,notnull"`
	Reason          string    `grove:"reason"`
	EvalTimeNs      int64     `grove:"eval_time_ns,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func checkLogToModel(e *checklog.Entry) (*checkLogModel, error) {
	auths, err := json.Marshal(e.Authorizations)
	if err != nil {
		return nil, fmt.Errorf("marshal authorizations: %w", err)
	}
	return &checkLogModel{
		ID:             e.ID,
		Authorizations: string(auths),
		Satisfied:      e.Satisfied,
		Reason:         e.Reason,
		EvalTimeNs:     e.EvalTimeNs,
		CreatedAt:      e.CreatedAt,
	}, nil
}

func checkLogFromModel(m *checkLogModel) (*checklog.Entry, error) {
	var auths []string
	if m.Authorizations != "" {
		if err := json.Unmarshal([]byte(m.Authorizations), &auths); err != nil {
			return nil, fmt.Errorf("unmarshal authorizations: %w", err)
		}
	}
	return &checklog.Entry{
		ID:             m.ID,
		Authorizations: auths,
		Satisfied:      m.Satisfied,
		Reason:         m.Reason,
		EvalTimeNs:     m.EvalTimeNs,
		CreatedAt:      m.CreatedAt,
	}, nil
}
