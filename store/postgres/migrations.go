package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the authorization store
// (PostgreSQL).
var Migrations = migrate.NewGroup("authz")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS authz_permissions (
    id              BIGINT PRIMARY KEY,
    usage_id        BIGINT NOT NULL DEFAULT 0,
    parent          BIGINT NOT NULL DEFAULT 0,
    owner           TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL DEFAULT '',
    last_updated    TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
    auth            TEXT NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(owner, name)
);

CREATE INDEX IF NOT EXISTS idx_authz_perms_owner ON authz_permissions (owner, name);
CREATE INDEX IF NOT EXISTS idx_authz_perms_parent ON authz_permissions (parent);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS authz_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permission_usages",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS authz_permission_usages (
    id              BIGINT PRIMARY KEY,
    last_used       TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS authz_permission_usages`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permission_links",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS authz_permission_links (
    owner                TEXT NOT NULL,
    contract             TEXT NOT NULL,
    action               TEXT NOT NULL DEFAULT '',
    required_permission  TEXT NOT NULL,

    PRIMARY KEY (owner, contract, action)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS authz_permission_links`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_check_logs",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS authz_check_logs (
    id              TEXT PRIMARY KEY,
    authorizations  TEXT NOT NULL DEFAULT '[]',
    satisfied       BOOLEAN NOT NULL DEFAULT FALSE,
    reason          TEXT NOT NULL DEFAULT '',
    eval_time_ns    BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_authz_clogs_created ON authz_check_logs (created_at);
CREATE INDEX IF NOT EXISTS idx_authz_clogs_satisfied ON authz_check_logs (satisfied);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS authz_check_logs`)
				return err
			},
		},
	)
}
