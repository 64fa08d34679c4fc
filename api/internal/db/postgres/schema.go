package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent so it can run on every boot.
const schema = `
CREATE TABLE IF NOT EXISTS roles (
	id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL UNIQUE,
	rank INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS permissions (
	id       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	resource TEXT NOT NULL,
	action   TEXT NOT NULL,
	UNIQUE (resource, action)
);

CREATE TABLE IF NOT EXISTS role_permissions (
	role_id       UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
	PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	role_id       UUID NOT NULL REFERENCES roles(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS services (
	name                 TEXT PRIMARY KEY,
	image                TEXT NOT NULL DEFAULT '',
	subdomain            TEXT NOT NULL DEFAULT '',
	port                 TEXT NOT NULL DEFAULT '',
	client_max_body_size TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS proxy_audit (
	id         BIGSERIAL PRIMARY KEY,
	service    TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	backup     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS proxy_audit_created_at_idx ON proxy_audit (created_at DESC);
`

// Migrate creates the tables the panel needs if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
