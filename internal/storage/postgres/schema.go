package postgres

import "fmt"

// systemSchema holds process-wide tables outside any tenant scope.
const systemSchema = `
CREATE TABLE IF NOT EXISTS system_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// tenantSchemaDDL renders the per-tenant tables inside the given schema. The
// schema name is derived from a validated tenant id, never from raw input.
func tenantSchemaDDL(schema string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s.integrated_objects (
    id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    object_type TEXT NOT NULL CHECK(object_type IN ('ticket', 'conversation', 'article', 'attachment')),
    original_id TEXT NOT NULL,
    original_data JSONB NOT NULL DEFAULT '{}',
    integrated_content TEXT NOT NULL DEFAULT '',
    summary TEXT,
    metadata JSONB NOT NULL DEFAULT '{}',
    parent_type TEXT NOT NULL DEFAULT '',
    parent_original_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ,
    UNIQUE(tenant_id, platform, object_type, original_id)
);

CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_tenant ON %[1]s.integrated_objects(tenant_id);
CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_tenant_platform ON %[1]s.integrated_objects(tenant_id, platform);
CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_tenant_type ON %[1]s.integrated_objects(tenant_id, object_type);
CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_original_id ON %[1]s.integrated_objects(original_id);
CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_created_at ON %[1]s.integrated_objects(created_at);
CREATE INDEX IF NOT EXISTS idx_%[2]s_objects_metadata ON %[1]s.integrated_objects USING GIN (metadata);

CREATE TABLE IF NOT EXISTS %[1]s.progress_logs (
    job_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    total_steps INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    percentage DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK(percentage >= 0 AND percentage <= 100),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(job_id, tenant_id, step)
);

CREATE TABLE IF NOT EXISTS %[1]s.tenant_settings (
    tenant_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    is_encrypted BOOLEAN NOT NULL DEFAULT false,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (tenant_id, key)
);

CREATE TABLE IF NOT EXISTS %[1]s.agents (
    id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    email TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'agent',
    active BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(tenant_id, email)
);

CREATE TABLE IF NOT EXISTS %[1]s.licenses (
    id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL UNIQUE,
    seats INTEGER NOT NULL DEFAULT 0,
    plan TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.subscriptions (
    id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active',
    plan TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ,
    renews_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, schema, schema)
}
