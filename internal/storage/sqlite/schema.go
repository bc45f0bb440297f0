package sqlite

const schema = `
-- Canonical integrated objects table. Identity is the 3-tuple plus object
-- type; the integer id is a storage surrogate only.
CREATE TABLE IF NOT EXISTS integrated_objects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    object_type TEXT NOT NULL CHECK(object_type IN ('ticket', 'conversation', 'article', 'attachment')),
    original_id TEXT NOT NULL,
    original_data TEXT NOT NULL DEFAULT '{}',
    integrated_content TEXT NOT NULL DEFAULT '',
    summary TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    parent_type TEXT NOT NULL DEFAULT '',
    parent_original_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    UNIQUE(tenant_id, platform, object_type, original_id)
);

CREATE INDEX IF NOT EXISTS idx_objects_tenant ON integrated_objects(tenant_id);
CREATE INDEX IF NOT EXISTS idx_objects_tenant_platform ON integrated_objects(tenant_id, platform);
CREATE INDEX IF NOT EXISTS idx_objects_tenant_type ON integrated_objects(tenant_id, object_type);
CREATE INDEX IF NOT EXISTS idx_objects_original_id ON integrated_objects(original_id);
CREATE INDEX IF NOT EXISTS idx_objects_created_at ON integrated_objects(created_at);
CREATE INDEX IF NOT EXISTS idx_objects_parent ON integrated_objects(parent_type, parent_original_id);

-- Per-job progress log; one row per step, upserted, bounded by total_steps.
CREATE TABLE IF NOT EXISTS progress_logs (
    job_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    total_steps INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    percentage REAL NOT NULL DEFAULT 0 CHECK(percentage >= 0 AND percentage <= 100),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(job_id, tenant_id, step)
);

CREATE INDEX IF NOT EXISTS idx_progress_job ON progress_logs(job_id);

CREATE TABLE IF NOT EXISTS tenant_settings (
    tenant_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    is_encrypted INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (tenant_id, key)
);

CREATE TABLE IF NOT EXISTS system_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- SaaS-side tables; persisted here but not on the ingestion critical path.
CREATE TABLE IF NOT EXISTS agents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    email TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'agent',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(tenant_id, email)
);

CREATE TABLE IF NOT EXISTS licenses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL UNIQUE,
    seats INTEGER NOT NULL DEFAULT 0,
    plan TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active',
    plan TEXT NOT NULL DEFAULT '',
    started_at DATETIME,
    renews_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
