package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Users table
CREATE TABLE users (
    id TEXT PRIMARY KEY,
    username TEXT UNIQUE NOT NULL,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_users_username ON users(username);

-- Managed servers
CREATE TABLE servers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    host TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 22,
    username TEXT NOT NULL,
    auth_method TEXT NOT NULL CHECK (auth_method IN ('password', 'key')),
    encrypted_credential BLOB NOT NULL,
    online BOOLEAN DEFAULT 0,
    owner_id TEXT NOT NULL,
    last_checked_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (owner_id) REFERENCES users(id)
);

CREATE INDEX idx_servers_owner ON servers(owner_id);

-- Discovery scans
CREATE TABLE scans (
    id TEXT PRIMARY KEY,
    server_id TEXT NOT NULL,
    scan_type TEXT NOT NULL CHECK (scan_type IN ('full', 'quick', 'custom')),
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'completed', 'failed')),
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    duration_ms INTEGER DEFAULT 0,
    summary TEXT DEFAULT '',
    error_message TEXT DEFAULT '',
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE INDEX idx_scans_server ON scans(server_id);
CREATE INDEX idx_scans_status ON scans(status);

-- Services detected by a scan
CREATE TABLE scan_services (
    id TEXT PRIMARY KEY,
    scan_id TEXT NOT NULL,
    name TEXT NOT NULL,
    service_type TEXT NOT NULL CHECK (service_type IN ('systemd', 'docker', 'database')),
    status TEXT DEFAULT '',
    pid INTEGER DEFAULT 0,
    ports TEXT DEFAULT '[]',
    config_paths TEXT DEFAULT '[]',
    data_paths TEXT DEFAULT '[]',
    log_paths TEXT DEFAULT '[]',
    details TEXT DEFAULT '{}',
    priority INTEGER DEFAULT 0,
    strategy TEXT DEFAULT '',
    profile TEXT DEFAULT '{}',
    FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE INDEX idx_scan_services_scan ON scan_services(scan_id);

-- Filesystems detected by a scan
CREATE TABLE scan_filesystems (
    id TEXT PRIMARY KEY,
    scan_id TEXT NOT NULL,
    mount_point TEXT NOT NULL,
    device TEXT DEFAULT '',
    fs_type TEXT DEFAULT '',
    total_bytes INTEGER DEFAULT 0,
    used_bytes INTEGER DEFAULT 0,
    available_bytes INTEGER DEFAULT 0,
    usage_percent INTEGER DEFAULT 0,
    is_system BOOLEAN DEFAULT 0,
    contains_data BOOLEAN DEFAULT 0,
    backup_recommended BOOLEAN DEFAULT 0,
    priority INTEGER DEFAULT 0,
    estimated_compressed_bytes INTEGER DEFAULT 0,
    exclude_patterns TEXT DEFAULT '[]',
    FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE INDEX idx_scan_filesystems_scan ON scan_filesystems(scan_id);

-- Backup recommendations derived from a scan
CREATE TABLE scan_recommendations (
    id TEXT PRIMARY KEY,
    scan_id TEXT NOT NULL,
    rec_type TEXT NOT NULL,
    source TEXT NOT NULL,
    priority INTEGER DEFAULT 0,
    include_paths TEXT DEFAULT '[]',
    exclude_paths TEXT DEFAULT '[]',
    estimated_bytes INTEGER DEFAULT 0,
    frequency TEXT DEFAULT '',
    retention TEXT DEFAULT '',
    method TEXT DEFAULT '',
    FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE INDEX idx_scan_recommendations_scan ON scan_recommendations(scan_id);

-- Backups
CREATE TABLE backups (
    id TEXT PRIMARY KEY,
    server_id TEXT NOT NULL,
    backup_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'completed', 'failed')),
    file_path TEXT DEFAULT '',
    size_bytes INTEGER DEFAULT 0,
    started_at DATETIME,
    completed_at DATETIME,
    metadata TEXT DEFAULT '{}',
    error_message TEXT DEFAULT '',
    created_by TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE INDEX idx_backups_server ON backups(server_id);
CREATE INDEX idx_backups_status ON backups(status);

-- Restore jobs
CREATE TABLE restore_jobs (
    id TEXT PRIMARY KEY,
    backup_id TEXT NOT NULL,
    server_id TEXT NOT NULL,
    requested_by TEXT DEFAULT '',
    restore_type TEXT NOT NULL DEFAULT 'full',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN (
        'pending', 'preparing', 'verifying', 'stopping_services',
        'restoring', 'restarting_services', 'completed', 'failed', 'rolled_back'
    )),
    current_step TEXT DEFAULT '',
    progress INTEGER DEFAULT 0,
    services_restored TEXT DEFAULT '[]',
    services_failed TEXT DEFAULT '[]',
    rollback_path TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY (backup_id) REFERENCES backups(id),
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE INDEX idx_restore_jobs_server ON restore_jobs(server_id);
CREATE INDEX idx_restore_jobs_backup ON restore_jobs(backup_id);

-- Append-only audit trail for restore jobs
CREATE TABLE restore_audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    restore_job_id TEXT NOT NULL,
    step_number INTEGER NOT NULL,
    step_name TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('started', 'completed', 'failed', 'skipped')),
    message TEXT DEFAULT '',
    details TEXT DEFAULT '{}',
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    duration_ms INTEGER DEFAULT 0,
    FOREIGN KEY (restore_job_id) REFERENCES restore_jobs(id) ON DELETE CASCADE
);

CREATE INDEX idx_restore_audit_job ON restore_audit_log(restore_job_id, step_number);

-- Backup schedules
CREATE TABLE backup_schedules (
    id TEXT PRIMARY KEY,
    server_id TEXT NOT NULL,
    schedule_type TEXT NOT NULL CHECK (schedule_type IN ('daily', 'weekly', 'monthly')),
    hour INTEGER NOT NULL DEFAULT 2,
    day_of_week INTEGER,
    day_of_month INTEGER,
    source_paths TEXT DEFAULT '[]',
    destination TEXT DEFAULT '',
    compression BOOLEAN DEFAULT 1,
    encryption BOOLEAN DEFAULT 0,
    enabled BOOLEAN DEFAULT 1,
    next_run DATETIME,
    last_run DATETIME,
    last_status TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

CREATE INDEX idx_backup_schedules_server ON backup_schedules(server_id);
CREATE INDEX idx_backup_schedules_enabled ON backup_schedules(enabled);
`,
		Down: `
DROP TABLE IF EXISTS backup_schedules;
DROP TABLE IF EXISTS restore_audit_log;
DROP TABLE IF EXISTS restore_jobs;
DROP TABLE IF EXISTS backups;
DROP TABLE IF EXISTS scan_recommendations;
DROP TABLE IF EXISTS scan_filesystems;
DROP TABLE IF EXISTS scan_services;
DROP TABLE IF EXISTS scans;
DROP TABLE IF EXISTS servers;
DROP TABLE IF EXISTS users;
`,
	},
}
