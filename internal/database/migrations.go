package database

// Migration is one forward schema step.
type Migration struct {
	Version string
	Up      string
}

var migrations = []Migration{
	{
		Version: "001_servers",
		Up: `
CREATE TABLE modpacks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    source_kind TEXT NOT NULL DEFAULT 'preset_html',
    source_value TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE servers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    port INTEGER NOT NULL,
    fps_limit INTEGER NOT NULL DEFAULT 50,
    world TEXT NOT NULL DEFAULT 'empty',
    extra_flags TEXT NOT NULL DEFAULT '[]',
    modpack_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (modpack_id) REFERENCES modpacks(id) ON DELETE SET NULL
);

CREATE INDEX idx_servers_modpack ON servers(modpack_id);
`,
	},
	{
		Version: "002_activity_log",
		Up: `
CREATE TABLE activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    server_id TEXT NOT NULL,
    operation_id TEXT,
    activity_type TEXT NOT NULL,
    description TEXT NOT NULL,
    metadata TEXT,
    success BOOLEAN NOT NULL DEFAULT 1,
    error_message TEXT
);

CREATE INDEX idx_activity_server ON activity_log(server_id, timestamp);
CREATE INDEX idx_activity_operation ON activity_log(operation_id);
`,
	},
}
