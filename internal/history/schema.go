package history

const schema = `
CREATE TABLE IF NOT EXISTS update_cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    installed_version TEXT NOT NULL,
    latest_version TEXT NOT NULL,
    outcome TEXT NOT NULL,
    updated BOOLEAN NOT NULL DEFAULT 0,
    error_code TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    bytes_downloaded INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON update_cycles(started_at);
`
