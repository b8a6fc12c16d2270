package audit

// schemaSQL returns the DDL for the audit database. All statements are
// idempotent so opening an existing database is safe.
func schemaSQL() string {
	return `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    caller        TEXT NOT NULL,
    document_path TEXT NOT NULL,
    status        TEXT NOT NULL,
    text_length   INTEGER NOT NULL DEFAULT 0,
    element_count INTEGER NOT NULL DEFAULT 0,
    pattern_count INTEGER NOT NULL DEFAULT 0,
    no_hypotheses INTEGER NOT NULL DEFAULT 0,
    failure_stage TEXT,
    failure_reason TEXT,
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
    elapsed_ms    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stage_results (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    stage      TEXT NOT NULL,
    ok         INTEGER NOT NULL,
    detail     TEXT,
    error      TEXT,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_stage_results_run ON stage_results(run_id);

CREATE TABLE IF NOT EXISTS verification_results (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    question TEXT NOT NULL,
    verdict  TEXT,
    evidence TEXT,
    error    TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_verification_results_run ON verification_results(run_id);
`
}
