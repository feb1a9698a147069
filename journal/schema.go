package journal

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL DEFAULT 0,
    outcome         TEXT NOT NULL DEFAULT 'running',
    start_index     INTEGER NOT NULL DEFAULT 0,
    checkpoint      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS failures (
    id              TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    kind            TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL DEFAULT '',
    row_index       INTEGER NOT NULL DEFAULT -1,
    identifier      TEXT NOT NULL DEFAULT '',
    failed_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failures_at ON failures(failed_at DESC);
`
