package intel

// Schema defines the SQLite database schema for the analytics store
const schema = `
-- Messages table: raw message history plus denormalized chunk annotations.
-- The raw columns are read-only input to the pipeline; the annotation
-- columns are overwritten on every pass.
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    timestamp_ms INTEGER NOT NULL,
    sender TEXT NOT NULL,
    content TEXT,
    sentiment TEXT,
    category TEXT,
    tag TEXT,
    emotional_score INTEGER,
    tags_json TEXT,
    has_conflict BOOLEAN DEFAULT FALSE,
    relationship_context TEXT,
    analyzed_at INTEGER
);

-- Conversation chunks: one row per chunk, replaced wholesale on reprocessing.
CREATE TABLE IF NOT EXISTS conversation_chunks (
    chunk_id TEXT PRIMARY KEY,
    start_timestamp_ms INTEGER NOT NULL,
    end_timestamp_ms INTEGER NOT NULL,
    message_count INTEGER NOT NULL,
    participants TEXT NOT NULL,       -- JSON array of senders
    chunk_text TEXT NOT NULL,
    context_type TEXT NOT NULL,
    emotional_intensity INTEGER NOT NULL,
    communication_pattern TEXT NOT NULL,
    temporal_context TEXT NOT NULL,
    relationship_dynamics TEXT NOT NULL,
    tags TEXT NOT NULL,               -- JSON array of tags
    conflict_level INTEGER NOT NULL,
    intimacy_level INTEGER NOT NULL,
    support_level INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Pipeline runs: progress status keyed by run id. Best-effort status, not
-- a durable audit log.
CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,             -- processing | completed | error
    total_chunks INTEGER NOT NULL DEFAULT 0,
    processed_chunks INTEGER NOT NULL DEFAULT 0,
    started_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    completed_at_ms INTEGER,
    failed_at_ms INTEGER,
    error TEXT
);

-- Key-value metadata, e.g. the current_run pointer.
CREATE TABLE IF NOT EXISTS pipeline_metadata (
    key TEXT PRIMARY KEY,
    value TEXT,
    updated_at INTEGER NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_messages_sentiment ON messages(sentiment);
CREATE INDEX IF NOT EXISTS idx_chunks_start ON conversation_chunks(start_timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at_ms);
`
