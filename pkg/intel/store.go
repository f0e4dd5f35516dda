// Package intel persists the pipeline's derived intelligence: chunk
// records, per-message annotations, vector index entries, and run status.
package intel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tandem-insights/tandem/pkg/analysis"
	"github.com/tandem-insights/tandem/pkg/chunking"
)

// Store handles all SQLite operations for messages, chunks, and run status.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to a plain :memory: DSN gets its own empty
	// database; cap the pool at one so concurrent writers share the
	// connection that ran the schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage stores a raw message row. Used by import tooling and tests;
// the pipeline itself treats messages as read-only input.
func (s *Store) InsertMessage(ctx context.Context, m chunking.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, timestamp_ms, sender, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp_ms = excluded.timestamp_ms,
			sender = excluded.sender,
			content = excluded.content
	`, m.ID, m.Timestamp.UnixMilli(), m.Sender, m.Content)
	if err != nil {
		return fmt.Errorf("inserting message %d: %w", m.ID, err)
	}
	return nil
}

// LoadMessages returns all messages with non-empty content, ordered by
// timestamp ascending. This is the pipeline's working set.
func (s *Store) LoadMessages(ctx context.Context) ([]chunking.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ms, sender, content
		FROM messages
		WHERE content IS NOT NULL AND TRIM(content) != ''
		ORDER BY timestamp_ms ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []chunking.Message
	for rows.Next() {
		var msg chunking.Message
		var tsMs int64

		if err := rows.Scan(&msg.ID, &tsMs, &msg.Sender, &msg.Content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp = time.UnixMilli(tsMs).UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// UpsertChunk writes the chunk's scalar and analysis fields, keyed by
// chunk id. Reprocessing a chunk simply overwrites prior results.
func (s *Store) UpsertChunk(ctx context.Context, chunk chunking.Chunk, a analysis.ChunkAnalysis) error {
	participants, err := json.Marshal(chunk.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_chunks (
			chunk_id, start_timestamp_ms, end_timestamp_ms, message_count,
			participants, chunk_text, context_type, emotional_intensity,
			communication_pattern, temporal_context, relationship_dynamics,
			tags, conflict_level, intimacy_level, support_level, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			start_timestamp_ms = excluded.start_timestamp_ms,
			end_timestamp_ms = excluded.end_timestamp_ms,
			message_count = excluded.message_count,
			participants = excluded.participants,
			chunk_text = excluded.chunk_text,
			context_type = excluded.context_type,
			emotional_intensity = excluded.emotional_intensity,
			communication_pattern = excluded.communication_pattern,
			temporal_context = excluded.temporal_context,
			relationship_dynamics = excluded.relationship_dynamics,
			tags = excluded.tags,
			conflict_level = excluded.conflict_level,
			intimacy_level = excluded.intimacy_level,
			support_level = excluded.support_level,
			updated_at = excluded.updated_at
	`,
		chunk.ChunkID,
		chunk.StartTime.UnixMilli(),
		chunk.EndTime.UnixMilli(),
		len(chunk.Messages),
		string(participants),
		chunk.Text,
		a.ContextType,
		a.EmotionalIntensity,
		a.CommunicationPattern,
		a.TemporalContext,
		a.RelationshipDynamics,
		string(tags),
		a.ConflictLevel,
		a.IntimacyLevel,
		a.SupportLevel,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", chunk.ChunkID, err)
	}

	return nil
}

// AnnotateMessages propagates the chunk's analysis summary onto every
// member message row. One-way denormalization: message-level queries and
// UI filters read these columns instead of re-deriving chunk context.
func (s *Store) AnnotateMessages(ctx context.Context, chunk chunking.Chunk, a analysis.ChunkAnalysis) error {
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	sentiment := analysis.Sentiment(a)
	joinedTags := strings.Join(a.Tags, ", ")
	relationshipContext := fmt.Sprintf("%s (%s)", a.RelationshipDynamics, a.CommunicationPattern)
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE messages SET
			sentiment = ?,
			category = ?,
			tag = ?,
			emotional_score = ?,
			tags_json = ?,
			has_conflict = ?,
			relationship_context = ?,
			analyzed_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, msg := range chunk.Messages {
		if _, err := stmt.ExecContext(ctx,
			sentiment,
			a.ContextType,
			joinedTags,
			a.EmotionalIntensity,
			string(tags),
			a.ConflictLevel > 2,
			relationshipContext,
			now,
			msg.ID,
		); err != nil {
			return fmt.Errorf("annotating message %d: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// ChunkCount returns the number of persisted chunk rows.
func (s *Store) ChunkCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversation_chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *Store) setMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	return err
}

func (s *Store) getMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM pipeline_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
