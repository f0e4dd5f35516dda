package intel

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/analysis"
	"github.com/tandem-insights/tandem/pkg/chunking"
)

// StepResult records the outcome of one write step.
type StepResult struct {
	Err error
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool {
	return r.Err == nil
}

// PersistResult captures which of the three logically-coupled writes
// succeeded. The writes are not atomic across stores; this makes the
// intentional partial-failure tolerance auditable instead of
// logged-and-forgotten.
type PersistResult struct {
	ChunkRow    StepResult
	VectorEntry StepResult
	Messages    StepResult
}

// Failed reports whether the chunk should count as unprocessed. A vector
// index failure alone degrades searchability but does not fail the chunk.
func (r PersistResult) Failed() bool {
	return !r.ChunkRow.OK() || !r.Messages.OK()
}

// Writer persists a classified, embedded chunk. All three writes target
// the same idempotency key (the chunk id), so reprocessing is safe.
type Writer struct {
	store *Store
	index VectorIndex
}

// NewWriter creates a Writer over the relational store and vector index.
func NewWriter(store *Store, index VectorIndex) *Writer {
	return &Writer{store: store, index: index}
}

// Persist performs the three writes in sequence: chunk row, vector entry,
// message annotations. A vector failure is logged and tolerated; the
// relational record must not go missing just because the search index is
// down.
func (w *Writer) Persist(ctx context.Context, chunk chunking.Chunk, a analysis.ChunkAnalysis, vector []float32) PersistResult {
	var res PersistResult

	res.ChunkRow.Err = w.store.UpsertChunk(ctx, chunk, a)
	if !res.ChunkRow.OK() {
		log.Error().Err(res.ChunkRow.Err).Str("chunk_id", chunk.ChunkID).Msg("Failed to upsert chunk row")
	}

	if w.index == nil {
		// Vector indexing disabled; the relational record still lands.
		res.Messages.Err = w.store.AnnotateMessages(ctx, chunk, a)
		if !res.Messages.OK() {
			log.Error().Err(res.Messages.Err).Str("chunk_id", chunk.ChunkID).Msg("Failed to annotate member messages")
		}
		return res
	}

	res.VectorEntry.Err = w.index.Upsert(ctx, VectorEntry{
		ChunkID: chunk.ChunkID,
		Vector:  vector,
		Meta: ChunkMeta{
			StartTimestampMs:     chunk.StartTime.UnixMilli(),
			EndTimestampMs:       chunk.EndTime.UnixMilli(),
			MessageCount:         len(chunk.Messages),
			Participants:         chunk.Participants,
			ContextType:          a.ContextType,
			CommunicationPattern: a.CommunicationPattern,
			RelationshipDynamics: a.RelationshipDynamics,
			EmotionalIntensity:   a.EmotionalIntensity,
			ConflictLevel:        a.ConflictLevel,
			IntimacyLevel:        a.IntimacyLevel,
			SupportLevel:         a.SupportLevel,
			Tags:                 a.Tags,
		},
	})
	if !res.VectorEntry.OK() {
		log.Warn().Err(res.VectorEntry.Err).Str("chunk_id", chunk.ChunkID).Msg("Vector index write failed, chunk will not be searchable")
	}

	res.Messages.Err = w.store.AnnotateMessages(ctx, chunk, a)
	if !res.Messages.OK() {
		log.Error().Err(res.Messages.Err).Str("chunk_id", chunk.ChunkID).Msg("Failed to annotate member messages")
	}

	return res
}
