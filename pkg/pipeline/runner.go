// Package pipeline drives the end-to-end conversation analysis batch:
// load messages, segment, classify + embed + persist chunks in small
// concurrent batches, and track run progress.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/analysis"
	"github.com/tandem-insights/tandem/pkg/chunking"
	"github.com/tandem-insights/tandem/pkg/embedding"
	"github.com/tandem-insights/tandem/pkg/intel"
	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

// MessageSource loads the pipeline's working set.
type MessageSource interface {
	LoadMessages(ctx context.Context) ([]chunking.Message, error)
}

// Classifier produces structured metadata for a chunk. The production
// client never errors (it falls back internally); the error return exists
// so the orchestrator can contain misbehaving implementations.
type Classifier interface {
	Classify(ctx context.Context, chunk chunking.Chunk) (analysis.ChunkAnalysis, error)
}

// Embedder produces a fixed-length vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Persister writes a processed chunk to the intelligence stores.
type Persister interface {
	Persist(ctx context.Context, chunk chunking.Chunk, a analysis.ChunkAnalysis, vector []float32) intel.PersistResult
}

// StatusSink records run progress.
type StatusSink interface {
	CreateRun(ctx context.Context, runID string, totalChunks int) error
	UpdateRunProgress(ctx context.Context, runID string, processedChunks int) error
	CompleteRun(ctx context.Context, runID string) error
	FailRun(ctx context.Context, runID string, errMsg string) error
}

// Summary is the result of one full pass.
type Summary struct {
	RunID           string `json:"run_id"`
	TotalChunks     int    `json:"total_chunks"`
	ProcessedChunks int    `json:"processed_chunks"`
}

// Runner orchestrates a full analysis pass.
type Runner struct {
	cfg        *pipeconfig.Config
	source     MessageSource
	classifier Classifier
	embedder   Embedder
	writer     Persister
	status     StatusSink
}

// NewRunner wires an orchestrator from its collaborators.
func NewRunner(cfg *pipeconfig.Config, source MessageSource, classifier Classifier, embedder Embedder, writer Persister, status StatusSink) *Runner {
	return &Runner{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		embedder:   embedder,
		writer:     writer,
		status:     status,
	}
}

// Run executes a full pass over the message history. Per-chunk failures
// are caught and logged; only a failure to load the message set (or a
// status-store failure) aborts the pass. Re-running over the same history
// is safe: chunk boundaries and ids are deterministic and every write is
// an upsert.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	start := time.Now()

	messages, err := r.source.LoadMessages(ctx)
	if err != nil {
		if ferr := r.status.FailRun(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("run_id", runID).Msg("Failed to record run failure")
		}
		return Summary{RunID: runID}, fmt.Errorf("loading messages: %w", err)
	}

	chunks := chunking.Segment(messages, r.cfg)
	stats := chunking.NewStats()
	for _, c := range chunks {
		stats.Observe(c)
	}
	log.Info().
		Str("run_id", runID).
		Int("messages", len(messages)).
		Int("chunks", len(chunks)).
		Int("single_message_chunks", stats.SingleMessageChunks).
		Interface("size_ranges", stats.SizeRanges).
		Msg("Starting analysis pass")

	if err := r.status.CreateRun(ctx, runID, len(chunks)); err != nil {
		return Summary{RunID: runID}, fmt.Errorf("creating run status: %w", err)
	}

	batchSize := r.cfg.Pipeline.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	delay := time.Duration(r.cfg.Pipeline.BatchDelayMs) * time.Millisecond

	processed := 0
	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		// Settle-all join: every chunk in the batch runs to completion
		// regardless of sibling failures.
		ok := make([]bool, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok[i] = r.processChunk(ctx, batch[i])
			}(i)
		}
		wg.Wait()

		for _, success := range ok {
			if success {
				processed++
			}
		}

		if err := r.status.UpdateRunProgress(ctx, runID, processed); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("Failed to update run progress")
		}

		// Pause between batches to respect external service rate limits.
		if batchEnd < len(chunks) && delay > 0 {
			select {
			case <-ctx.Done():
				// The status write must survive the cancellation that
				// triggered it, or the record stays stuck at processing.
				if ferr := r.status.FailRun(context.WithoutCancel(ctx), runID, ctx.Err().Error()); ferr != nil {
					log.Error().Err(ferr).Str("run_id", runID).Msg("Failed to record run cancellation")
				}
				return Summary{RunID: runID, TotalChunks: len(chunks), ProcessedChunks: processed}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if err := r.status.CompleteRun(ctx, runID); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to finalize run status")
	}

	log.Info().
		Str("run_id", runID).
		Int("processed", processed).
		Int("total", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Analysis pass complete")

	return Summary{RunID: runID, TotalChunks: len(chunks), ProcessedChunks: processed}, nil
}

// processChunk runs classify, embed, and persist for one chunk. Any
// failure is logged and reported as false; one bad chunk never aborts its
// batch. The chunk id is stable, so a later pass simply reprocesses it.
func (r *Runner) processChunk(ctx context.Context, chunk chunking.Chunk) bool {
	a, err := r.classifier.Classify(ctx, chunk)
	if err != nil {
		log.Error().Err(err).Str("chunk_id", chunk.ChunkID).Msg("Chunk classification failed")
		return false
	}

	vector, err := r.embedder.Embed(ctx, embedding.EnrichedText(chunk.Text, a))
	if err != nil {
		log.Error().Err(err).Str("chunk_id", chunk.ChunkID).Msg("Chunk embedding failed")
		return false
	}

	res := r.writer.Persist(ctx, chunk, a, vector)
	if res.Failed() {
		log.Error().
			AnErr("chunk_row", res.ChunkRow.Err).
			AnErr("vector_entry", res.VectorEntry.Err).
			AnErr("messages", res.Messages.Err).
			Str("chunk_id", chunk.ChunkID).
			Msg("Chunk persistence failed")
		return false
	}

	return true
}
