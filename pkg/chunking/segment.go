package chunking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

// ChunkID generates the deterministic chunk ID from the first and last
// member message ids. It is stable across runs, which makes every
// downstream upsert idempotent.
func ChunkID(firstID, lastID int64) string {
	return fmt.Sprintf("chunk_%d_%d", firstID, lastID)
}

// FormatMessageLine formats a single message for inclusion in chunk text.
func FormatMessageLine(msg Message, timestampFormat string) string {
	return fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format(timestampFormat), msg.Sender, msg.Content)
}

// shouldBreakAfter reports whether the conversation should be split between
// msg and next. A break happens after 90 minutes of silence, or after a
// >20 minute gap that crosses a calendar day.
func shouldBreakAfter(msg, next Message, cfg *pipeconfig.Config) bool {
	gap := next.Timestamp.Sub(msg.Timestamp)

	if gap > time.Duration(cfg.Segmentation.BreakGapMinutes)*time.Minute {
		return true
	}

	if !sameCalendarDay(msg.Timestamp, next.Timestamp) &&
		gap > time.Duration(cfg.Segmentation.DayBreakGapMinutes)*time.Minute {
		return true
	}

	return false
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Segment partitions messages into conversation chunks. It is pure and
// deterministic: the same message list always yields the same chunk
// boundaries and chunk ids. Empty input yields no chunks; an isolated
// message becomes its own one-message chunk.
func Segment(messages []Message, cfg *pipeconfig.Config) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	maxMessages := cfg.Segmentation.MaxChunkMessages
	if maxMessages < 1 {
		maxMessages = 1
	}

	var chunks []Chunk
	var buffer []Message

	for i := range sorted {
		buffer = append(buffer, sorted[i])

		last := i == len(sorted)-1
		if last || len(buffer) >= maxMessages || shouldBreakAfter(sorted[i], sorted[i+1], cfg) {
			chunks = append(chunks, finalizeChunk(buffer, cfg))
			buffer = nil
		}
	}

	return chunks
}

// finalizeChunk builds a Chunk from accumulated messages.
func finalizeChunk(messages []Message, cfg *pipeconfig.Config) Chunk {
	// Defensive re-sort; the buffer should already be ordered.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	lines := make([]string, 0, len(messages))
	seen := make(map[string]struct{})
	var participants []string

	for _, msg := range messages {
		lines = append(lines, FormatMessageLine(msg, cfg.Segmentation.TimestampFormat))
		if _, ok := seen[msg.Sender]; !ok {
			seen[msg.Sender] = struct{}{}
			participants = append(participants, msg.Sender)
		}
	}

	return Chunk{
		ChunkID:      ChunkID(messages[0].ID, messages[len(messages)-1].ID),
		Messages:     messages,
		StartTime:    messages[0].Timestamp,
		EndTime:      messages[len(messages)-1].Timestamp,
		Participants: participants,
		Text:         strings.Join(lines, "\n"),
	}
}
