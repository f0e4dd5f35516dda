// Package chunking segments an ordered text-message history into
// conversation chunks for contextual analysis and embedding.
//
// It implements:
// 1. Defensive timestamp sort: messages are ordered before segmentation
// 2. Gap splitting: new chunk after 90 minutes of silence
// 3. Day-boundary splitting: new chunk when a >20 minute gap crosses a calendar day
// 4. Size cap: at most 12 messages per chunk to keep classifier input tractable
package chunking

import "time"

// Message is a single text message from the message store.
type Message struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
}

// Chunk is a semantically coherent slice of the conversation, ready for
// classification and embedding. It exists only in memory; the derived
// record is what gets persisted.
type Chunk struct {
	// ChunkID is derived from the first and last member message ids and is
	// the idempotency key for all downstream writes.
	ChunkID      string    `json:"chunk_id"`
	Messages     []Message `json:"messages"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Participants []string  `json:"participants"`
	// Text is the canonical "[timestamp] sender: content" rendering fed to
	// the classifier and embedder.
	Text string `json:"text"`
}

// Stats contains segmentation statistics.
type Stats struct {
	TotalMessages       int
	TotalChunks         int
	SingleMessageChunks int
	SizeRanges          map[string]int
}

// NewStats creates a new Stats with initialized SizeRanges.
func NewStats() *Stats {
	return &Stats{
		SizeRanges: map[string]int{
			"1":    0,
			"2-4":  0,
			"5-8":  0,
			"9-12": 0,
			">12":  0,
		},
	}
}

// Observe updates the statistics for a chunk.
func (s *Stats) Observe(c Chunk) {
	s.TotalChunks++
	s.TotalMessages += len(c.Messages)

	n := len(c.Messages)
	switch {
	case n == 1:
		s.SingleMessageChunks++
		s.SizeRanges["1"]++
	case n <= 4:
		s.SizeRanges["2-4"]++
	case n <= 8:
		s.SizeRanges["5-8"]++
	case n <= 12:
		s.SizeRanges["9-12"]++
	default:
		s.SizeRanges[">12"]++
	}
}
