package intel

import "context"

// ChunkMeta is the denormalized chunk metadata stored alongside the vector,
// so search results are self-describing without a second lookup.
type ChunkMeta struct {
	StartTimestampMs     int64    `json:"start_timestamp_ms"`
	EndTimestampMs       int64    `json:"end_timestamp_ms"`
	MessageCount         int      `json:"message_count"`
	Participants         []string `json:"participants"`
	ContextType          string   `json:"context_type"`
	CommunicationPattern string   `json:"communication_pattern"`
	RelationshipDynamics string   `json:"relationship_dynamics"`
	EmotionalIntensity   int      `json:"emotional_intensity"`
	ConflictLevel        int      `json:"conflict_level"`
	IntimacyLevel        int      `json:"intimacy_level"`
	SupportLevel         int      `json:"support_level"`
	Tags                 []string `json:"tags"`
}

// VectorEntry is one chunk's entry in the vector index.
type VectorEntry struct {
	ChunkID string
	Vector  []float32
	Meta    ChunkMeta
}

// Match is a ranked nearest-neighbor result.
type Match struct {
	ChunkID string    `json:"chunk_id"`
	Score   float64   `json:"score"`
	Meta    ChunkMeta `json:"metadata"`
}

// VectorIndex is the nearest-neighbor index for chunk embeddings.
// Upserts replace on conflict by chunk id.
type VectorIndex interface {
	Upsert(ctx context.Context, entry VectorEntry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Close() error
}
