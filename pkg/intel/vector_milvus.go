package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/tandem-insights/tandem/pkg/pipeconfig"
	"github.com/tandem-insights/tandem/pkg/util"
)

// MilvusIndex implements VectorIndex using Milvus
type MilvusIndex struct {
	client     client.Client
	collection string
	cfg        *pipeconfig.Config
}

// NewMilvusIndex connects to Milvus and ensures the chunk collection exists
// and is loaded.
func NewMilvusIndex(ctx context.Context, cfg *pipeconfig.Config) (*MilvusIndex, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Milvus.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Milvus: %w", err)
	}
	needsClose := true
	defer func() {
		if needsClose {
			_ = c.Close()
		}
	}()

	m := &MilvusIndex{
		client:     c,
		collection: cfg.Milvus.Collection,
		cfg:        cfg,
	}

	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}

	needsClose = false
	return m, nil
}

// ensureCollection creates the collection and its HNSW index if missing,
// then loads it for search.
func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}

	if !exists {
		if err := m.createCollection(ctx); err != nil {
			return err
		}
	}

	loaded, err := m.client.GetLoadState(ctx, m.collection, nil)
	if err != nil {
		return fmt.Errorf("checking collection load state: %w", err)
	}
	if loaded != entity.LoadStateLoaded {
		if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
			return fmt.Errorf("loading collection: %w", err)
		}
	}

	return nil
}

func (m *MilvusIndex) createCollection(ctx context.Context) error {
	dim := m.cfg.Embedding.Dimension

	schema := &entity.Schema{
		CollectionName: m.collection,
		Description:    "Conversation chunks with relationship analysis metadata",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "start_timestamp_ms",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "end_timestamp_ms",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "message_count",
				DataType: entity.FieldTypeInt16,
			},
			{
				Name:       "participants",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:       "context_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "communication_pattern",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "relationship_dynamics",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:     "emotional_intensity",
				DataType: entity.FieldTypeInt16,
			},
			{
				Name:     "conflict_level",
				DataType: entity.FieldTypeInt16,
			},
			{
				Name:     "intimacy_level",
				DataType: entity.FieldTypeInt16,
			},
			{
				Name:     "support_level",
				DataType: entity.FieldTypeInt16,
			},
			{
				Name:       "tags",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(
		milvusMetricFromConfig(m.cfg.Milvus.Index.Metric),
		m.cfg.Milvus.Index.M,
		m.cfg.Milvus.Index.EfConstruction,
	)
	if err != nil {
		return fmt.Errorf("creating index params: %w", err)
	}

	if err := m.client.CreateIndex(ctx, m.collection, "embedding", idx, false); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	return nil
}

// Drop removes the collection and recreates it empty, ready for a full
// reindex.
func (m *MilvusIndex) Drop(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return err
	}
	if exists {
		if err := m.client.DropCollection(ctx, m.collection); err != nil {
			return err
		}
	}
	return m.ensureCollection(ctx)
}

// Upsert replaces the entry for a chunk id with the given vector and metadata.
func (m *MilvusIndex) Upsert(ctx context.Context, e VectorEntry) error {
	participants, err := json.Marshal(e.Meta.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	// Stay under the schema's varchar limits; oversized values make Milvus
	// reject the whole row.
	cols := []entity.Column{
		entity.NewColumnVarChar("chunk_id", []string{util.TruncateExact(e.ChunkID, 63)}),
		entity.NewColumnInt64("start_timestamp_ms", []int64{e.Meta.StartTimestampMs}),
		entity.NewColumnInt64("end_timestamp_ms", []int64{e.Meta.EndTimestampMs}),
		entity.NewColumnInt16("message_count", []int16{int16(e.Meta.MessageCount)}),
		entity.NewColumnVarChar("participants", []string{util.TruncateExact(string(participants), 1023)}),
		entity.NewColumnVarChar("context_type", []string{util.TruncateExact(e.Meta.ContextType, 127)}),
		entity.NewColumnVarChar("communication_pattern", []string{util.TruncateExact(e.Meta.CommunicationPattern, 255)}),
		entity.NewColumnVarChar("relationship_dynamics", []string{util.TruncateExact(e.Meta.RelationshipDynamics, 1023)}),
		entity.NewColumnInt16("emotional_intensity", []int16{int16(e.Meta.EmotionalIntensity)}),
		entity.NewColumnInt16("conflict_level", []int16{int16(e.Meta.ConflictLevel)}),
		entity.NewColumnInt16("intimacy_level", []int16{int16(e.Meta.IntimacyLevel)}),
		entity.NewColumnInt16("support_level", []int16{int16(e.Meta.SupportLevel)}),
		entity.NewColumnVarChar("tags", []string{util.TruncateExact(strings.Join(e.Meta.Tags, "|"), 511)}),
		entity.NewColumnFloatVector("embedding", m.cfg.Embedding.Dimension, [][]float32{e.Vector}),
	}

	if _, err := m.client.Upsert(ctx, m.collection, "", cols...); err != nil {
		return fmt.Errorf("upserting chunk %s: %w", e.ChunkID, err)
	}

	return nil
}

// Query performs a nearest-neighbor search, returning at most topK matches
// ranked by descending similarity score.
func (m *MilvusIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	vectors := []entity.Vector{entity.FloatVector(vector)}

	outputFields := []string{
		"chunk_id",
		"start_timestamp_ms",
		"end_timestamp_ms",
		"message_count",
		"participants",
		"context_type",
		"communication_pattern",
		"relationship_dynamics",
		"emotional_intensity",
		"conflict_level",
		"intimacy_level",
		"support_level",
		"tags",
	}

	ef := m.cfg.Milvus.Search.Ef
	if topK > ef {
		ef = topK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("creating search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collection,
		nil, // partitions
		"",  // expression filter
		outputFields,
		vectors,
		"embedding",
		milvusMetricFromConfig(m.cfg.Milvus.Index.Metric),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("Milvus search: %w", err)
	}

	if len(results) == 0 {
		return []Match{}, nil
	}

	matches := make([]Match, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		match := Match{
			Score: float64(results[0].Scores[i]),
		}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case "chunk_id":
				match.ChunkID = varcharAt(field, i)
			case "start_timestamp_ms":
				match.Meta.StartTimestampMs = int64At(field, i)
			case "end_timestamp_ms":
				match.Meta.EndTimestampMs = int64At(field, i)
			case "message_count":
				match.Meta.MessageCount = int16At(field, i)
			case "participants":
				match.Meta.Participants = parseStringArray(varcharAt(field, i))
			case "context_type":
				match.Meta.ContextType = varcharAt(field, i)
			case "communication_pattern":
				match.Meta.CommunicationPattern = varcharAt(field, i)
			case "relationship_dynamics":
				match.Meta.RelationshipDynamics = varcharAt(field, i)
			case "emotional_intensity":
				match.Meta.EmotionalIntensity = int16At(field, i)
			case "conflict_level":
				match.Meta.ConflictLevel = int16At(field, i)
			case "intimacy_level":
				match.Meta.IntimacyLevel = int16At(field, i)
			case "support_level":
				match.Meta.SupportLevel = int16At(field, i)
			case "tags":
				if tags := varcharAt(field, i); tags != "" {
					match.Meta.Tags = strings.Split(tags, "|")
				}
			}
		}

		matches = append(matches, match)
	}

	return matches, nil
}

// RowCount returns the current collection size.
func (m *MilvusIndex) RowCount(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return 0, fmt.Errorf("getting collection stats: %w", err)
	}

	var count int64
	if rowCount, ok := stats["row_count"]; ok {
		fmt.Sscanf(rowCount, "%d", &count)
	}
	return count, nil
}

// Flush persists buffered inserts.
func (m *MilvusIndex) Flush(ctx context.Context) error {
	return m.client.Flush(ctx, m.collection, false)
}

// Close closes the Milvus connection
func (m *MilvusIndex) Close() error {
	return m.client.Close()
}

func varcharAt(field entity.Column, i int) string {
	if col, ok := field.(*entity.ColumnVarChar); ok {
		if val, err := col.ValueByIdx(i); err == nil {
			return val
		}
	}
	return ""
}

func int64At(field entity.Column, i int) int64 {
	if col, ok := field.(*entity.ColumnInt64); ok {
		if val, err := col.ValueByIdx(i); err == nil {
			return val
		}
	}
	return 0
}

func int16At(field entity.Column, i int) int {
	if col, ok := field.(*entity.ColumnInt16); ok {
		if val, err := col.ValueByIdx(i); err == nil {
			return int(val)
		}
	}
	return 0
}

// parseStringArray parses a JSON array and keeps only non-empty string
// elements, tolerating mixed-type arrays.
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var str string
		if err := json.Unmarshal(item, &str); err == nil && str != "" {
			out = append(out, str)
		}
	}
	return out
}

func milvusMetricFromConfig(metric string) entity.MetricType {
	switch strings.ToUpper(strings.TrimSpace(metric)) {
	case "L2":
		return entity.L2
	case "IP", "INNER_PRODUCT":
		return entity.IP
	case "COSINE":
		return entity.COSINE
	default:
		return entity.COSINE
	}
}
