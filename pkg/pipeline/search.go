package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/intel"
)

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 50
)

// ErrEmptyQuery rejects a blank or whitespace-only search query. Callers
// can match it to report a client error rather than a server failure.
var ErrEmptyQuery = errors.New("empty search query")

// SearchService answers semantic queries over analyzed chunks. The query
// text goes through the same embedder as the indexed chunks, so fallback
// vectors remain comparable with each other.
type SearchService struct {
	embedder Embedder
	index    intel.VectorIndex
}

// NewSearchService builds a search service over an existing index.
func NewSearchService(embedder Embedder, index intel.VectorIndex) *SearchService {
	return &SearchService{embedder: embedder, index: index}
}

// Search embeds the query and returns the topK nearest chunks, best first.
// topK is clamped to [1, 50]; zero or negative means the default of 5.
func (s *SearchService) Search(ctx context.Context, query string, topK int) ([]intel.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	log.Debug().Int("top_k", topK).Int("matches", len(matches)).Msg("Search complete")
	return matches, nil
}
