package embedding

import (
	"fmt"
	"strings"

	"github.com/tandem-insights/tandem/pkg/analysis"
)

// EnrichedText prepends a textual rendering of the chunk analysis to the
// raw chunk text, so the resulting vector captures both the literal
// content and the derived relationship semantics.
func EnrichedText(chunkText string, a analysis.ChunkAnalysis) string {
	header := fmt.Sprintf(
		"Context: %s | Pattern: %s | Dynamics: %s | Intensity: %d/10 | Tags: %s",
		a.ContextType,
		a.CommunicationPattern,
		a.RelationshipDynamics,
		a.EmotionalIntensity,
		strings.Join(a.Tags, ", "),
	)
	return header + "\n\n" + chunkText
}
