package analysis

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseAnalysis extracts a ChunkAnalysis from the classifier's response
// content. Models occasionally wrap the object in code fences or prose, so
// extraction is tolerant; validation is not. Any missing or out-of-range
// field rejects the whole response.
func ParseAnalysis(content string) (ChunkAnalysis, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	if !gjson.Valid(content) {
		return ChunkAnalysis{}, false
	}
	root := gjson.Parse(content)
	if !root.IsObject() {
		return ChunkAnalysis{}, false
	}

	a := ChunkAnalysis{
		ContextType:          strings.TrimSpace(root.Get("context_type").String()),
		EmotionalIntensity:   int(root.Get("emotional_intensity").Int()),
		CommunicationPattern: strings.TrimSpace(root.Get("communication_pattern").String()),
		TemporalContext:      strings.TrimSpace(root.Get("temporal_context").String()),
		RelationshipDynamics: strings.TrimSpace(root.Get("relationship_dynamics").String()),
		ConflictLevel:        int(root.Get("conflict_level").Int()),
		IntimacyLevel:        int(root.Get("intimacy_level").Int()),
		SupportLevel:         int(root.Get("support_level").Int()),
	}

	for _, tag := range root.Get("tags").Array() {
		if s := strings.TrimSpace(tag.String()); s != "" {
			a.Tags = append(a.Tags, s)
		}
	}

	// conflict_level = 0 is a legal value; distinguish it from absence.
	if !root.Get("conflict_level").Exists() {
		return ChunkAnalysis{}, false
	}

	if !a.Valid() {
		return ChunkAnalysis{}, false
	}

	return a, true
}
