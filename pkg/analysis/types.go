// Package analysis classifies conversation chunks into structured
// relationship metadata via an OpenAI-compatible chat-completions service.
//
// Classification never fails from the caller's perspective: any service
// error, malformed response, or out-of-range field degrades to a
// deterministic fallback analysis, so a classifier outage costs quality,
// not availability.
package analysis

// ChunkAnalysis is the structured metadata derived for one conversation chunk.
type ChunkAnalysis struct {
	ContextType          string   `json:"context_type"`
	EmotionalIntensity   int      `json:"emotional_intensity"` // 1-10
	CommunicationPattern string   `json:"communication_pattern"`
	TemporalContext      string   `json:"temporal_context"`
	RelationshipDynamics string   `json:"relationship_dynamics"`
	Tags                 []string `json:"tags"`
	ConflictLevel        int      `json:"conflict_level"` // 0-5
	IntimacyLevel        int      `json:"intimacy_level"` // 1-10
	SupportLevel         int      `json:"support_level"`  // 1-10
}

// Fallback returns the analysis substituted whenever classification fails
// or the response violates the schema. All fields sit at neutral midpoints.
func Fallback() ChunkAnalysis {
	return ChunkAnalysis{
		ContextType:          "general_conversation",
		EmotionalIntensity:   5,
		CommunicationPattern: "standard_exchange",
		TemporalContext:      "unknown_time",
		RelationshipDynamics: "neutral_interaction",
		Tags:                 []string{"conversation"},
		ConflictLevel:        0,
		IntimacyLevel:        5,
		SupportLevel:         5,
	}
}

// Valid reports whether every field is present and within its documented
// range. An invalid analysis must be replaced wholesale by Fallback, never
// persisted with silently missing values.
func (a ChunkAnalysis) Valid() bool {
	if a.ContextType == "" || a.CommunicationPattern == "" ||
		a.TemporalContext == "" || a.RelationshipDynamics == "" {
		return false
	}
	if len(a.Tags) == 0 {
		return false
	}
	if a.EmotionalIntensity < 1 || a.EmotionalIntensity > 10 {
		return false
	}
	if a.ConflictLevel < 0 || a.ConflictLevel > 5 {
		return false
	}
	if a.IntimacyLevel < 1 || a.IntimacyLevel > 10 {
		return false
	}
	if a.SupportLevel < 1 || a.SupportLevel > 10 {
		return false
	}
	return true
}
