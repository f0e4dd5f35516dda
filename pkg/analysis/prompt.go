package analysis

import (
	"fmt"

	"github.com/tandem-insights/tandem/pkg/chunking"
)

// System prompt for chunk classification (v1)
const systemPromptV1 = `You are a relationship conversation analyst. Analyze the provided text-message exchange between two people in a close relationship and return structured metadata.

RULES:
1. Base every field ONLY on what the messages actually say - never invent events
2. All numeric fields MUST fall inside their documented ranges
3. Return ONLY the JSON object, no additional text

JSON SCHEMA:
{
  "context_type": "short snake_case category, e.g. conflict_resolution, daily_checkin, making_plans",
  "emotional_intensity": 1-10,
  "communication_pattern": "short descriptive label, e.g. rapid_back_and_forth",
  "temporal_context": "short descriptive label, e.g. late_night, weekday_morning",
  "relationship_dynamics": "one-sentence description of the dynamic in this exchange",
  "tags": ["2-5 short lowercase tags"],
  "conflict_level": 0-5,
  "intimacy_level": 1-10,
  "support_level": 1-10
}`

// userPrompt renders the chunk into the classification request body.
func userPrompt(chunk chunking.Chunk) string {
	return fmt.Sprintf(
		"Analyze this conversation from %s to %s:\n\n---\n%s\n---\n\nReturn JSON matching the schema.",
		chunk.StartTime.Format("2006-01-02 15:04"),
		chunk.EndTime.Format("2006-01-02 15:04"),
		chunk.Text,
	)
}
