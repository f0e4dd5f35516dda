package analysis

// Sentiment labels for the message-level denormalized annotation.
const (
	SentimentNegative = "negative"
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// Sentiment maps a chunk analysis to the message-level sentiment label.
// Conflict dominates; high intensity only reads as positive when paired
// with high intimacy.
func Sentiment(a ChunkAnalysis) string {
	switch {
	case a.ConflictLevel > 3:
		return SentimentNegative
	case a.EmotionalIntensity > 7 && a.IntimacyLevel > 6:
		return SentimentPositive
	case a.EmotionalIntensity < 4:
		return SentimentNeutral
	default:
		return SentimentMixed
	}
}
