package chunking

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

func msgAt(id int64, sender string, ts time.Time) Message {
	return Message{ID: id, Timestamp: ts, Sender: sender, Content: fmt.Sprintf("message %d", id)}
}

func TestSegment_EmptyInput(t *testing.T) {
	if got := Segment(nil, pipeconfig.Default()); len(got) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(got))
	}
}

func TestSegment_Deterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var messages []Message
	for i := 0; i < 30; i++ {
		gap := time.Duration(i%7) * 25 * time.Minute
		base = base.Add(gap)
		messages = append(messages, msgAt(int64(i+1), "alex", base))
	}

	first := Segment(messages, pipeconfig.Default())
	second := Segment(messages, pipeconfig.Default())

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ChunkID != second[i].ChunkID {
			t.Fatalf("chunk %d id differs: %q vs %q", i, first[i].ChunkID, second[i].ChunkID)
		}
		if first[i].Text != second[i].Text {
			t.Fatalf("chunk %d text differs", i)
		}
	}
}

func TestSegment_GapRule(t *testing.T) {
	cfg := pipeconfig.Default()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// 91 minutes apart on the same day: two chunks.
	chunks := Segment([]Message{
		msgAt(1, "alex", start),
		msgAt(2, "sam", start.Add(91*time.Minute)),
	}, cfg)
	if len(chunks) != 2 {
		t.Fatalf("91 minute gap: expected 2 chunks, got %d", len(chunks))
	}

	// 10 minutes apart on the same day: one chunk.
	chunks = Segment([]Message{
		msgAt(1, "alex", start),
		msgAt(2, "sam", start.Add(10*time.Minute)),
	}, cfg)
	if len(chunks) != 1 {
		t.Fatalf("10 minute gap: expected 1 chunk, got %d", len(chunks))
	}
}

func TestSegment_DayBoundaryRule(t *testing.T) {
	cfg := pipeconfig.Default()
	lateNight := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)

	// Different days, 25 minutes apart: split.
	chunks := Segment([]Message{
		msgAt(1, "alex", lateNight),
		msgAt(2, "sam", lateNight.Add(25*time.Minute)),
	}, cfg)
	if len(chunks) != 2 {
		t.Fatalf("25 minute cross-midnight gap: expected 2 chunks, got %d", len(chunks))
	}

	// Different days but only 5 minutes apart: same chunk.
	chunks = Segment([]Message{
		msgAt(1, "alex", lateNight),
		msgAt(2, "sam", lateNight.Add(5*time.Minute)),
	}, cfg)
	if len(chunks) != 1 {
		t.Fatalf("5 minute cross-midnight gap: expected 1 chunk, got %d", len(chunks))
	}
}

func TestSegment_SizeCap(t *testing.T) {
	cfg := pipeconfig.Default()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var messages []Message
	for i := 0; i < 13; i++ {
		messages = append(messages, msgAt(int64(i+1), "alex", start.Add(time.Duration(i)*time.Minute)))
	}

	chunks := Segment(messages, cfg)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := len(chunks[0].Messages); got != cfg.Segmentation.MaxChunkMessages {
		t.Fatalf("first chunk should hold %d messages, got %d", cfg.Segmentation.MaxChunkMessages, got)
	}
	if got := len(chunks[1].Messages); got != 1 {
		t.Fatalf("second chunk should hold 1 message, got %d", got)
	}
}

func TestSegment_SingleMessageChunk(t *testing.T) {
	cfg := pipeconfig.Default()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	chunks := Segment([]Message{
		msgAt(1, "alex", start),
		msgAt(2, "sam", start.Add(3*time.Hour)),
		msgAt(3, "alex", start.Add(6*time.Hour)),
	}, cfg)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 isolated chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Messages) != 1 {
			t.Fatalf("chunk %d: expected a single message, got %d", i, len(c.Messages))
		}
	}
}

func TestSegment_ChunkShape(t *testing.T) {
	cfg := pipeconfig.Default()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Deliberately out of order: the segmenter sorts before chunking.
	chunks := Segment([]Message{
		{ID: 8, Timestamp: start.Add(5 * time.Minute), Sender: "sam", Content: "sounds good"},
		{ID: 7, Timestamp: start, Sender: "alex", Content: "dinner tonight?"},
	}, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]

	if c.ChunkID != "chunk_7_8" {
		t.Fatalf("unexpected chunk id %q", c.ChunkID)
	}
	if !c.StartTime.Equal(start) || !c.EndTime.Equal(start.Add(5*time.Minute)) {
		t.Fatalf("unexpected time span %v - %v", c.StartTime, c.EndTime)
	}
	if len(c.Participants) != 2 || c.Participants[0] != "alex" || c.Participants[1] != "sam" {
		t.Fatalf("unexpected participants %v", c.Participants)
	}

	wantFirst := "[" + start.Format(cfg.Segmentation.TimestampFormat) + "] alex: dinner tonight?"
	lines := strings.Split(c.Text, "\n")
	if len(lines) != 2 || lines[0] != wantFirst {
		t.Fatalf("unexpected chunk text:\n%s", c.Text)
	}
}
