package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tandem-insights/tandem/pkg/chunking"
	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

const validAnalysisJSON = `{
	"context_type": "making_plans",
	"emotional_intensity": 4,
	"communication_pattern": "rapid_back_and_forth",
	"temporal_context": "weekday_evening",
	"relationship_dynamics": "collaborative planning with light teasing",
	"tags": ["plans", "dinner"],
	"conflict_level": 0,
	"intimacy_level": 6,
	"support_level": 7
}`

func testChunk() chunking.Chunk {
	start := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	return chunking.Chunk{
		ChunkID:   "chunk_1_2",
		StartTime: start,
		EndTime:   start.Add(10 * time.Minute),
		Text:      "[2024-03-01 19:00] alex: dinner tonight?\n[2024-03-01 19:10] sam: yes!",
	}
}

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := pipeconfig.Default()
	cfg.Classifier.BaseURL = srv.URL
	return NewClient(cfg)
}

func chatBody(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	out := []byte{'"'}
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		case '\t':
			out = append(out, '\\', 't')
		default:
			out = append(out, []byte(string(r))...)
		}
	}
	return string(append(out, '"'))
}

func TestClassify_ParsesValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatBody(validAnalysisJSON))
	}))
	defer srv.Close()

	a, err := clientFor(t, srv).Classify(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a.ContextType != "making_plans" {
		t.Fatalf("unexpected context type %q", a.ContextType)
	}
	if a.EmotionalIntensity != 4 || a.ConflictLevel != 0 || a.IntimacyLevel != 6 || a.SupportLevel != 7 {
		t.Fatalf("unexpected numeric fields: %+v", a)
	}
	if len(a.Tags) != 2 {
		t.Fatalf("unexpected tags %v", a.Tags)
	}
}

func TestClassify_ServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := clientFor(t, srv).Classify(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Classify must not propagate service errors, got %v", err)
	}
	fb := Fallback()
	if a.ContextType != fb.ContextType || a.EmotionalIntensity != fb.EmotionalIntensity ||
		a.CommunicationPattern != fb.CommunicationPattern || a.ConflictLevel != fb.ConflictLevel ||
		len(a.Tags) != 1 || a.Tags[0] != "conversation" {
		t.Fatalf("expected fallback analysis, got %+v", a)
	}
	if !a.Valid() {
		t.Fatalf("fallback analysis must be valid: %+v", a)
	}
}

func TestClassify_MalformedResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatBody("Sure! Here's my analysis: it went well."))
	}))
	defer srv.Close()

	a, err := clientFor(t, srv).Classify(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a.ContextType != "general_conversation" {
		t.Fatalf("expected fallback analysis, got %+v", a)
	}
}

func TestParseAnalysis_OutOfRangeRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate string
	}{
		{"intensity_zero", `"emotional_intensity": 0`},
		{"intensity_high", `"emotional_intensity": 11`},
		{"conflict_high", `"conflict_level": 6`},
		{"conflict_negative", `"conflict_level": -1`},
		{"intimacy_zero", `"intimacy_level": 0`},
		{"support_high", `"support_level": 99`},
	}

	base := map[string]string{
		"emotional_intensity": "4",
		"conflict_level":      "0",
		"intimacy_level":      "6",
		"support_level":       "7",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			for k, v := range base {
				fields[k] = v
			}
			parts := strings.SplitN(tt.mutate, ": ", 2)
			fields[strings.Trim(parts[0], `"`)] = parts[1]

			doc := `{
				"context_type": "making_plans",
				"communication_pattern": "rapid_back_and_forth",
				"temporal_context": "weekday_evening",
				"relationship_dynamics": "collaborative",
				"tags": ["plans"],
				"emotional_intensity": ` + fields["emotional_intensity"] + `,
				"conflict_level": ` + fields["conflict_level"] + `,
				"intimacy_level": ` + fields["intimacy_level"] + `,
				"support_level": ` + fields["support_level"] + `}`
			if _, ok := ParseAnalysis(doc); ok {
				t.Fatalf("expected %s to be rejected", tt.name)
			}
		})
	}
}

func TestParseAnalysis_MissingFieldsRejected(t *testing.T) {
	if _, ok := ParseAnalysis(`{"context_type": "x"}`); ok {
		t.Fatal("expected incomplete analysis to be rejected")
	}
	if _, ok := ParseAnalysis(`[]`); ok {
		t.Fatal("expected non-object response to be rejected")
	}
	if _, ok := ParseAnalysis(``); ok {
		t.Fatal("expected empty response to be rejected")
	}
}

func TestParseAnalysis_CodeFenceTolerated(t *testing.T) {
	a, ok := ParseAnalysis("```json\n" + validAnalysisJSON + "\n```")
	if !ok {
		t.Fatal("expected fenced JSON to parse")
	}
	if a.ContextType != "making_plans" {
		t.Fatalf("unexpected context type %q", a.ContextType)
	}
}
