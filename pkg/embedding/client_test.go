package embedding

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tandem-insights/tandem/pkg/analysis"
	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

func clientFor(srv *httptest.Server, dim int) *Client {
	cfg := pipeconfig.Default()
	cfg.Embedding.BaseURL = srv.URL
	cfg.Embedding.Dimension = dim
	return NewClient(cfg)
}

func TestEmbed_RemotePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": [{"embedding": [0.1, 0.2, 0.3], "index": 0}], "model": "test"}`)
	}))
	defer srv.Close()

	vec, err := clientFor(srv, 3).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbed_DimensionMismatchFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": [{"embedding": [0.1, 0.2], "index": 0}], "model": "test"}`)
	}))
	defer srv.Close()

	vec, err := clientFor(srv, 8).Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed must not propagate service errors, got %v", err)
	}

	want := FallbackVector("hello world", 8)
	if len(vec) != len(want) {
		t.Fatalf("expected fallback dimension %d, got %d", len(want), len(vec))
	}
	for i := range vec {
		if vec[i] != want[i] {
			t.Fatalf("expected fallback vector, differs at %d: %v vs %v", i, vec[i], want[i])
		}
	}
}

func TestEmbed_ServiceDownFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	srv.Close() // Connection refused from here on.

	vec, err := clientFor(srv, 16).Embed(context.Background(), "late night talk")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 16 {
		t.Fatalf("expected 16-dim fallback, got %d", len(vec))
	}
}

func TestFallbackVector_Deterministic(t *testing.T) {
	a := FallbackVector("We should talk about yesterday", 64)
	b := FallbackVector("We should talk about yesterday", 64)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fallback vectors differ at index %d", i)
		}
	}

	c := FallbackVector("We should talk about tomorrow", 64)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical fallback vectors")
	}
}

func TestFallbackVector_Normalized(t *testing.T) {
	vec := FallbackVector("thanks for being there for me", 128)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("expected unit L2 norm, got %f", norm)
	}
}

func TestFallbackVector_EmptyTextIsZero(t *testing.T) {
	vec := FallbackVector("   ", 32)
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector for whitespace input, got %f at %d", v, i)
		}
	}
}

func TestEnrichedText(t *testing.T) {
	a := analysis.ChunkAnalysis{
		ContextType:          "conflict_resolution",
		CommunicationPattern: "long_turns",
		RelationshipDynamics: "repair after disagreement",
		EmotionalIntensity:   7,
		Tags:                 []string{"apology", "conflict"},
	}

	got := EnrichedText("[2024-03-01 21:00] alex: i'm sorry", a)
	if !strings.HasPrefix(got, "Context: conflict_resolution") {
		t.Fatalf("enriched text missing analysis header:\n%s", got)
	}
	if !strings.Contains(got, "apology, conflict") {
		t.Fatalf("enriched text missing tags:\n%s", got)
	}
	if !strings.HasSuffix(got, "alex: i'm sorry") {
		t.Fatalf("enriched text missing chunk body:\n%s", got)
	}
}
