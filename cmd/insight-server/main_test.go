package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tandem-insights/tandem/pkg/pipeline"
)

func TestSearchHandler_BlankQueryIsBadRequest(t *testing.T) {
	// The query validation path never reaches the embedder or index.
	handler := searchHandler(pipeline.NewSearchService(nil, nil))

	for _, q := range []string{"", "%20%20%20"} {
		req := httptest.NewRequest("GET", "/search?q="+q, nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := parseIntDefault("", 5); got != 5 {
		t.Errorf("empty string: got %d, want 5", got)
	}
	if got := parseIntDefault("12", 5); got != 12 {
		t.Errorf("valid int: got %d, want 12", got)
	}
	if got := parseIntDefault("abc", 5); got != 5 {
		t.Errorf("invalid int: got %d, want 5", got)
	}
}
