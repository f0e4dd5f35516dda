// Package embedding generates fixed-length vectors for chunk text via an
// OpenAI-compatible embeddings API, with a deterministic hash-based
// fallback when the service is unavailable.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

// Client generates embeddings via an OpenAI-compatible API.
type Client struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewClient creates a new embedding client from configuration.
func NewClient(cfg *pipeconfig.Config) *Client {
	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:   cfg.Embedding.BaseURL,
		model:     cfg.Embedding.Model,
		dimension: cfg.Embedding.Dimension,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// embeddingRequest is the request body for the embeddings API
type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// embeddingResponse is the response from the embeddings API
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed returns a vector for the given text. It never returns an error:
// when the service is unreachable, errors, or returns the wrong dimension,
// the deterministic fallback vector is substituted so idempotent re-runs
// and search keep working through an outage.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedRemote(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("Embedding request failed, using fallback vector")
		return FallbackVector(text, c.dimension), nil
	}
	return vec, nil
}

// embedRemote performs the actual API call.
func (c *Client) embedRemote(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Input: []string{text},
		Model: c.model,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		errBody.ReadFrom(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, errBody.String())
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	vec := embResp.Data[0].Embedding
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", c.dimension, len(vec))
	}

	return vec, nil
}

// Dimension returns the embedding dimension
func (c *Client) Dimension() int {
	return c.dimension
}

// IsAvailable checks if the embedding service is available
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
