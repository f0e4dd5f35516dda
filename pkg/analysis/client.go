package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/chunking"
	"github.com/tandem-insights/tandem/pkg/pipeconfig"
)

// Client classifies chunks via an OpenAI-compatible chat-completions API.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// chatRequest is an OpenAI-compatible chat completion request.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewClient creates a classifier client from configuration.
func NewClient(cfg *pipeconfig.Config) *Client {
	timeout := time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:     cfg.Classifier.BaseURL,
		model:       cfg.Classifier.Model,
		temperature: cfg.Classifier.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Classify returns the structured analysis for a chunk. It never returns an
// error: any failure path substitutes the fallback analysis so the pipeline
// keeps moving through a classifier outage.
func (c *Client) Classify(ctx context.Context, chunk chunking.Chunk) (ChunkAnalysis, error) {
	content, err := c.requestCompletion(ctx, chunk)
	if err != nil {
		log.Warn().Err(err).Str("chunk_id", chunk.ChunkID).Msg("Classification request failed, using fallback analysis")
		return Fallback(), nil
	}

	a, ok := ParseAnalysis(content)
	if !ok {
		log.Warn().Str("chunk_id", chunk.ChunkID).Msg("Classifier response violated schema, using fallback analysis")
		return Fallback(), nil
	}

	return a, nil
}

// requestCompletion sends the chat request and returns the raw message content.
func (c *Client) requestCompletion(ctx context.Context, chunk chunking.Chunk) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPromptV1},
			{Role: "user", Content: userPrompt(chunk)},
		},
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier API returned status %d: %s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response JSON: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}

	return chatResp.Choices[0].Message.Content, nil
}
