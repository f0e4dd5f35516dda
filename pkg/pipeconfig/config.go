// Package pipeconfig provides unified configuration for the analysis
// pipeline. This is the single source of truth for segmentation thresholds,
// external service endpoints, and throughput tuning shared by the batch
// runner and the insight server.
package pipeconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the unified pipeline configuration
type Config struct {
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Milvus       MilvusConfig       `yaml:"milvus"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Database     DatabaseConfig     `yaml:"database"`
}

type SegmentationConfig struct {
	// BreakGapMinutes is the silence that always ends a conversation chunk.
	BreakGapMinutes int `yaml:"break_gap_minutes"`
	// DayBreakGapMinutes ends a chunk when the gap crosses a calendar day.
	DayBreakGapMinutes int `yaml:"day_break_gap_minutes"`
	// MaxChunkMessages is the soft cap on messages per chunk, keeping
	// classifier input tractable.
	MaxChunkMessages int    `yaml:"max_chunk_messages"`
	TimestampFormat  string `yaml:"timestamp_format"`
}

type ClassifierConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimension      int    `yaml:"dimension"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MilvusConfig struct {
	Address    string            `yaml:"address"`
	Collection string            `yaml:"collection"`
	Index      MilvusIndexConfig `yaml:"index"`
	Search     MilvusSearchConfig `yaml:"search"`
}

type MilvusIndexConfig struct {
	Type           string `yaml:"type"`
	Metric         string `yaml:"metric"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
}

type MilvusSearchConfig struct {
	Ef int `yaml:"ef"`
}

type PipelineConfig struct {
	// BatchSize is the number of chunks processed concurrently.
	BatchSize int `yaml:"batch_size"`
	// BatchDelayMs is the pause between batches, respecting external
	// service rate limits.
	BatchDelayMs int `yaml:"batch_delay_ms"`
}

type DatabaseConfig struct {
	SQLite string `yaml:"sqlite"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Segmentation: SegmentationConfig{
			BreakGapMinutes:    90,
			DayBreakGapMinutes: 20,
			MaxChunkMessages:   12,
			TimestampFormat:    "2006-01-02 15:04",
		},
		Classifier: ClassifierConfig{
			BaseURL:        "http://127.0.0.1:11434/v1",
			Model:          "llama3.1:8b",
			Temperature:    0.2,
			TimeoutSeconds: 120,
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://127.0.0.1:11434/v1",
			Model:          "mxbai-embed-large",
			Dimension:      1024,
			TimeoutSeconds: 120,
		},
		Milvus: MilvusConfig{
			Address:    "localhost:19530",
			Collection: "conversation_chunks",
			Index: MilvusIndexConfig{
				Type:           "HNSW",
				Metric:         "COSINE",
				M:              16,
				EfConstruction: 256,
			},
			Search: MilvusSearchConfig{
				Ef: 128,
			},
		},
		Pipeline: PipelineConfig{
			BatchSize:    3,
			BatchDelayMs: 2000,
		},
		Database: DatabaseConfig{
			SQLite: "tandem.db",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromDir looks for tandem.yaml in the given directory or parent directories
func LoadFromDir(dir string) (*Config, error) {
	current := dir
	for {
		path := filepath.Join(current, "tandem.yaml")
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(current)
		if parent == current {
			break // Reached root
		}
		current = parent
	}

	return nil, fmt.Errorf("tandem.yaml not found in %s or parent directories", dir)
}

// LoadOrDefault tries to load from tandem.yaml, falls back to defaults
func LoadOrDefault(dir string) *Config {
	cfg, err := LoadFromDir(dir)
	if err != nil {
		return Default()
	}
	return cfg
}

// Hash returns a SHA256 hash of the configuration for change detection
func (c *Config) Hash() string {
	data, _ := yaml.Marshal(c)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// EmbeddingIdentity returns a string identifying the embedding configuration.
// Use this to detect mismatches between index and query embeddings.
func (c *Config) EmbeddingIdentity() string {
	return fmt.Sprintf("%s:%s:%d", c.Embedding.BaseURL, c.Embedding.Model, c.Embedding.Dimension)
}
