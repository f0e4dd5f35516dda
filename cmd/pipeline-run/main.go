// pipeline-run executes one full contextual-analysis pass over the message
// history: segment into chunks, classify each chunk, embed the enriched
// text, and persist rows plus vectors.
//
// Usage:
//
//	pipeline-run --db tandem.db
//	pipeline-run --db tandem.db --drop  # Drop and recreate the vector collection
//	pipeline-run --db tandem.db --no-vector
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tandem-insights/tandem/pkg/analysis"
	"github.com/tandem-insights/tandem/pkg/embedding"
	"github.com/tandem-insights/tandem/pkg/intel"
	"github.com/tandem-insights/tandem/pkg/pipeconfig"
	"github.com/tandem-insights/tandem/pkg/pipeline"
)

var (
	dbPath    = flag.String("db", "", "Path to SQLite database (defaults to database.sqlite from config)")
	cfgPath   = flag.String("config", "", "Path to tandem.yaml (auto-detected if not specified)")
	dropFirst = flag.Bool("drop", false, "Drop the existing vector collection before indexing")
	noVector  = flag.Bool("no-vector", false, "Skip the vector index entirely (SQLite rows only)")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := pipeconfig.LoadFromFlagOrDir(*cfgPath, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	sqlitePath := *dbPath
	if sqlitePath == "" {
		sqlitePath = cfg.Database.SQLite
	}
	if sqlitePath == "" {
		log.Fatal().Msg("SQLite database path is empty (set -db or database.sqlite in tandem.yaml)")
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  SQLite: %s\n", sqlitePath)
	fmt.Printf("  Classifier: %s (%s)\n", cfg.Classifier.BaseURL, cfg.Classifier.Model)
	fmt.Printf("  Embedding: %s (%d dim)\n", cfg.Embedding.Model, cfg.Embedding.Dimension)
	if !*noVector {
		fmt.Printf("  Milvus: %s (collection %s)\n", cfg.Milvus.Address, cfg.Milvus.Collection)
	}
	fmt.Printf("  Batch size: %d (delay %dms)\n", cfg.Pipeline.BatchSize, cfg.Pipeline.BatchDelayMs)
	fmt.Println()

	ctx := context.Background()

	store, err := intel.New(sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", sqlitePath).Msg("Failed to open database")
	}
	defer store.Close()

	var index intel.VectorIndex
	if *noVector {
		fmt.Println("Vector index disabled (-no-vector)")
	} else {
		milvus, err := intel.NewMilvusIndex(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Milvus")
		}
		defer milvus.Close()
		fmt.Printf("Connected to Milvus at %s\n", cfg.Milvus.Address)

		if *dropFirst {
			fmt.Printf("Dropping collection %s...\n", cfg.Milvus.Collection)
			if err := milvus.Drop(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to drop collection")
			}
		}
		index = milvus
	}

	classifier := analysis.NewClient(cfg)
	embedder := embedding.NewClient(cfg)
	if !embedder.IsAvailable(ctx) {
		log.Warn().Str("base_url", cfg.Embedding.BaseURL).
			Msg("Embedding service unavailable, deterministic fallback vectors will be used")
	}

	runner := pipeline.NewRunner(cfg, store, classifier, embedder, intel.NewWriter(store, index), store)

	start := time.Now()
	summary, err := runner.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("run_id", summary.RunID).Msg("Analysis pass failed")
	}

	if m, ok := index.(*intel.MilvusIndex); ok {
		if err := m.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush collection")
		}
	}

	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("ANALYSIS PASS COMPLETE")
	fmt.Println("============================================================")
	fmt.Printf("Run: %s\n", summary.RunID)
	fmt.Printf("Chunks processed: %d/%d\n", summary.ProcessedChunks, summary.TotalChunks)
	if m, ok := index.(*intel.MilvusIndex); ok {
		if n, err := m.RowCount(ctx); err == nil {
			fmt.Printf("Collection size: %d\n", n)
		}
	}
	fmt.Printf("Duration: %s\n", time.Since(start).Round(time.Second))
}
