// insight-server is the HTTP API for conversation intelligence: semantic
// search over analyzed chunks, pipeline run status, and kicking off a new
// analysis pass.
//
// Endpoints:
//   - GET  /search  - Semantic search over chunk embeddings
//   - GET  /status  - Current (or specific) pipeline run status
//   - POST /run     - Start a full analysis pass in the background
//   - GET  /health  - Health check
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
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
	addr    = flag.String("addr", ":8091", "HTTP listen address")
	dbPath  = flag.String("db", "", "Path to SQLite database (defaults to database.sqlite from config)")
	cfgPath = flag.String("config", "", "Path to tandem.yaml (auto-detected if not specified)")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := pipeconfig.LoadFromFlagOrDir(*cfgPath, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Str("collection", cfg.Milvus.Collection).Msg("Loaded configuration")

	sqlitePath := *dbPath
	if sqlitePath == "" {
		sqlitePath = cfg.Database.SQLite
	}
	if sqlitePath == "" {
		log.Fatal().Msg("SQLite database path is empty (set -db or database.sqlite in tandem.yaml)")
	}

	store, err := intel.New(sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", sqlitePath).Msg("Failed to open SQLite database")
	}
	defer store.Close()
	log.Info().Str("path", sqlitePath).Msg("Connected to SQLite")

	ctx := context.Background()
	index, err := intel.NewMilvusIndex(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Milvus")
	}
	defer index.Close()
	log.Info().Str("address", cfg.Milvus.Address).Msg("Connected to Milvus")

	embedder := embedding.NewClient(cfg)
	search := pipeline.NewSearchService(embedder, index)
	runner := pipeline.NewRunner(cfg, store, analysis.NewClient(cfg), embedder, intel.NewWriter(store, index), store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", searchHandler(search))
	mux.HandleFunc("GET /status", statusHandler(store))
	mux.HandleFunc("POST /run", runHandler(runner))
	mux.HandleFunc("GET /health", healthHandler(store, embedder, index))

	server := &http.Server{
		Addr:         *addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", *addr).Msg("Starting insight server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server stopped")
}

// searchHandler handles GET /search requests
func searchHandler(svc *pipeline.SearchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		q := query.Get("q")
		topK := parseIntDefault(query.Get("limit"), 5)

		matches, err := svc.Search(r.Context(), q, topK)
		if err != nil {
			if errors.Is(err, pipeline.ErrEmptyQuery) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Str("query", q).Msg("Search failed")
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   q,
			"results": matches,
		})
	}
}

// statusHandler handles GET /status requests. With ?run_id it returns that
// run; otherwise the most recent one.
func statusHandler(store *intel.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.URL.Query().Get("run_id")

		var (
			rs  *intel.RunStatus
			err error
		)
		if runID != "" {
			rs, err = store.GetRun(r.Context(), runID)
		} else {
			rs, err = store.CurrentRun(r.Context())
		}
		if err != nil {
			log.Error().Err(err).Msg("Status lookup failed")
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
		if rs == nil {
			writeError(w, http.StatusNotFound, "unknown run id")
			return
		}

		writeJSON(w, http.StatusOK, rs)
	}
}

// runHandler handles POST /run. Only one pass may run at a time; a second
// request while one is active gets 409.
func runHandler(runner *pipeline.Runner) http.HandlerFunc {
	var running atomic.Bool
	return func(w http.ResponseWriter, r *http.Request) {
		if !running.CompareAndSwap(false, true) {
			writeError(w, http.StatusConflict, "an analysis pass is already running")
			return
		}

		go func() {
			defer running.Store(false)
			summary, err := runner.Run(context.Background())
			if err != nil {
				log.Error().Err(err).Str("run_id", summary.RunID).Msg("Background analysis pass failed")
				return
			}
			log.Info().
				Str("run_id", summary.RunID).
				Int("processed", summary.ProcessedChunks).
				Int("total", summary.TotalChunks).
				Msg("Background analysis pass finished")
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// healthHandler handles GET /health requests
func healthHandler(store *intel.Store, embedder *embedding.Client, index *intel.MilvusIndex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"status": "ok"}
		degraded := false

		if _, err := store.ChunkCount(r.Context()); err != nil {
			health["sqlite"] = err.Error()
			degraded = true
		}
		if _, err := index.RowCount(r.Context()); err != nil {
			health["milvus"] = err.Error()
			degraded = true
		}
		if !embedder.IsAvailable(r.Context()) {
			health["embedding"] = "unavailable, fallback vectors in use"
			degraded = true
		}

		if degraded {
			health["status"] = "degraded"
		}
		writeJSON(w, http.StatusOK, health)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}
