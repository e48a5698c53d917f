// Package main implements the ClauseMind API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/clausemind/clausemind/engine/chunk"
	"github.com/clausemind/clausemind/engine/domain"
	"github.com/clausemind/clausemind/engine/embed"
	"github.com/clausemind/clausemind/engine/pipeline"
	"github.com/clausemind/clausemind/engine/reason"
	"github.com/clausemind/clausemind/engine/semantic"
	"github.com/clausemind/clausemind/engine/tasks"
	"github.com/clausemind/clausemind/pkg/gemini"
	"github.com/clausemind/clausemind/pkg/metrics"
	"github.com/clausemind/clausemind/pkg/mid"
	"github.com/clausemind/clausemind/pkg/storage"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	VectorBackend string
	Embeddings    string
	QdrantURL     string
	Collection    string
	SnapshotDir   string
	EmbedURL      string
	EmbedAPIKey   string
	EmbedDim      int
	EmbedRPS      float64
	GeminiAPIKey  string
	GeminiModel   string
	NATSURL       string
	StorageKind   string
	DataDir       string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioSSL      bool
	CORSOrigin    string
	TopK          int
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		VectorBackend: envOr("VECTOR_BACKEND", "memory"),
		Embeddings:    envOr("EMBEDDINGS", "local"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "clausemind"),
		SnapshotDir:   envOr("SNAPSHOT_DIR", ""),
		EmbedURL:      envOr("EMBED_URL", ""),
		EmbedAPIKey:   envOr("EMBED_API_KEY", ""),
		EmbedDim:      envIntOr("EMBED_DIMENSION", embed.DefaultLocalDimension),
		EmbedRPS:      envFloatOr("EMBED_RPS", 0),
		GeminiAPIKey:  envOr("GEMINI_API_KEY", ""),
		GeminiModel:   envOr("GEMINI_MODEL", ""),
		NATSURL:       envOr("NATS_URL", ""),
		StorageKind:   envOr("STORAGE_BACKEND", "fs"),
		DataDir:       envOr("DATA_DIR", "./data"),
		MinioEndpoint: envOr("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccess:   envOr("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecret:   envOr("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:   envOr("MINIO_BUCKET", "clausemind"),
		MinioSSL:      envOr("MINIO_SSL", "") == "true",
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		TopK:          envIntOr("TOP_K", pipeline.DefaultTopK),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Embedding backend ---
	var embedder embed.Provider
	switch cfg.Embeddings {
	case "remote":
		r, err := embed.NewRemote(embed.RemoteConfig{
			URL:       cfg.EmbedURL,
			APIKey:    cfg.EmbedAPIKey,
			Dimension: cfg.EmbedDim,
			RPS:       cfg.EmbedRPS,
		})
		if err != nil {
			return fmt.Errorf("remote embedder: %w", err)
		}
		embedder = r
	case "local":
		embedder = embed.NewLocal(cfg.EmbedDim, embed.DefaultLocalWorkers)
	default:
		return fmt.Errorf("unknown EMBEDDINGS backend %q", cfg.Embeddings)
	}

	// --- Vector backend ---
	var index semantic.Index
	var memIndex *semantic.Memory
	switch cfg.VectorBackend {
	case "qdrant":
		q, err := semantic.NewQdrant(ctx, cfg.QdrantURL, cfg.Collection, embedder.Dimension())
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer q.Close()
		index = q
	case "memory":
		memIndex = semantic.NewMemory(embedder.Dimension())
		if cfg.SnapshotDir != "" {
			if err := memIndex.Load(cfg.SnapshotDir); err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
		}
		index = memIndex
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}

	// --- Reasoner ---
	gen, err := gemini.New(gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	reasoner := reason.New(gen, logger)

	// --- Pipeline ---
	metricsReg := metrics.New()
	pipe := pipeline.New(pipeline.Deps{
		Splitter: chunk.NewSplitter(chunk.DefaultMaxSize, chunk.DefaultOverlap),
		Embedder: embedder,
		Index:    index,
		Reasoner: reasoner,
		Logger:   logger,
		Metrics:  metricsReg,
		TopK:     cfg.TopK,
	})

	// --- Object storage ---
	var store storage.Store
	switch cfg.StorageKind {
	case "minio":
		m, err := storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccess,
			SecretKey: cfg.MinioSecret,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioSSL,
		})
		if err != nil {
			return fmt.Errorf("minio connect: %w", err)
		}
		store = m
	case "fs":
		f, err := storage.NewFS(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("fs storage: %w", err)
		}
		store = f
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageKind)
	}

	// --- Background ingestion ---
	status := tasks.NewStatusStore()
	registry := tasks.NewRegistry()
	worker := tasks.NewWorker(pipe, store, status, registry, logger)

	var queue tasks.Queue
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		nq := tasks.NewNATSQueue(nc, tasks.SubjectIngest)
		sub, err := nq.Subscribe(worker.Handle)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		queue = nq
	} else {
		cq := tasks.NewChanQueue(64)
		go cq.Run(ctx, worker.Handle)
		queue = cq
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", handleHealth(cfg))
	mux.HandleFunc("POST /api/v1/upload_pdf", handleUpload(pipe, store, registry, logger))
	mux.HandleFunc("POST /api/v1/upload_pdf_async", handleUploadAsync(queue, store, status, logger))
	mux.HandleFunc("GET /api/v1/upload_status/{task_id}", handleUploadStatus(status))
	mux.HandleFunc("POST /api/v1/query", handleQuery(pipe, logger))
	mux.HandleFunc("GET /api/v1/documents", handleListDocuments(registry))
	mux.HandleFunc("DELETE /api/v1/documents/{file_id}", handleDeleteDocument(pipe, registry, logger))
	mux.HandleFunc("GET /api/v1/vector_stats", handleVectorStats(pipe, logger))
	mux.Handle("GET /metrics", metricsReg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("clausemind-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port,
			"vector_backend", cfg.VectorBackend, "embeddings", cfg.Embeddings)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}

	if memIndex != nil && cfg.SnapshotDir != "" {
		if err := memIndex.Save(cfg.SnapshotDir); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		logger.Info("snapshot saved", "dir", cfg.SnapshotDir)
	}
	return nil
}

// --- Handlers ---

func handleHealth(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":         "ok",
			"vector_backend": cfg.VectorBackend,
			"embeddings":     cfg.Embeddings,
		})
	}
}

// UploadResponse is the JSON response for POST /api/v1/upload_pdf.
type UploadResponse struct {
	FileID        string `json:"file_id"`
	Filename      string `json:"filename"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Status        string `json:"status"`
}

func handleUpload(pipe *pipeline.Pipeline, store storage.Store, registry *tasks.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, filename, ok := readUpload(w, r)
		if !ok {
			return
		}
		fileID := uuid.NewString()

		if _, err := store.Store(r.Context(), data, filename); err != nil {
			logger.Error("store upload failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to store document")
			return
		}

		chunks, err := pipe.Ingest(r.Context(), data, fileID, filename)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("ingest failed", "filename", filename, "err", err)
			writeError(w, http.StatusInternalServerError, "ingestion failed")
			return
		}

		registry.Put(fileID, filename, int64(len(data)), chunks)
		writeJSON(w, http.StatusOK, UploadResponse{
			FileID:        fileID,
			Filename:      filename,
			ChunksIndexed: chunks,
			Status:        "completed",
		})
	}
}

// AsyncUploadResponse is the JSON response for POST /api/v1/upload_pdf_async.
type AsyncUploadResponse struct {
	TaskID   string       `json:"task_id"`
	FileID   string       `json:"file_id"`
	Filename string       `json:"filename"`
	Status   tasks.Status `json:"status"`
}

func handleUploadAsync(queue tasks.Queue, store storage.Store, status *tasks.StatusStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, filename, ok := readUpload(w, r)
		if !ok {
			return
		}
		fileID := uuid.NewString()
		taskID := uuid.NewString()

		obj, err := store.Store(r.Context(), data, filename)
		if err != nil {
			logger.Error("store upload failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to store document")
			return
		}

		task := status.Create(taskID, fileID, filename)
		job := tasks.Job{TaskID: taskID, FileID: fileID, Filename: filename, Locator: obj.Locator, SizeBytes: int64(len(data))}
		if err := queue.Enqueue(r.Context(), job); err != nil {
			logger.Error("enqueue failed", "task_id", taskID, "err", err)
			status.MarkFailed(taskID, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to queue document")
			return
		}

		writeJSON(w, http.StatusAccepted, AsyncUploadResponse{
			TaskID:   task.ID,
			FileID:   fileID,
			Filename: filename,
			Status:   task.Status,
		})
	}
}

func handleUploadStatus(status *tasks.StatusStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := status.Get(r.PathValue("task_id"))
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// QueryRequest is the JSON body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func handleQuery(pipe *pipeline.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := pipe.Query(r.Context(), req.Query, req.TopK)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrEmptyIndex):
				writeError(w, http.StatusBadRequest, "no documents indexed; upload a policy document first")
			default:
				logger.Error("query failed", "err", err)
				writeError(w, http.StatusInternalServerError, "query failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// DocumentsResponse is the JSON response for GET /api/v1/documents.
type DocumentsResponse struct {
	Documents []tasks.DocumentInfo `json:"documents"`
	Count     int                  `json:"count"`
}

func handleListDocuments(registry *tasks.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		docs := registry.List()
		writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs, Count: len(docs)})
	}
}

func handleDeleteDocument(pipe *pipeline.Pipeline, registry *tasks.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := r.PathValue("file_id")
		removed, err := pipe.DeleteDocument(r.Context(), fileID)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("delete failed", "file_id", fileID, "err", err)
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		registry.Remove(fileID)
		writeJSON(w, http.StatusOK, map[string]any{"file_id": fileID, "deleted": true})
	}
}

func handleVectorStats(pipe *pipeline.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := pipe.Stats(r.Context())
		if err != nil {
			logger.Error("stats failed", "err", err)
			writeError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// readUpload pulls the multipart "file" part out of the request. On
// failure it writes the error response and returns ok=false.
func readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename string, ok bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form field \"file\"")
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return nil, "", false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return nil, "", false
	}
	return data, header.Filename, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
