package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ghgledger/ghgledger/internal/cache"
	"github.com/ghgledger/ghgledger/internal/ingest"
	"github.com/ghgledger/ghgledger/internal/observability"
	"github.com/ghgledger/ghgledger/internal/query"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// DefaultMaxUploadBytes caps CSV upload bodies.
const DefaultMaxUploadBytes = 32 << 20

// Queries is the read surface served over HTTP. query.Engine implements it.
type Queries interface {
	Trend(ctx context.Context, alpha3 string) (*query.TrendResult, error)
	SectorBreakdown(ctx context.Context, f query.SectorFilter) (*query.SectorBreakdown, error)
	FilterByGas(ctx context.Context, f query.GasFilter) (*query.GasPage, error)
	Summary(ctx context.Context, req query.SummaryRequest) (*query.SummaryPage, error)
	List(ctx context.Context, f query.ListFilter) (*query.ListPage, error)
	Get(ctx context.Context, id string) (*types.EmissionRecord, error)
}

// Writes is the record mutation surface. ingest.Writer implements it.
type Writes interface {
	Create(ctx context.Context, in types.NewEmission) (*types.EmissionRecord, error)
	CreateMany(ctx context.Context, items []types.NewEmission) (*ingest.CommitResult, error)
	Update(ctx context.Context, id string, patch types.EmissionPatch) (*types.EmissionRecord, error)
	SoftDelete(ctx context.Context, id string) (*types.EmissionRecord, error)
	Restore(ctx context.Context, id string) (*types.EmissionRecord, error)
}

// Ingestor runs a CSV ingestion synchronously. ingest.Pipeline implements it.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte) (*ingest.Report, error)
}

// TaskQueue runs CSV ingestions in the background. ingest.Tasks implements it.
type TaskQueue interface {
	Submit(ctx context.Context, source string, data []byte) *ingest.Task
	Get(id string) (*ingest.Task, error)
}

// Config wires the handler's collaborators. Archiver, Stats, CacheStats and
// Health are optional.
type Config struct {
	Queries  Queries
	Writes   Writes
	Ingestor Ingestor
	Tasks    TaskQueue
	Archiver *ingest.Archiver

	Stats      *observability.OperationStats
	CacheStats func() cache.Stats
	Health     func(ctx context.Context) error

	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	cfg    Config
	logger *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, logger: cfg.Logger}
}

// Routes returns the routed handler wrapped in the default middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/emissions", h.listEmissions)
	mux.HandleFunc("POST /v1/emissions", h.createEmission)
	mux.HandleFunc("POST /v1/emissions/bulk", h.createEmissions)
	mux.HandleFunc("POST /v1/emissions/upload", h.upload)
	mux.HandleFunc("GET /v1/emissions/{id}", h.getEmission)
	mux.HandleFunc("PATCH /v1/emissions/{id}", h.updateEmission)
	mux.HandleFunc("DELETE /v1/emissions/{id}", h.deleteEmission)
	mux.HandleFunc("POST /v1/emissions/{id}/restore", h.restoreEmission)

	mux.HandleFunc("GET /v1/emissions/trend", h.trend)
	mux.HandleFunc("GET /v1/emissions/sector", h.sector)
	mux.HandleFunc("GET /v1/emissions/filter", h.filter)
	mux.HandleFunc("GET /v1/emissions/summary", h.summary)

	mux.HandleFunc("GET /v1/ingest/tasks/{id}", h.task)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /health", h.health)

	return DefaultMiddleware(h.logger)(mux)
}

// fail writes err and logs internal failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, r, err)
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	TS         time.Time               `json:"ts"`
	Operations []observability.OpStats `json:"operations"`
	Cache      *cache.Stats            `json:"cache,omitempty"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{TS: time.Now().UTC(), Operations: h.cfg.Stats.Snapshot()}
	if h.cfg.CacheStats != nil {
		st := h.cfg.CacheStats()
		resp.Cache = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Health != nil {
		if err := h.cfg.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
