package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/fabric-catalog/internal/catalog"
	"github.com/maltedev/fabric-catalog/internal/database"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/scheduler"
	"github.com/maltedev/fabric-catalog/internal/scraper"
)

const maxBatchURLs = 50

type FabricStore interface {
	Get(ctx context.Context, id int64) (*models.Fabric, error)
	List(ctx context.Context, filter models.FabricFilter) ([]*models.Fabric, error)
	Stats(ctx context.Context) (*models.FabricStats, error)
	UpdateRating(ctx context.Context, id int64, rating models.Rating) (*models.Fabric, error)
	Delete(ctx context.Context, id int64) (*models.Fabric, error)
}

type Importer interface {
	Import(ctx context.Context, rawURL string) (*catalog.Outcome, error)
}

type SyncTrigger interface {
	Trigger(ctx context.Context) error
}

type ImageRemover interface {
	Remove(webPath string) error
}

// OutboxStats reports relay backlog for the health check.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	store    FabricStore
	importer Importer
	sync     SyncTrigger
	images   ImageRemover
	outbox   OutboxStats
	baseCtx  context.Context
	logger   *slog.Logger
}

type Deps struct {
	Store    FabricStore
	Importer Importer
	Sync     SyncTrigger
	Images   ImageRemover
	Outbox   OutboxStats
	Logger   *slog.Logger
	// Context bounds work that outlives a request, such as a triggered sync.
	Context context.Context
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	return &Handlers{
		store:    deps.Store,
		importer: deps.Importer,
		sync:     deps.Sync,
		images:   deps.Images,
		outbox:   deps.Outbox,
		baseCtx:  deps.Context,
		logger:   deps.Logger.With("component", "api"),
	}
}

// Health reports service status and the outbox backlog
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, _ := h.outbox.PendingCount(r.Context())
		deadLetterCount, _ := h.outbox.DeadLetterCount(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "high number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// ListFabrics handles GET /api/fabrics?skip&limit&rating&origin
func (h *Handlers) ListFabrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.FabricFilter{
		Rating: models.Rating(q.Get("rating")),
		Origin: q.Get("origin"),
	}

	var err error
	if filter.Skip, err = queryInt(q.Get("skip"), 0); err != nil || filter.Skip < 0 {
		h.respondError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	if filter.Limit, err = queryInt(q.Get("limit"), database.DefaultLimit); err != nil ||
		filter.Limit < 1 || filter.Limit > database.MaxLimit {
		h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	if filter.Rating != "" && !filter.Rating.IsValid() {
		h.respondError(w, http.StatusBadRequest, "invalid rating")
		return
	}

	fabrics, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list fabrics", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list fabrics")
		return
	}

	h.respondJSON(w, http.StatusOK, fabrics)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) GetFabric(w http.ResponseWriter, r *http.Request) {
	id, ok := h.fabricID(w, r)
	if !ok {
		return
	}

	fabric, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "failed to get fabric")
		return
	}

	h.respondJSON(w, http.StatusOK, fabric)
}

type ScrapeRequest struct {
	URL string `json:"url"`
}

// ScrapeFabric handles POST /api/fabrics/scrape
func (h *Handlers) ScrapeFabric(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	outcome, err := h.importer.Import(r.Context(), req.URL)
	if err != nil {
		status, message := scrapeErrorStatus(err)
		h.logger.Error("failed to scrape fabric", "url", req.URL, "error", err)
		h.respondError(w, status, message)
		return
	}

	h.respondJSON(w, http.StatusOK, outcome.First())
}

type BatchRequest struct {
	URLs []string `json:"urls"`
}

type BatchError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type BatchResponse struct {
	Results []*models.Fabric `json:"results"`
	Errors  []BatchError     `json:"errors"`
	Total   int              `json:"total"`
}

// ScrapeBatch handles POST /api/fabrics/scrape-batch. URLs are processed in
// order; a failing URL is reported and does not stop the batch.
func (h *Handlers) ScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		h.respondError(w, http.StatusBadRequest, "too many urls")
		return
	}

	resp := BatchResponse{Results: []*models.Fabric{}, Errors: []BatchError{}}
	for _, raw := range req.URLs {
		raw = strings.TrimSpace(raw)
		outcome, err := h.importer.Import(r.Context(), raw)
		if err != nil {
			_, message := scrapeErrorStatus(err)
			resp.Errors = append(resp.Errors, BatchError{URL: raw, Error: message})
			continue
		}
		resp.Results = append(resp.Results, outcome.Fabrics...)
	}
	resp.Total = len(resp.Results)

	h.respondJSON(w, http.StatusOK, resp)
}

// TriggerSync handles POST /api/sync
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		h.respondError(w, http.StatusServiceUnavailable, "sync is disabled")
		return
	}

	err := h.sync.Trigger(h.baseCtx)
	if errors.Is(err, scheduler.ErrRunning) {
		h.respondError(w, http.StatusConflict, "sync already running")
		return
	}
	if err != nil {
		h.logger.Error("failed to start sync", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type RatingRequest struct {
	Rating models.Rating `json:"rating"`
}

// UpdateRating handles PATCH /api/fabrics/{id}/rating
func (h *Handlers) UpdateRating(w http.ResponseWriter, r *http.Request) {
	id, ok := h.fabricID(w, r)
	if !ok {
		return
	}

	var req RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Rating.IsValid() {
		h.respondError(w, http.StatusBadRequest, "rating must be one of yes, no, maybe, unrated")
		return
	}

	fabric, err := h.store.UpdateRating(r.Context(), id, req.Rating)
	if err != nil {
		h.storeError(w, err, "failed to update rating")
		return
	}

	h.respondJSON(w, http.StatusOK, fabric)
}

// DeleteFabric handles DELETE /api/fabrics/{id} and removes the cached image
func (h *Handlers) DeleteFabric(w http.ResponseWriter, r *http.Request) {
	id, ok := h.fabricID(w, r)
	if !ok {
		return
	}

	fabric, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "failed to delete fabric")
		return
	}

	if fabric.ImagePath != nil && h.images != nil {
		if err := h.images.Remove(*fabric.ImagePath); err != nil {
			h.logger.Warn("failed to remove image", "path", *fabric.ImagePath, "error", err)
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": fabric.ID})
}

func scrapeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scraper.ErrNoScraper):
		return http.StatusBadRequest, "no scraper available for this url"
	case errors.Is(err, scraper.ErrInvalidURL):
		return http.StatusBadRequest, "invalid url"
	case errors.Is(err, catalog.ErrNoItems):
		return http.StatusBadRequest, "no fabrics found on listing page"
	case errors.Is(err, catalog.ErrExtractionFailed):
		return http.StatusInternalServerError, "failed to extract fabric data"
	default:
		return http.StatusInternalServerError, "failed to scrape fabric"
	}
}

func (h *Handlers) fabricID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid fabric id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) storeError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "fabric not found")
		return
	}
	if errors.Is(err, database.ErrInvalidRating) {
		h.respondError(w, http.StatusBadRequest, "invalid rating")
		return
	}
	h.logger.Error(message, "error", err)
	h.respondError(w, http.StatusInternalServerError, message)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
