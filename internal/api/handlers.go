// Package api exposes the admission gate and delivery caches over a small
// JSON HTTP surface: the inbound dispatcher asks for admission decisions, the
// delivery workflow looks up and writes back cached handles, and an admin
// path invalidates stale entries.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"mangabot/internal/cache"
	"mangabot/internal/gate"
	"mangabot/internal/models"
	"mangabot/internal/storage"
	"mangabot/internal/version"
)

// Handlers contains the HTTP handlers for the mangabot API.
type Handlers struct {
	gate      gate.Admitter
	artifacts *cache.Artifacts
	batches   *cache.Batches
	store     storage.Store
	version   version.Info
}

// NewHandlers creates a new handlers instance.
func NewHandlers(admitter gate.Admitter, artifacts *cache.Artifacts, batches *cache.Batches, store storage.Store, ver version.Info) *Handlers {
	return &Handlers{
		gate:      admitter,
		artifacts: artifacts,
		batches:   batches,
		store:     store,
		version:   ver,
	}
}

// AdmitRequest is the body of an admission check.
type AdmitRequest struct {
	ActorID int64  `json:"actor_id"`
	Kind    string `json:"kind"`
}

// Admit handles admission checks from the inbound dispatcher.
// POST /api/v1/admit
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	var req AdmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if req.ActorID == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "actor_id is required")
		return
	}

	kind, ok := gate.ParseKind(req.Kind)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest,
			fmt.Sprintf("unknown event kind: %q", req.Kind))
		return
	}

	d := h.gate.Admit(req.ActorID, kind)
	h.writeJSONResponse(w, http.StatusOK, models.AdmitResponse{
		Allowed:      d.Allowed(),
		Verdict:      d.Verdict.String(),
		RetryAfterMS: d.RetryAfter.Milliseconds(),
	})
}

// GetArtifact returns the cached handle for a production key, or 404 on a
// cache miss (including a degraded store).
// GET /api/v1/artifacts/{subject_id}/{variant_id}/{format}
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	key, ok := h.productionKeyFromPath(w, r)
	if !ok {
		return
	}

	handle, ok := h.artifacts.Get(r.Context(), key)
	if !ok {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "artifact not cached")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.ArtifactResponse{
		SubjectID: key.SubjectID,
		VariantID: key.VariantID,
		Format:    key.Format,
		Handle:    handle,
	})
}

// PutArtifactRequest is the body of an artifact writeback.
type PutArtifactRequest struct {
	Handle string `json:"handle"`
}

// PutArtifact records a delivery handle after a successful upload.
// PUT /api/v1/artifacts/{subject_id}/{variant_id}/{format}
func (h *Handlers) PutArtifact(w http.ResponseWriter, r *http.Request) {
	key, ok := h.productionKeyFromPath(w, r)
	if !ok {
		return
	}

	var req PutArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.Handle == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "handle is required")
		return
	}

	h.artifacts.Put(r.Context(), key, req.Handle)
	w.WriteHeader(http.StatusNoContent)
}

// GetBatches returns the ordered handle groups for a subject/variant. A
// subject/variant with nothing cached yields an empty list, not a 404: the
// caller treats both the same way.
// GET /api/v1/batches/{subject_id}/{variant_id}
func (h *Handlers) GetBatches(w http.ResponseWriter, r *http.Request) {
	subjectID, variantID, ok := h.subjectVariantFromPath(w, r)
	if !ok {
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.BatchesResponse{
		SubjectID: subjectID,
		VariantID: variantID,
		Batches:   h.batches.Get(r.Context(), subjectID, variantID),
	})
}

// PutBatchRequest is the body of a batch writeback.
type PutBatchRequest struct {
	Handles []string `json:"handles"`
}

// PutBatch records the handle group for one batch index.
// PUT /api/v1/batches/{subject_id}/{variant_id}/{batch_index}
func (h *Handlers) PutBatch(w http.ResponseWriter, r *http.Request) {
	subjectID, variantID, ok := h.subjectVariantFromPath(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["batch_index"])
	if err != nil || index < 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "batch_index must be a non-negative integer")
		return
	}

	var req PutBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Handles) == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "handles is required")
		return
	}

	h.batches.Put(r.Context(), subjectID, variantID, index, req.Handles)
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateRequest is the body of a cache invalidation. A nil SubjectID
// clears everything.
type InvalidateRequest struct {
	SubjectID *int64 `json:"subject_id,omitempty"`
}

// InvalidateCache removes cached artifacts and batches, scoped to one
// subject when given. Unlike cached reads, a failure here is reported: the
// caller asked for a state change.
// POST /api/v1/cache/invalidate
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	removedArtifacts, err := h.artifacts.Invalidate(r.Context(), req.SubjectID)
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, err.Error())
		return
	}

	removedBatches, err := h.batches.Invalidate(r.Context(), req.SubjectID)
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.InvalidateResponse{
		Removed: removedArtifacts + removedBatches,
	})
}

// HealthCheck reports service health. A failing store degrades the service
// instead of marking it unhealthy: admission control keeps working and the
// caches degrade to misses.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.AddComponent("gate", models.StatusHealthy, "Admission control is operational")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		response.Status = models.StatusDegraded
		response.AddComponent("storage", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// Version reports build metadata.
// GET /api/v1/version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.version)
}

// productionKeyFromPath parses the three path segments identifying an
// artifact. Writes a 400 and returns ok=false on malformed input.
func (h *Handlers) productionKeyFromPath(w http.ResponseWriter, r *http.Request) (models.ProductionKey, bool) {
	subjectID, variantID, ok := h.subjectVariantFromPath(w, r)
	if !ok {
		return models.ProductionKey{}, false
	}

	format := mux.Vars(r)["format"]
	if format == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "format is required")
		return models.ProductionKey{}, false
	}

	return models.ProductionKey{SubjectID: subjectID, VariantID: variantID, Format: format}, true
}

func (h *Handlers) subjectVariantFromPath(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	vars := mux.Vars(r)

	subjectID, err := strconv.ParseInt(vars["subject_id"], 10, 64)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "subject_id must be an integer")
		return 0, 0, false
	}

	variantID, err := strconv.ParseInt(vars["variant_id"], 10, 64)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "variant_id must be an integer")
		return 0, 0, false
	}

	return subjectID, variantID, true
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing to do but log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response.
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
