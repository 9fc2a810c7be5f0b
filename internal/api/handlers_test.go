package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangabot/internal/cache"
	"mangabot/internal/gate"
	"mangabot/internal/models"
	"mangabot/internal/storage"
	"mangabot/internal/version"
)

func newTestRouter(t *testing.T, mutate func(*models.Config)) *mux.Router {
	t.Helper()

	cfg := models.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	g := gate.New(cfg.Gate)
	t.Cleanup(g.Close)

	store := storage.NewMemoryStore()
	handlers := NewHandlers(g,
		cache.NewArtifacts(store, slog.Default()),
		cache.NewBatches(store, slog.Default()),
		store,
		version.Info{Version: "test"},
	)
	return SetupRoutes(handlers, cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAdmitEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "POST", "/api/v1/admit", AdmitRequest{ActorID: 1, Kind: "message"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[models.AdmitResponse](t, rec)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "allow", resp.Verdict)
	assert.Zero(t, resp.RetryAfterMS)

	// Immediately again: inside the message interval.
	rec = doJSON(t, router, "POST", "/api/v1/admit", AdmitRequest{ActorID: 1, Kind: "message"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[models.AdmitResponse](t, rec)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "interval_rejected", resp.Verdict)
	assert.Positive(t, resp.RetryAfterMS)
}

func TestAdmitEndpointValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "POST", "/api/v1/admit", AdmitRequest{ActorID: 1, Kind: "webhook"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/api/v1/admit", AdmitRequest{Kind: "message"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/v1/admit", bytes.NewReader([]byte("{not json")))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestArtifactLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "GET", "/api/v1/artifacts/7/12/pdf", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeNotFound, errResp.Code)

	rec = doJSON(t, router, "PUT", "/api/v1/artifacts/7/12/pdf", PutArtifactRequest{Handle: "file-abc"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/artifacts/7/12/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	art := decodeBody[models.ArtifactResponse](t, rec)
	assert.Equal(t, int64(7), art.SubjectID)
	assert.Equal(t, int64(12), art.VariantID)
	assert.Equal(t, "pdf", art.Format)
	assert.Equal(t, "file-abc", art.Handle)

	// Another format of the same variant is its own entry.
	rec = doJSON(t, router, "GET", "/api/v1/artifacts/7/12/cbz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArtifactValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "GET", "/api/v1/artifacts/abc/12/pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "PUT", "/api/v1/artifacts/7/12/pdf", PutArtifactRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchesEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	// Nothing cached: an empty list, not a 404.
	rec := doJSON(t, router, "GET", "/api/v1/batches/3/9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[models.BatchesResponse](t, rec)
	assert.Empty(t, resp.Batches)

	// Written out of order, read back ascending.
	rec = doJSON(t, router, "PUT", "/api/v1/batches/3/9/1", PutBatchRequest{Handles: []string{"c", "d"}})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, "PUT", "/api/v1/batches/3/9/0", PutBatchRequest{Handles: []string{"a", "b"}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/batches/3/9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[models.BatchesResponse](t, rec)
	require.Len(t, resp.Batches, 2)
	assert.Equal(t, []string{"a", "b"}, resp.Batches[0])
	assert.Equal(t, []string{"c", "d"}, resp.Batches[1])
}

func TestBatchesValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "PUT", "/api/v1/batches/3/9/notanumber", PutBatchRequest{Handles: []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "PUT", "/api/v1/batches/3/9/0", PutBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	doJSON(t, router, "PUT", "/api/v1/artifacts/1/1/pdf", PutArtifactRequest{Handle: "a"})
	doJSON(t, router, "PUT", "/api/v1/artifacts/2/1/pdf", PutArtifactRequest{Handle: "b"})
	doJSON(t, router, "PUT", "/api/v1/batches/1/1/0", PutBatchRequest{Handles: []string{"x"}})

	subject := int64(1)
	rec := doJSON(t, router, "POST", "/api/v1/cache/invalidate", InvalidateRequest{SubjectID: &subject})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[models.InvalidateResponse](t, rec)
	assert.Equal(t, int64(2), resp.Removed, "one artifact plus one batch for subject 1")

	rec = doJSON(t, router, "GET", "/api/v1/artifacts/2/1/pdf", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "other subjects survive")

	rec = doJSON(t, router, "POST", "/api/v1/cache/invalidate", InvalidateRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[models.InvalidateResponse](t, rec)
	assert.Equal(t, int64(1), resp.Removed)
}

func TestInvalidateRequiresAdminToken(t *testing.T) {
	router := newTestRouter(t, func(cfg *models.Config) {
		cfg.Security.AdminToken = "sekrit"
	})

	rec := doJSON(t, router, "POST", "/api/v1/cache/invalidate", InvalidateRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("POST", "/api/v1/cache/invalidate", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer wrong")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	req = httptest.NewRequest("POST", "/api/v1/cache/invalidate", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := doJSON(t, router, "GET", path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[models.HealthCheckResponse](t, rec)
		assert.Equal(t, models.StatusHealthy, resp.Status)
		assert.Contains(t, resp.Components, "gate")
		assert.Contains(t, resp.Components, "storage")
		assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
	}
}

func TestVersionEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "GET", "/api/v1/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[version.Info](t, rec)
	assert.Equal(t, "test", info.Version)
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, "DELETE", "/api/v1/admit", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
