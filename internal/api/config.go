package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// GetConfig returns the latest version of one aggregate.
func (h *Handler) GetConfig(kind domain.ConfigKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.store.Record(r.Context(), kind)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// PutConfig stores a new version of one aggregate.
func (h *Handler) PutConfig(kind domain.ConfigKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			badRequest(w, "failed to read request body: %v", err)
			return
		}
		if !json.Valid(body) {
			badRequest(w, "invalid JSON request body")
			return
		}

		rec, err := h.store.Save(r.Context(), kind, body)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		h.logger.Info("configuration updated",
			zap.String("kind", string(kind)),
			zap.Int("version", rec.Version),
			zap.String("trace_id", GetTraceID(r.Context())),
		)
		writeJSON(w, http.StatusOK, rec)
	}
}

// ListConfigVersions returns every stored version of one aggregate, newest
// first.
func (h *Handler) ListConfigVersions(kind domain.ConfigKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := h.store.Versions(r.Context(), kind)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"kind":     kind,
			"versions": versions,
			"count":    len(versions),
		})
	}
}

// GetSnapshot returns the current validated configuration snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
