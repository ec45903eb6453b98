package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ListApplicants handles GET /applicants?limit=&offset=.
func (h *Handler) ListApplicants(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	applicants, err := h.repo.ListApplicants(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applicants": applicants,
		"count":      len(applicants),
	})
}

// CreateApplicant handles POST /applicants.
func (h *Handler) CreateApplicant(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplicantRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	a := req.ToApplicant()
	a.ID = uuid.New().String()
	if err := h.repo.SaveApplicant(r.Context(), a); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("applicant created", zap.String("applicant_id", a.ID))
	writeJSON(w, http.StatusCreated, a)
}

// GetApplicant handles GET /applicants/{id}.
func (h *Handler) GetApplicant(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetApplicant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateApplicant handles PUT /applicants/{id}. The record is replaced;
// creation time is preserved.
func (h *Handler) UpdateApplicant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	existing, err := h.repo.GetApplicant(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req domain.ApplicantRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	a := req.ToApplicant()
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	if err := h.repo.SaveApplicant(ctx, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteApplicant handles DELETE /applicants/{id}.
func (h *Handler) DeleteApplicant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteApplicant(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("applicant deleted", zap.String("applicant_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// ListApplicantEvaluations handles GET /applicants/{id}/evaluations.
func (h *Handler) ListApplicantEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}

	a, err := h.repo.GetApplicant(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	evals, err := h.repo.ListEvaluationsByApplicant(ctx, a.ID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": evals,
		"count":       len(evals),
	})
}

// AddTransaction handles POST /applicants/{id}/transactions.
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.repo.GetApplicant(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req domain.TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Timestamp != nil && req.Timestamp.After(time.Now().Add(time.Minute)) {
		badRequest(w, "timestamp must not be in the future")
		return
	}

	tx := req.ToTransaction(a.ID)
	tx.ID = uuid.New().String()
	if err := h.repo.SaveTransaction(ctx, tx); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(w, "%s must be a non-negative integer", name)
		return 0, false
	}
	return v, true
}
