package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

const (
	codeInternal domain.ErrorCode = "INTERNAL"
	codeNotFound domain.ErrorCode = "NOT_FOUND"
	codeConflict domain.ErrorCode = "CONFLICT"
)

type errorDetail struct {
	Code    domain.ErrorCode  `json:"code"`
	Class   domain.ErrorClass `json:"class,omitempty"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorResponse maps err to a status code and body. Internal failures never
// leak their message.
func errorResponse(err error) (int, errorBody) {
	var de *domain.Error
	if errors.As(err, &de) {
		detail := errorDetail{Code: de.Code, Class: de.Class, Message: de.Message, Field: de.Field}
		switch {
		case errors.Is(err, domain.ErrApplicantNotFound):
			return http.StatusNotFound, errorBody{detail}
		case errors.Is(err, domain.ErrMissingField):
			return http.StatusUnprocessableEntity, errorBody{detail}
		case de.Class == domain.ClassInput:
			return http.StatusBadRequest, errorBody{detail}
		default:
			return http.StatusConflict, errorBody{detail}
		}
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, errorBody{errorDetail{Code: codeNotFound, Class: domain.ClassInput, Message: "resource not found"}}
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, errorBody{errorDetail{Code: codeConflict, Class: domain.ClassInput, Message: err.Error()}}
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{errorDetail{Code: domain.CodeInvalidInput, Class: domain.ClassInput, Message: err.Error()}}
	}
	return http.StatusInternalServerError, errorBody{errorDetail{Code: codeInternal, Message: "internal server error"}}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", GetTraceID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{
		Code:    domain.CodeInvalidInput,
		Class:   domain.ClassInput,
		Message: domain.NewInputError(domain.CodeInvalidInput, format, args...).Message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
