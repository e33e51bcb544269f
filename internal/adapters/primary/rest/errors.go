package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

type errorResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeError traduit les erreurs du domaine en (status, message, data).
// Une erreur inattendue devient un 500 générique, sans détail interne.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := toResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func toResponse(err error) (int, errorResponse) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := errorResponse{Message: verr.Message}
		if len(verr.Fields) > 0 {
			resp.Data = verr.Fields
		}
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity, errorResponse{Message: "Validation failed. Entered data is incorrect"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Message: "Not authenticated!"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Message: "Could not find post!"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Message: "Not authorized"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Message: "Post image was changed by another request"}
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusBadGateway, errorResponse{Message: "Image upload failed"}
	default:
		return http.StatusInternalServerError, errorResponse{Message: "An error occurred"}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
