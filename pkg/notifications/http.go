package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	repo *Repository
}

func NewHTTPHandler(repo *Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/notifications", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/notifications/{id}/read", h.handleMarkRead).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	unread := r.URL.Query().Get("unread") == "true"

	items, err := h.repo.ListForHospital(r.Context(), claims.HospitalID, unread, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list notifications")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (h *HTTPHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	err := h.repo.MarkRead(r.Context(), mux.Vars(r)["id"], claims.HospitalID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to mark notification read")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
