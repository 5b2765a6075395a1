package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/gorilla/mux"
)

type createRequest struct {
	BloodGroup string `json:"bloodGroup"`
	Units      int    `json:"units"`
	Urgency    string `json:"urgency"`
	Notes      string `json:"notes"`
}

type createResponse struct {
	Success       bool                 `json:"success"`
	Message       string               `json:"message"`
	BloodRequest  *models.BloodRequest `json:"bloodRequest,omitempty"`
	NotifiedCount int                  `json:"notifiedCount"`
	FailedCount   int                  `json:"failedCount,omitempty"`
	Error         string               `json:"error,omitempty"`
}

type HTTPHandler struct {
	orchestrator *Orchestrator
}

func NewHTTPHandler(orchestrator *Orchestrator) *HTTPHandler {
	return &HTTPHandler{orchestrator: orchestrator}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/requests", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/requests/{id}", h.handleGet).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, createResponse{Message: "Not authorised", Error: "missing hospital identity"})
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid blood request payload")
		writeJSON(w, http.StatusBadRequest, createResponse{Message: "Invalid request body", Error: err.Error()})
		return
	}

	result, err := h.orchestrator.Dispatch(r.Context(), Input{
		HospitalID:   claims.HospitalID,
		HospitalName: claims.HospitalName,
		BloodGroup:   req.BloodGroup,
		Units:        req.Units,
		Urgency:      req.Urgency,
		Notes:        req.Notes,
	})
	if err != nil {
		if IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, createResponse{Message: "Invalid blood request", Error: err.Error()})
			return
		}
		var matchErr *MatchError
		if errors.As(err, &matchErr) {
			logger.Log.WithError(err).WithField("request_id", matchErr.Request.ID).Error("blood request filed but donors not notified")
			writeJSON(w, http.StatusInternalServerError, createResponse{
				Message:      "Blood request created but donors could not be notified",
				BloodRequest: matchErr.Request,
				Error:        "donor matching failed",
			})
			return
		}
		logger.Log.WithError(err).WithField("hospital_id", claims.HospitalID).Error("failed to dispatch blood request")
		writeJSON(w, http.StatusInternalServerError, createResponse{Message: "Failed to create blood request", Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Success:       true,
		Message:       "Blood request created and donors notified",
		BloodRequest:  result.Request,
		NotifiedCount: result.NotifiedCount,
		FailedCount:   len(result.Failures),
	})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	req, err := h.orchestrator.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrRequestNotFound) || (err == nil && !canView(claims, req)) {
		http.Error(w, "blood request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load blood request")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func canView(claims *auth.Claims, req *models.BloodRequest) bool {
	return claims.Role == auth.RoleAdmin || claims.HospitalID == req.HospitalID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
