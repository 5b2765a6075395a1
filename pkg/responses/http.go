package responses

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/dispatch"
	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/bloodbridge/platform/pkg/tokens"
	"github.com/gorilla/mux"
)

type submitRequest struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	IsAvailable *bool    `json:"isAvailable"`
	Address     string   `json:"address"`
}

type result struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	Response   *models.DonorResponse `json:"response,omitempty"`
	Invitation *Invitation           `json:"invitation,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Error      string                `json:"error,omitempty"`
}

var linkMessages = map[string]string{
	"not_found":    "This link is not valid.",
	"expired":      "This link has expired.",
	"already_used": "This link has already been used.",
}

var linkStatus = map[string]int{
	"not_found":    http.StatusNotFound,
	"expired":      http.StatusGone,
	"already_used": http.StatusConflict,
}

type HTTPHandler struct {
	recorder *Recorder
	requests RequestLookup
}

func NewHTTPHandler(recorder *Recorder, requests RequestLookup) *HTTPHandler {
	return &HTTPHandler{recorder: recorder, requests: requests}
}

// RegisterPublic mounts the donor-facing routes; the token in the path is the credential.
func (h *HTTPHandler) RegisterPublic(router *mux.Router) {
	router.HandleFunc("/respond/{token}", h.handleInspect).Methods(http.MethodGet)
	router.HandleFunc("/respond/{token}", h.handleSubmit).Methods(http.MethodPost)
}

// Register mounts the hospital-facing read routes.
func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/requests/{id}/responses", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/requests/{id}/responses/last", h.handleLast).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleInspect(w http.ResponseWriter, r *http.Request) {
	inv, err := h.recorder.Inspect(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Link is valid", Invitation: inv})
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, result{Message: "Invalid request body", Error: err.Error()})
		return
	}
	if req.Latitude == nil || req.Longitude == nil || req.IsAvailable == nil {
		writeJSON(w, http.StatusBadRequest, result{Message: "Invalid response", Error: "latitude, longitude and isAvailable are required"})
		return
	}

	resp, err := h.recorder.Submit(r.Context(), mux.Vars(r)["token"], SubmitInput{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Available: *req.IsAvailable,
		Address:   req.Address,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result{Success: true, Message: "Thank you, your response has been recorded", Response: resp})
}

func (h *HTTPHandler) writeFailure(w http.ResponseWriter, err error) {
	if IsValidationError(err) {
		writeJSON(w, http.StatusBadRequest, result{Message: "Invalid response", Error: err.Error()})
		return
	}
	if tokens.IsRedeemFailure(err) {
		reason := tokens.Reason(err)
		writeJSON(w, linkStatus[reason], result{Message: linkMessages[reason], Reason: reason, Error: err.Error()})
		return
	}
	logger.Log.WithError(err).Error("failed to process donor response")
	writeJSON(w, http.StatusInternalServerError, result{Message: "Something went wrong, please try again", Error: "internal error"})
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	items, err := h.recorder.Responses(r.Context(), requestID)
	if err != nil {
		logger.Log.WithError(err).WithField("request_id", requestID).Error("failed to list donor responses")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) handleLast(w http.ResponseWriter, r *http.Request) {
	group, valid := models.ParseBloodGroup(r.URL.Query().Get("bloodGroup"))
	if !valid {
		http.Error(w, "bloodGroup query parameter required", http.StatusBadRequest)
		return
	}
	requestID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	resp, err := h.recorder.Last(r.Context(), requestID, group)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "no response found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("request_id", requestID).Error("failed to load last donor response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorize checks the caller's hospital owns the request in the path.
func (h *HTTPHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}

	requestID := mux.Vars(r)["id"]
	req, err := h.requests.Get(r.Context(), requestID)
	if err != nil || (claims.Role != auth.RoleAdmin && req.HospitalID != claims.HospitalID) {
		if err != nil && !errors.Is(err, dispatch.ErrRequestNotFound) {
			logger.Log.WithError(err).WithField("request_id", requestID).Error("failed to load blood request")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return "", false
		}
		http.Error(w, "blood request not found", http.StatusNotFound)
		return "", false
	}
	return requestID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
