package donors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	BloodGroup string `json:"bloodGroup"`
	City       string `json:"city"`
}

type HTTPHandler struct {
	repo *Repository
}

func NewHTTPHandler(repo *Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/donors", h.handleRegister).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	group, ok := models.ParseBloodGroup(req.BloodGroup)
	if !ok {
		http.Error(w, "bloodGroup must be one of A+, A-, B+, B-, AB+, AB-, O+, O-", http.StatusBadRequest)
		return
	}
	phone := NormalizePhone(req.Phone)
	if len(strings.TrimPrefix(phone, "+")) < 7 {
		http.Error(w, "phone number required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	donor := &models.Donor{
		Name:       strings.TrimSpace(req.Name),
		Phone:      phone,
		BloodGroup: group,
		City:       strings.TrimSpace(req.City),
	}
	if err := h.repo.Create(r.Context(), donor); err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Log.WithError(err).Error("failed to register donor")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(donor)
}
