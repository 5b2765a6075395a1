package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string    `json:"token"`
	Account  *Account  `json:"account,omitempty"`
	Hospital *Hospital `json:"hospital,omitempty"`
}

type HTTPHandler struct {
	service     *Service
	tokenSigner *auth.JWTManager
}

func NewHTTPHandler(service *Service, tokenSigner *auth.JWTManager) *HTTPHandler {
	return &HTTPHandler{service: service, tokenSigner: tokenSigner}
}

func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/auth/bootstrap", h.handleBootstrap).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(h.tokenSigner))
	protected.HandleFunc("/auth/me", h.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/auth/accounts", h.handleRegister).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	hospital, acc, err := h.service.Bootstrap(r.Context(), req)
	if err != nil {
		writeError(w, err, "bootstrap failed")
		return
	}

	token, err := h.tokenSigner.IssueToken(auth.Principal{
		UserID:       acc.ID,
		HospitalID:   hospital.ID,
		HospitalName: hospital.Name,
		Role:         acc.Role,
	})
	if err != nil {
		logger.Log.WithError(err).Error("issue token failed during bootstrap")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, Account: acc, Hospital: hospital})
}

func (h *HTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	principal, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Log.Warn("authentication failed")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		logger.Log.WithError(err).Error("authentication error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := h.tokenSigner.IssueToken(principal)
	if err != nil {
		logger.Log.WithError(err).Error("failed issuing token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token})
}

func (h *HTTPHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	acc, err := h.service.Register(r.Context(), claims, req)
	if err != nil {
		writeError(w, err, "failed to register account")
		return
	}
	respondJSON(w, http.StatusCreated, acc)
}

func (h *HTTPHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	acc, err := h.service.GetAccount(r.Context(), claims.Subject)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to fetch account in /me")
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrHospitalNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrSlugTaken), errors.Is(err, ErrBootstrapNotAllowed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.WithError(err).Error(msg)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
