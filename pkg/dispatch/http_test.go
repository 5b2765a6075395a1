package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/bloodbridge/platform/pkg/tokens"
	"github.com/gorilla/mux"
)

func TestCreateReturnsFiledRequestWhenMatchingFails(t *testing.T) {
	f := newFixture(t, Options{})
	orch := NewOrchestrator(f.requests, brokenDirectory{}, tokens.NewRegistry(f.tokens, tokens.DefaultTTL), f.sender, f.emitter, Options{})

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &auth.Claims{HospitalID: "H1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewHTTPHandler(orch).Register(router)

	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"bloodGroup":"B+","units":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body createResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.BloodRequest == nil || body.BloodRequest.ID == "" {
		t.Fatalf("expected the filed request in the error body, got %+v", body)
	}
	if body.BloodRequest.HospitalID != "H1" {
		t.Fatalf("unexpected hospital %q", body.BloodRequest.HospitalID)
	}
}
