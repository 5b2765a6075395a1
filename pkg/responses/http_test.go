package responses

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/bloodbridge/platform/pkg/tokens"
	"github.com/gorilla/mux"
)

type staticRedeemer struct {
	err error
}

func (s staticRedeemer) Inspect(ctx context.Context, token string) (tokens.Binding, error) {
	return tokens.Binding{}, s.err
}

func (s staticRedeemer) Redeem(ctx context.Context, token string) (tokens.Binding, error) {
	return tokens.Binding{}, s.err
}

func newServer(t *testing.T, recorder *Recorder, requests RequestLookup, hospitalID string) *httptest.Server {
	t.Helper()
	h := NewHTTPHandler(recorder, requests)

	router := mux.NewRouter()
	h.RegisterPublic(router)

	private := router.NewRoute().Subrouter()
	private.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &auth.Claims{HospitalID: hospitalID, Role: auth.RoleHospital})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	h.Register(private)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitMapsLinkFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{tokens.ErrNotFound, http.StatusNotFound, "not_found"},
		{tokens.ErrExpired, http.StatusGone, "expired"},
		{tokens.ErrAlreadyUsed, http.StatusConflict, "already_used"},
	}

	for _, tc := range cases {
		f := newFixture(t)
		recorder := NewRecorder(staticRedeemer{err: tc.err}, f.requests, f.donors, f.store, f.emitter)
		srv := newServer(t, recorder, f.requests, "H1")

		body := `{"latitude":1,"longitude":2,"isAvailable":true}`
		resp, err := http.Post(srv.URL+"/respond/abc", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		var out result
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()

		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.reason, tc.status, resp.StatusCode)
		}
		if out.Success || out.Reason != tc.reason || out.Message == "" {
			t.Fatalf("%s: unexpected body %+v", tc.reason, out)
		}
	}
}

func TestSubmitOverHTTP(t *testing.T) {
	f := newFixture(t)
	srv := newServer(t, f.recorder, f.requests, "H1")
	token := f.invite(t, "r1", "+15550000001", models.ONegative)

	resp, err := http.Post(srv.URL+"/respond/"+token, "application/json", strings.NewReader(`{"latitude":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing fields should be rejected, got %d", resp.StatusCode)
	}

	body := `{"latitude":12.9,"longitude":77.5,"isAvailable":true,"address":"Ward 3"}`
	resp, err = http.Post(srv.URL+"/respond/"+token, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var out result
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || !out.Success || out.Response == nil {
		t.Fatalf("unexpected submit result %d %+v", resp.StatusCode, out)
	}

	resp, err = http.Get(srv.URL + "/requests/r1/responses/last?bloodGroup=o-")
	if err != nil {
		t.Fatalf("get last: %v", err)
	}
	var last models.DonorResponse
	json.NewDecoder(resp.Body).Decode(&last)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || last.ID != out.Response.ID || !last.Available {
		t.Fatalf("unexpected last response %d %+v", resp.StatusCode, last)
	}

	resp, err = http.Get(srv.URL + "/requests/r1/responses/last?bloodGroup=B%2B")
	if err != nil {
		t.Fatalf("get last: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for group without responses, got %d", resp.StatusCode)
	}
}

func TestResponsesHiddenFromOtherHospitals(t *testing.T) {
	f := newFixture(t)
	f.invite(t, "r1", "+15550000001", models.ONegative)
	srv := newServer(t, f.recorder, f.requests, "H2")

	resp, err := http.Get(srv.URL + "/requests/r1/responses")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign request, got %d", resp.StatusCode)
	}
}
