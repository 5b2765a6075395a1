package donors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bloodbridge/platform/pkg/common/database/dbtest"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

func newTestRepository(t *testing.T) *Repository {
	return NewRepository(dbtest.Open(t, &models.Donor{}))
}

func TestFindByBloodGroupsFiltersBySet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seed := []models.Donor{
		{ID: "d1", Name: "Asha", Phone: "+15550000001", BloodGroup: models.ONegative},
		{ID: "d2", Name: "Ben", Phone: "+15550000002", BloodGroup: models.APositive},
		{ID: "d3", Name: "Chen", Phone: "+15550000003", BloodGroup: models.ANegative},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("create %s: %v", seed[i].ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := repo.FindByBloodGroups(ctx, []models.BloodGroup{models.ONegative, models.ANegative})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d1" || got[1].ID != "d3" {
		t.Fatalf("unexpected donors %+v", got)
	}

	none, err := repo.FindByBloodGroups(ctx, nil)
	if err != nil {
		t.Fatalf("find empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no donors for empty set, got %d", len(none))
	}
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &models.Donor{Name: "A", Phone: "+15550000009", BloodGroup: models.BPositive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, &models.Donor{Name: "B", Phone: "+15550000009", BloodGroup: models.OPositive})
	if !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		" +1 (555) 010-2030 ": "+15550102030",
		"555.010.2030":        "5550102030",
		"12+34":               "1234",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterHandler(t *testing.T) {
	router := mux.NewRouter()
	NewHTTPHandler(newTestRepository(t)).Register(router)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"created", `{"name":"Dana","phone":"+1 555 010 2030","bloodGroup":"ab-"}`, http.StatusCreated},
		{"duplicate phone", `{"name":"Eve","phone":"+15550102030","bloodGroup":"O+"}`, http.StatusConflict},
		{"bad group", `{"name":"Eve","phone":"+15550102031","bloodGroup":"C+"}`, http.StatusBadRequest},
		{"short phone", `{"name":"Eve","phone":"123","bloodGroup":"O+"}`, http.StatusBadRequest},
		{"missing name", `{"phone":"+15550102032","bloodGroup":"O+"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/donors", strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tt.name, tt.status, rec.Code, rec.Body.String())
		}
	}
}
