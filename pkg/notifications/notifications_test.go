package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bloodbridge/platform/pkg/common/database/dbtest"
	"github.com/bloodbridge/platform/pkg/common/models"
)

func TestListForHospitalIncludesGlobalNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.Open(t, &models.Notification{}))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := []models.Notification{
		{ID: "n1", HospitalID: "H1", Title: "first", CreatedAt: base},
		{ID: "n2", HospitalID: "H2", Title: "other", CreatedAt: base.Add(time.Minute)},
		{ID: "n3", HospitalID: "", Title: "global", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "n4", HospitalID: "H1", Title: "latest", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range rows {
		if err := repo.Create(ctx, &rows[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListForHospital(ctx, "H1", false, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"n4", "n3", "n1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestMarkReadScopedToHospital(t *testing.T) {
	repo := NewRepository(dbtest.Open(t, &models.Notification{}))
	ctx := context.Background()

	n := models.Notification{ID: "n1", HospitalID: "H1", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, &n); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkRead(ctx, "n1", "H2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign hospital must not ack, got %v", err)
	}
	if err := repo.MarkRead(ctx, "n1", "H1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := repo.ListForHospital(ctx, "H1", true, 10)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}
}

type fakeStore struct {
	saved []models.Notification
	err   error
}

func (s *fakeStore) Create(ctx context.Context, n *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *n)
	return nil
}

type fakeHub struct {
	published []models.Notification
}

func (h *fakeHub) Publish(n models.Notification) int {
	h.published = append(h.published, n)
	return 1
}

type fakeAudit struct {
	keys []string
	err  error
}

func (a *fakeAudit) PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error {
	a.keys = append(a.keys, key)
	return a.err
}

func TestEmitPersistsBroadcastsAndAudits(t *testing.T) {
	store, hub, audit := &fakeStore{}, &fakeHub{}, &fakeAudit{}
	svc := NewService(store, hub, audit, "test")

	n, err := svc.Emit(context.Background(), models.Notification{HospitalID: "H1", Title: "hello"})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() || n.Type != models.NotificationInfo {
		t.Fatalf("emit should fill id, time and default type: %+v", n)
	}
	if len(store.saved) != 1 || len(hub.published) != 1 {
		t.Fatalf("expected one stored and one published, got %d and %d", len(store.saved), len(hub.published))
	}
	if hub.published[0].ID != n.ID {
		t.Fatal("published notification should match the stored one")
	}
	if len(audit.keys) != 1 || audit.keys[0] != "H1" {
		t.Fatalf("expected audit event keyed by hospital, got %v", audit.keys)
	}
}

func TestEmitStillBroadcastsWhenStoreFails(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	hub := &fakeHub{}
	audit := &fakeAudit{err: errors.New("broker down")}
	svc := NewService(store, hub, audit, "test")

	_, err := svc.Emit(context.Background(), models.Notification{Title: "global"})
	if err == nil {
		t.Fatal("expected the store error to be returned")
	}
	if len(hub.published) != 1 {
		t.Fatal("live broadcast should not depend on the durable write")
	}
}
