package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bloodbridge/platform/pkg/common/database/dbtest"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/donors"
	"github.com/bloodbridge/platform/pkg/tokens"
	"gorm.io/gorm"
)

type sentMessage struct {
	phone string
	text  string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error
	block   map[string]bool
	after   func()
}

func (s *fakeSender) Send(ctx context.Context, phone, text string) error {
	if s.block[phone] {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{phone: phone, text: text})
	if s.after != nil {
		s.after()
	}
	if err := s.failFor[phone]; err != nil {
		return err
	}
	return nil
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []models.Notification
}

func (e *fakeEmitter) Emit(ctx context.Context, n models.Notification) (models.Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, n)
	return n, nil
}

type fixture struct {
	db       *gorm.DB
	orch     *Orchestrator
	requests *Repository
	donors   *donors.Repository
	tokens   *tokens.Repository
	sender   *fakeSender
	emitter  *fakeEmitter
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := dbtest.Open(t, &models.BloodRequest{}, &notifiedDonor{}, &models.Donor{}, &tokens.Record{})

	f := &fixture{
		db:       db,
		requests: NewRepository(db),
		donors:   donors.NewRepository(db),
		tokens:   tokens.NewRepository(db),
		sender:   &fakeSender{failFor: map[string]error{}, block: map[string]bool{}},
		emitter:  &fakeEmitter{},
	}
	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = "https://bloodbridge.test/"
	}
	registry := tokens.NewRegistry(f.tokens, tokens.DefaultTTL)
	f.orch = NewOrchestrator(f.requests, f.donors, registry, f.sender, f.emitter, opts)
	return f
}

func (f *fixture) addDonor(t *testing.T, name, phone string, group models.BloodGroup) models.Donor {
	t.Helper()
	d := models.Donor{Name: name, Phone: phone, BloodGroup: group}
	if err := f.donors.Create(context.Background(), &d); err != nil {
		t.Fatalf("create donor: %v", err)
	}
	return d
}

func (f *fixture) tokensFor(t *testing.T, requestID string) []tokens.Record {
	t.Helper()
	var recs []tokens.Record
	if err := f.db.Where("request_id = ?", requestID).Find(&recs).Error; err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	return recs
}

func TestDispatchNotifiesOnlyCompatibleDonors(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 4})
	oneg := f.addDonor(t, "Ada", "+15550000001", models.ONegative)
	f.addDonor(t, "Ben", "+15550000002", models.APositive)

	result, err := f.orch.Dispatch(context.Background(), Input{
		HospitalID: "H1", HospitalName: "City General", BloodGroup: "O-", Units: 2, Urgency: "high",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.NotifiedCount != 1 {
		t.Fatalf("expected notified count 1, got %d", result.NotifiedCount)
	}

	recs := f.tokensFor(t, result.Request.ID)
	if len(recs) != 1 || recs[0].DonorID != oneg.ID {
		t.Fatalf("expected one token for the O- donor, got %+v", recs)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one sms, got %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.phone != oneg.Phone {
		t.Fatalf("sms sent to wrong donor: %s", msg.phone)
	}
	if !strings.Contains(msg.text, "https://bloodbridge.test/respond/"+recs[0].Token) {
		t.Fatalf("sms should carry the response link, got %q", msg.text)
	}

	stored, err := f.requests.Get(context.Background(), result.Request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.NotifiedCount != 1 || len(stored.NotifiedDonors) != 1 || stored.NotifiedDonors[0] != oneg.ID {
		t.Fatalf("unexpected notified list: %+v", stored)
	}
	if stored.Urgency != models.UrgencyHigh || stored.BloodGroup != models.ONegative {
		t.Fatalf("request fields not normalised: %+v", stored)
	}

	if len(f.emitter.emitted) != 1 || f.emitter.emitted[0].Type != models.NotificationInfo {
		t.Fatalf("expected one info summary notification, got %+v", f.emitter.emitted)
	}
}

func TestDispatchWithNoDonorsStillFilesRequest(t *testing.T) {
	f := newFixture(t, Options{})
	f.addDonor(t, "Ben", "+15550000002", models.APositive)

	result, err := f.orch.Dispatch(context.Background(), Input{HospitalID: "H1", BloodGroup: "AB-", Units: 1})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.NotifiedCount != 0 {
		t.Fatalf("expected zero notified, got %d", result.NotifiedCount)
	}

	stored, err := f.requests.Get(context.Background(), result.Request.ID)
	if err != nil {
		t.Fatalf("request should be stored: %v", err)
	}
	if stored.NotifiedCount != 0 || len(stored.NotifiedDonors) != 0 {
		t.Fatalf("expected empty notified list, got %+v", stored)
	}
	if stored.Urgency != models.UrgencyMedium {
		t.Fatalf("expected default urgency, got %s", stored.Urgency)
	}
}

func TestDispatchIssuesDistinctTokensWhenSendsFail(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 3})
	phones := []string{"+15550000011", "+15550000012", "+15550000013", "+15550000014", "+15550000015"}
	for i, phone := range phones {
		group := models.APositive
		if i%2 == 1 {
			group = models.OPositive
		}
		f.addDonor(t, "donor", phone, group)
	}
	f.sender.failFor[phones[1]] = errors.New("gateway rejected")
	f.sender.failFor[phones[3]] = errors.New("gateway rejected")

	result, err := f.orch.Dispatch(context.Background(), Input{HospitalID: "H1", BloodGroup: "A+", Units: 3})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.NotifiedCount != len(phones) {
		t.Fatalf("expected %d matched, got %d", len(phones), result.NotifiedCount)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", result.Failures)
	}
	for _, failure := range result.Failures {
		if failure.Stage != StageSMS {
			t.Fatalf("unexpected failure stage: %+v", failure)
		}
	}

	recs := f.tokensFor(t, result.Request.ID)
	if len(recs) != len(phones) {
		t.Fatalf("expected %d tokens, got %d", len(phones), len(recs))
	}
	seenTokens := map[string]bool{}
	seenDonors := map[string]bool{}
	for _, rec := range recs {
		if seenTokens[rec.Token] || seenDonors[rec.DonorID] {
			t.Fatalf("duplicate token binding: %+v", rec)
		}
		seenTokens[rec.Token] = true
		seenDonors[rec.DonorID] = true
	}

	stored, err := f.requests.Get(context.Background(), result.Request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.NotifiedCount != len(phones) {
		t.Fatalf("failed sends still count as attempts, got %d", stored.NotifiedCount)
	}

	if got := f.emitter.emitted[0].Type; got != models.NotificationWarning {
		t.Fatalf("expected warning summary, got %s", got)
	}
}

func TestDispatchDoesNotWaitOnSlowTransport(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 1, SendTimeout: 50 * time.Millisecond})
	f.addDonor(t, "slow", "+15550000021", models.ONegative)
	f.addDonor(t, "fast", "+15550000022", models.ONegative)
	f.sender.block["+15550000021"] = true

	start := time.Now()
	result, err := f.orch.Dispatch(context.Background(), Input{HospitalID: "H1", BloodGroup: "O-", Units: 1})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("dispatch took too long: %s", elapsed)
	}
	if len(result.Failures) != 1 || !strings.Contains(result.Failures[0].Error, "deadline") {
		t.Fatalf("expected one timeout failure, got %+v", result.Failures)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].phone != "+15550000022" {
		t.Fatalf("remaining donor should still be notified, got %+v", f.sender.sent)
	}
}

func TestDispatchRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Options{})

	cases := []Input{
		{HospitalID: "H1", BloodGroup: "Z+", Units: 1},
		{HospitalID: "H1", BloodGroup: "A+", Units: 0},
		{HospitalID: "H1", BloodGroup: "A+", Units: 1, Urgency: "whenever"},
		{BloodGroup: "A+", Units: 1},
	}
	for _, in := range cases {
		_, err := f.orch.Dispatch(context.Background(), in)
		if !IsValidationError(err) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}

	var count int64
	f.db.Model(&models.BloodRequest{}).Count(&count)
	if count != 0 {
		t.Fatalf("invalid input must not persist anything, found %d requests", count)
	}
}

func TestAppendNotifiedSkipsDuplicates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	req := &models.BloodRequest{ID: "r1", HospitalID: "H1", BloodGroup: models.APositive, Units: 1}
	if err := f.requests.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.requests.AppendNotified(ctx, "r1", []string{"d1", "d2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.requests.AppendNotified(ctx, "r1", []string{"d2", "d3"}); err != nil {
		t.Fatalf("append again: %v", err)
	}

	stored, err := f.requests.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.NotifiedCount != 3 || len(stored.NotifiedDonors) != 3 {
		t.Fatalf("expected 3 distinct donors, got %+v", stored)
	}

	if err := f.requests.AppendNotified(ctx, "missing", []string{"d1"}); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestDispatchFinishesWhenCallerGoesAway(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 1})
	for i, phone := range []string{"+15550000031", "+15550000032", "+15550000033"} {
		f.addDonor(t, "Donor"+string(rune('A'+i)), phone, models.ONegative)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	f.sender.after = func() { once.Do(cancel) }

	result, err := f.orch.Dispatch(ctx, Input{HospitalID: "H1", BloodGroup: "O-", Units: 1})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no failures after caller cancel, got %+v", result.Failures)
	}
	if len(f.sender.sent) != 3 {
		t.Fatalf("expected all 3 donors to be texted, got %d", len(f.sender.sent))
	}

	stored, err := f.requests.Get(context.Background(), result.Request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.NotifiedCount != 3 || len(stored.NotifiedDonors) != 3 {
		t.Fatalf("expected 3 notified donors persisted, got count=%d list=%v", stored.NotifiedCount, stored.NotifiedDonors)
	}
}

type brokenDirectory struct{}

func (brokenDirectory) FindByBloodGroups(ctx context.Context, groups []models.BloodGroup) ([]models.Donor, error) {
	return nil, errors.New("directory offline")
}

func TestDispatchReportsFiledRequestWhenMatchingFails(t *testing.T) {
	f := newFixture(t, Options{})
	orch := NewOrchestrator(f.requests, brokenDirectory{}, tokens.NewRegistry(f.tokens, tokens.DefaultTTL), f.sender, f.emitter, Options{})

	_, err := orch.Dispatch(context.Background(), Input{HospitalID: "H1", BloodGroup: "A+", Units: 1})
	var matchErr *MatchError
	if !errors.As(err, &matchErr) {
		t.Fatalf("expected MatchError, got %v", err)
	}
	if _, err := f.requests.Get(context.Background(), matchErr.Request.ID); err != nil {
		t.Fatalf("request should stay filed: %v", err)
	}
}
