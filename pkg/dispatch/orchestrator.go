package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/compat"
	"github.com/bloodbridge/platform/pkg/notifications"
	"github.com/bloodbridge/platform/pkg/observability/metrics"
	"github.com/bloodbridge/platform/pkg/sms"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RequestStore interface {
	Create(ctx context.Context, req *models.BloodRequest) error
	AppendNotified(ctx context.Context, requestID string, donorIDs []string) error
	Get(ctx context.Context, id string) (*models.BloodRequest, error)
}

type DonorDirectory interface {
	FindByBloodGroups(ctx context.Context, groups []models.BloodGroup) ([]models.Donor, error)
}

// TokenIssuer is satisfied by *tokens.Registry.
type TokenIssuer interface {
	Issue(ctx context.Context, requestID, donorID string) (string, error)
}

// Emitter is satisfied by *notifications.Service.
type Emitter interface {
	Emit(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Options struct {
	PublicBaseURL string
	Concurrency   int
	SendTimeout   time.Duration
	Templates     *sms.Templates
}

type Orchestrator struct {
	requests  RequestStore
	donors    DonorDirectory
	tokens    TokenIssuer
	sender    sms.Sender
	emitter   Emitter
	templates *sms.Templates
	baseURL   string
	workers   int
	timeout   time.Duration
}

func NewOrchestrator(requests RequestStore, donors DonorDirectory, tokens TokenIssuer, sender sms.Sender, emitter Emitter, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Templates == nil {
		opts.Templates = sms.DefaultTemplates()
	}
	return &Orchestrator{
		requests:  requests,
		donors:    donors,
		tokens:    tokens,
		sender:    sender,
		emitter:   emitter,
		templates: opts.Templates,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		workers:   opts.Concurrency,
		timeout:   opts.SendTimeout,
	}
}

// Dispatch files a blood request and notifies every compatible donor.
// The request is persisted before any donor is contacted. Per-donor failures are
// collected in the result; validation and storage errors abort the call.
// NotifiedCount is the number of compatible donors matched.
func (o *Orchestrator) Dispatch(ctx context.Context, in Input) (*Result, error) {
	group, urgency, err := normalize(in)
	if err != nil {
		return nil, err
	}

	req := &models.BloodRequest{
		ID:           uuid.New().String(),
		HospitalID:   in.HospitalID,
		HospitalName: strings.TrimSpace(in.HospitalName),
		BloodGroup:   group,
		Units:        in.Units,
		Urgency:      urgency,
		Notes:        strings.TrimSpace(in.Notes),
	}
	if err := o.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	// The request is filed. Matching, notifying and recording the notified list run
	// to completion even if the caller goes away; each send keeps its own timeout.
	ctx = context.WithoutCancel(ctx)

	log := logger.Log.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"hospital_id": req.HospitalID,
		"blood_group": req.BloodGroup,
	})

	matched, err := o.donors.FindByBloodGroups(ctx, compat.CompatibleDonors(group))
	if err != nil {
		log.WithError(err).Error("donor lookup failed after request was filed")
		return nil, &MatchError{Request: req, Err: err}
	}

	attempted, failures := o.notifyAll(ctx, req, matched)

	if err := o.requests.AppendNotified(ctx, req.ID, attempted); err != nil {
		log.WithError(err).Error("failed to record notified donors")
	} else {
		req.NotifiedDonors = attempted
		req.NotifiedCount = len(attempted)
	}

	sent := len(attempted) - countStage(failures, StageSMS)
	metrics.ObserveDispatch(len(matched), sent, len(failures))

	log.WithFields(logrus.Fields{
		"matched":  len(matched),
		"notified": len(attempted),
		"failed":   len(failures),
	}).Info("blood request dispatched")

	o.summarize(ctx, req, len(matched), failures)

	return &Result{Request: req, NotifiedCount: len(matched), Failures: failures}, nil
}

type outcome struct {
	donorID   string
	attempted bool
	failure   *Failure
}

// notifyAll fans out over donors with at most o.workers sends in flight. It returns the
// donors an SMS was attempted for, in donor order, and the collected failures.
func (o *Orchestrator) notifyAll(ctx context.Context, req *models.BloodRequest, donors []models.Donor) ([]string, []Failure) {
	outcomes := make([]outcome, len(donors))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i := range donors {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, donor models.Donor) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = o.notifyOne(ctx, req, donor)
		}(i, donors[i])
	}
	wg.Wait()

	attempted := make([]string, 0, len(donors))
	var failures []Failure
	for _, out := range outcomes {
		if out.attempted {
			attempted = append(attempted, out.donorID)
		}
		if out.failure != nil {
			failures = append(failures, *out.failure)
		}
	}
	return attempted, failures
}

func (o *Orchestrator) notifyOne(ctx context.Context, req *models.BloodRequest, donor models.Donor) outcome {
	log := logger.Log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"donor_id":   donor.ID,
	})

	token, err := o.tokens.Issue(ctx, req.ID, donor.ID)
	if err != nil {
		log.WithError(err).Error("failed to issue response token")
		return outcome{donorID: donor.ID, failure: &Failure{DonorID: donor.ID, Stage: StageToken, Error: err.Error()}}
	}

	text, err := o.templates.RenderDispatch(sms.DispatchMessage{
		Hospital:   hospitalLabel(req),
		BloodGroup: string(req.BloodGroup),
		Units:      req.Units,
		Urgency:    string(req.Urgency),
		Link:       o.ResponseLink(token),
	})
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, o.timeout)
		err = o.send(sendCtx, donor.Phone, text)
		cancel()
	}

	out := outcome{donorID: donor.ID, attempted: true}
	if err != nil {
		log.WithError(err).WithField("token_suffix", logger.TokenSuffix(token)).Warn("sms delivery failed")
		out.failure = &Failure{DonorID: donor.ID, Stage: StageSMS, Error: err.Error()}
	}
	return out
}

// send bounds a transport call by ctx even when the transport ignores it.
func (o *Orchestrator) send(ctx context.Context, phone, text string) error {
	done := make(chan error, 1)
	go func() {
		done <- o.sender.Send(ctx, phone, text)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sms send: %w", ctx.Err())
	}
}

// ResponseLink is the donor-facing URL that carries token.
func (o *Orchestrator) ResponseLink(token string) string {
	return o.baseURL + "/respond/" + token
}

// Get returns a stored request with its notified list.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.BloodRequest, error) {
	return o.requests.Get(ctx, id)
}

func (o *Orchestrator) summarize(ctx context.Context, req *models.BloodRequest, matched int, failures []Failure) {
	if o.emitter == nil {
		return
	}

	n := models.Notification{
		HospitalID: req.HospitalID,
		Type:       models.NotificationInfo,
		Title:      fmt.Sprintf("%s request dispatched", req.BloodGroup),
		Message:    fmt.Sprintf("%d compatible donor(s) notified for %d unit(s).", matched, req.Units),
		RequestID:  req.ID,
		Metadata: notifications.Meta(map[string]interface{}{
			"matched": matched,
			"failed":  len(failures),
			"urgency": string(req.Urgency),
		}),
	}
	if len(failures) > 0 {
		n.Type = models.NotificationWarning
		n.Message = fmt.Sprintf("%d compatible donor(s) matched for %d unit(s); %d could not be reached.", matched, req.Units, len(failures))
	}

	if _, err := o.emitter.Emit(ctx, n); err != nil {
		logger.Log.WithError(err).WithField("request_id", req.ID).Warn("dispatch summary not stored")
	}
}

func hospitalLabel(req *models.BloodRequest) string {
	if req.HospitalName != "" {
		return req.HospitalName
	}
	return "A hospital"
}

func countStage(failures []Failure, stage Stage) int {
	n := 0
	for _, f := range failures {
		if f.Stage == stage {
			n++
		}
	}
	return n
}
