package responses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/notifications"
	"github.com/bloodbridge/platform/pkg/observability/metrics"
	"github.com/bloodbridge/platform/pkg/tokens"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SubmitInput is what a donor reports through the response link.
type SubmitInput struct {
	Latitude  float64
	Longitude float64
	Available bool
	Address   string
}

// TokenRedeemer is satisfied by *tokens.Registry.
type TokenRedeemer interface {
	Inspect(ctx context.Context, token string) (tokens.Binding, error)
	Redeem(ctx context.Context, token string) (tokens.Binding, error)
}

type RequestLookup interface {
	Get(ctx context.Context, id string) (*models.BloodRequest, error)
}

type DonorLookup interface {
	Get(ctx context.Context, id string) (*models.Donor, error)
}

type Store interface {
	Create(ctx context.Context, resp *models.DonorResponse) error
	ListForRequest(ctx context.Context, requestID string) ([]models.DonorResponse, error)
	LastForRequestGroup(ctx context.Context, requestID string, group models.BloodGroup) (*models.DonorResponse, error)
}

// Emitter is satisfied by *notifications.Service.
type Emitter interface {
	Emit(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Invitation is what an unused link resolves to before the donor answers.
type Invitation struct {
	RequestID    string            `json:"requestId"`
	HospitalName string            `json:"hospitalName"`
	BloodGroup   models.BloodGroup `json:"bloodGroup"`
	Units        int               `json:"units"`
	Urgency      models.Urgency    `json:"urgency"`
	IssuedAt     time.Time         `json:"issuedAt"`
}

type Recorder struct {
	tokens   TokenRedeemer
	requests RequestLookup
	donors   DonorLookup
	store    Store
	emitter  Emitter
	nowFunc  func() time.Time
}

func NewRecorder(redeemer TokenRedeemer, requests RequestLookup, donors DonorLookup, store Store, emitter Emitter) *Recorder {
	return &Recorder{
		tokens:   redeemer,
		requests: requests,
		donors:   donors,
		store:    store,
		emitter:  emitter,
		nowFunc:  time.Now,
	}
}

// Inspect resolves a link without consuming it.
func (r *Recorder) Inspect(ctx context.Context, token string) (*Invitation, error) {
	binding, err := r.tokens.Inspect(ctx, token)
	if err != nil {
		return nil, err
	}
	req, err := r.requests.Get(ctx, binding.RequestID)
	if err != nil {
		return nil, fmt.Errorf("loading request for token: %w", err)
	}
	return &Invitation{
		RequestID:    req.ID,
		HospitalName: req.HospitalName,
		BloodGroup:   req.BloodGroup,
		Units:        req.Units,
		Urgency:      req.Urgency,
		IssuedAt:     binding.IssuedAt,
	}, nil
}

// Submit records a donor's reply. Possession of a live, unused token is the only
// authorization. Token failures (tokens.ErrNotFound, tokens.ErrExpired,
// tokens.ErrAlreadyUsed) are returned unchanged and nothing is written.
func (r *Recorder) Submit(ctx context.Context, token string, in SubmitInput) (*models.DonorResponse, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	log := logger.Log.WithField("token_suffix", logger.TokenSuffix(token))

	// Resolve the request and donor before consuming the token so a lookup
	// failure leaves the link usable.
	binding, err := r.tokens.Inspect(ctx, token)
	if err != nil {
		return nil, r.redeemFailed(log, err)
	}
	req, err := r.requests.Get(ctx, binding.RequestID)
	if err != nil {
		return nil, fmt.Errorf("loading request for response: %w", err)
	}
	donor, err := r.donors.Get(ctx, binding.DonorID)
	if err != nil {
		return nil, fmt.Errorf("loading donor for response: %w", err)
	}

	// Once the token is spent the response must be stored and announced even if
	// the donor's connection drops; a retry would only see AlreadyUsed.
	ctx = context.WithoutCancel(ctx)

	binding, err = r.tokens.Redeem(ctx, token)
	if err != nil {
		return nil, r.redeemFailed(log, err)
	}
	metrics.ObserveRedemption("ok")

	resp := &models.DonorResponse{
		ID:          uuid.New().String(),
		RequestID:   binding.RequestID,
		DonorID:     binding.DonorID,
		BloodGroup:  donor.BloodGroup,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Available:   in.Available,
		Address:     strings.TrimSpace(in.Address),
		Token:       token,
		RespondedAt: r.nowFunc().UTC(),
	}
	if err := r.store.Create(ctx, resp); err != nil {
		log.WithError(err).WithField("request_id", binding.RequestID).Error("token redeemed but response not stored")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"request_id": resp.RequestID,
		"donor_id":   resp.DonorID,
		"available":  resp.Available,
	}).Info("donor response recorded")

	r.announce(ctx, req, donor, resp)
	return resp, nil
}

func (r *Recorder) redeemFailed(log *logrus.Entry, err error) error {
	if tokens.IsRedeemFailure(err) {
		metrics.ObserveRedemption(tokens.Reason(err))
		log.WithField("reason", tokens.Reason(err)).Info("response link rejected")
	}
	return err
}

func (r *Recorder) announce(ctx context.Context, req *models.BloodRequest, donor *models.Donor, resp *models.DonorResponse) {
	if r.emitter == nil {
		return
	}

	n := models.Notification{
		HospitalID: req.HospitalID,
		Type:       models.NotificationSuccess,
		Title:      fmt.Sprintf("Donor available (%s)", donor.BloodGroup),
		Message:    fmt.Sprintf("%s can donate for your %s request.", donorLabel(donor), req.BloodGroup),
		RequestID:  req.ID,
		DonorID:    donor.ID,
		Metadata: notifications.Meta(map[string]interface{}{
			"responseId":  resp.ID,
			"latitude":    resp.Latitude,
			"longitude":   resp.Longitude,
			"isAvailable": resp.Available,
		}),
	}
	if resp.Address != "" {
		n.Message += " Location: " + resp.Address
	}
	if !resp.Available {
		n.Type = models.NotificationWarning
		n.Title = fmt.Sprintf("Donor declined (%s)", donor.BloodGroup)
		n.Message = fmt.Sprintf("%s is not available for your %s request.", donorLabel(donor), req.BloodGroup)
	}

	if _, err := r.emitter.Emit(ctx, n); err != nil {
		logger.Log.WithError(err).WithField("request_id", req.ID).Warn("response notification not stored")
	}
}

// Responses lists every reply to a request, newest first.
func (r *Recorder) Responses(ctx context.Context, requestID string) ([]models.DonorResponse, error) {
	return r.store.ListForRequest(ctx, requestID)
}

// Last returns the latest reply from a donor of group, or ErrNotFound.
func (r *Recorder) Last(ctx context.Context, requestID string, group models.BloodGroup) (*models.DonorResponse, error) {
	return r.store.LastForRequestGroup(ctx, requestID, group)
}

func donorLabel(d *models.Donor) string {
	if d.Name != "" {
		return d.Name
	}
	return "A donor"
}
