package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
)

const maxIssueAttempts = 3

// Store persists tokens. Redeem must be a single atomic check-and-set: mark used only when
// the token exists, is unused and was created at or after cutoff.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Redeem(ctx context.Context, token string, cutoff, now time.Time) (*Record, error)
	Get(ctx context.Context, token string) (*Record, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Registry struct {
	store    Store
	ttl      time.Duration
	nowFunc  func() time.Time
	generate func() (string, error)
}

func NewRegistry(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		store:    store,
		ttl:      ttl,
		nowFunc:  time.Now,
		generate: generateToken,
	}
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue creates a fresh unused token bound to (requestID, donorID).
func (r *Registry) Issue(ctx context.Context, requestID, donorID string) (string, error) {
	if strings.TrimSpace(requestID) == "" || strings.TrimSpace(donorID) == "" {
		return "", errors.New("request id and donor id required")
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		token, err := r.generate()
		if err != nil {
			return "", err
		}

		rec := &Record{
			Token:     token,
			RequestID: requestID,
			DonorID:   donorID,
			CreatedAt: r.nowFunc().UTC(),
		}
		err = r.store.Create(ctx, rec)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, errCollision) {
			return "", err
		}
		logger.Log.WithField("attempt", attempt).Warn("response token collision, regenerating")
	}

	return "", fmt.Errorf("issuing token after %d attempts: %w", maxIssueAttempts, errCollision)
}

// Redeem consumes token. Exactly one concurrent caller can succeed; the rest get ErrAlreadyUsed.
// A token older than the TTL reports ErrExpired whatever its used flag says.
func (r *Registry) Redeem(ctx context.Context, token string) (Binding, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Binding{}, ErrNotFound
	}

	now := r.nowFunc().UTC()
	rec, err := r.store.Redeem(ctx, token, now.Add(-r.ttl), now)
	if err != nil {
		return Binding{}, err
	}
	return bindingOf(rec), nil
}

// Inspect classifies token like Redeem without consuming it.
func (r *Registry) Inspect(ctx context.Context, token string) (Binding, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Binding{}, ErrNotFound
	}

	rec, err := r.store.Get(ctx, token)
	if err != nil {
		return Binding{}, err
	}
	if err := classify(rec, r.nowFunc().UTC().Add(-r.ttl)); err != nil {
		return Binding{}, err
	}
	return bindingOf(rec), nil
}

func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	return r.store.PurgeExpired(ctx, r.nowFunc().UTC().Add(-r.ttl))
}

func bindingOf(rec *Record) Binding {
	return Binding{
		RequestID: rec.RequestID,
		DonorID:   rec.DonorID,
		IssuedAt:  rec.CreatedAt,
	}
}
