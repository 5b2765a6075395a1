// Package sms delivers donor alerts. Delivery is best effort; callers bound each Send with a context deadline.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bloodbridge/platform/pkg/common/logger"
)

var ErrInvalidNumber = errors.New("invalid phone number")

type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// LogSender writes messages to the log instead of a carrier. Used in development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, phone, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Log.WithFields(map[string]interface{}{
		"phone":  maskPhone(phone),
		"length": len(text),
	}).Info("[SMS] message logged")
	return nil
}

func validatePhone(phone string) error {
	digits := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if len(digits) < 7 {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, maskPhone(phone))
	}
	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidNumber, maskPhone(phone))
		}
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
