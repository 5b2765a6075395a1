package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/sms"
)

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(ctx context.Context, phone, text string) error {
	s.calls++
	return s.err
}

func smsEvent(data map[string]interface{}) models.Event {
	return models.Event{ID: "e1", Type: sms.EventSMSRequested, Data: data}
}

func TestRelayHandle(t *testing.T) {
	valid := map[string]interface{}{"to": "+15550000001", "text": "hello"}

	cases := []struct {
		name    string
		event   models.Event
		sendErr error
		calls   int
		wantErr bool
	}{
		{"delivered", smsEvent(valid), nil, 1, false},
		{"other event type", models.Event{Type: "notification.created", Data: valid}, nil, 0, false},
		{"malformed", smsEvent(map[string]interface{}{"to": "+15550000001"}), nil, 0, false},
		{"invalid number", smsEvent(valid), fmt.Errorf("%w: bad", sms.ErrInvalidNumber), 1, false},
		{"gateway down", smsEvent(valid), errors.New("503"), 1, true},
	}

	for _, tc := range cases {
		sender := &stubSender{err: tc.sendErr}
		r := &relay{sender: sender, timeout: time.Second}

		err := r.handle(context.Background(), tc.event)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if sender.calls != tc.calls {
			t.Fatalf("%s: expected %d sends, got %d", tc.name, tc.calls, sender.calls)
		}
	}
}
