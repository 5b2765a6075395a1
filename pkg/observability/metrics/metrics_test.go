package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWritePrometheus(t *testing.T) {
	before := Read()
	ObserveDispatch(3, 2, 1)
	ObserveRedemption("already_used")
	ObserveRedemption("bogus")

	after := Read()
	if after.Dispatches != before.Dispatches+1 || after.DonorsMatched != before.DonorsMatched+3 {
		t.Fatalf("dispatch counters not updated: %+v", after)
	}
	if after.RedeemAlreadyUsed != before.RedeemAlreadyUsed+1 {
		t.Fatalf("already_used counter not updated: %+v", after)
	}

	rec := httptest.NewRecorder()
	WritePrometheus(rec)
	body := rec.Body.String()
	for _, want := range []string{
		"bloodbridge_dispatch_requests_total",
		"bloodbridge_token_redemptions_total{outcome=\"expired\"}",
		"bloodbridge_live_subscribers",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
}
