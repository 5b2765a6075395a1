package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	dispatchesTotal     atomic.Int64
	donorsMatchedTotal  atomic.Int64
	smsSentTotal        atomic.Int64
	smsFailedTotal      atomic.Int64
	redeemSuccess       atomic.Int64
	redeemNotFound      atomic.Int64
	redeemExpired       atomic.Int64
	redeemAlreadyUsed   atomic.Int64
	liveSubscribers     atomic.Int64
	liveDeliveriesTotal atomic.Int64
)

func ObserveDispatch(matched, sent, failed int) {
	dispatchesTotal.Add(1)
	donorsMatchedTotal.Add(int64(matched))
	smsSentTotal.Add(int64(sent))
	smsFailedTotal.Add(int64(failed))
}

// ObserveRedemption counts a redemption outcome: "ok", "not_found", "expired" or "already_used".
func ObserveRedemption(outcome string) {
	switch outcome {
	case "ok":
		redeemSuccess.Add(1)
	case "not_found":
		redeemNotFound.Add(1)
	case "expired":
		redeemExpired.Add(1)
	case "already_used":
		redeemAlreadyUsed.Add(1)
	}
}

func ObserveLiveSubscribers(n int) {
	liveSubscribers.Store(int64(n))
}

func ObserveLiveDelivered(n int) {
	liveDeliveriesTotal.Add(int64(n))
}

type Snapshot struct {
	Dispatches        int64
	DonorsMatched     int64
	SMSSent           int64
	SMSFailed         int64
	RedeemSuccess     int64
	RedeemNotFound    int64
	RedeemExpired     int64
	RedeemAlreadyUsed int64
	LiveSubscribers   int64
	LiveDeliveries    int64
}

func Read() Snapshot {
	return Snapshot{
		Dispatches:        dispatchesTotal.Load(),
		DonorsMatched:     donorsMatchedTotal.Load(),
		SMSSent:           smsSentTotal.Load(),
		SMSFailed:         smsFailedTotal.Load(),
		RedeemSuccess:     redeemSuccess.Load(),
		RedeemNotFound:    redeemNotFound.Load(),
		RedeemExpired:     redeemExpired.Load(),
		RedeemAlreadyUsed: redeemAlreadyUsed.Load(),
		LiveSubscribers:   liveSubscribers.Load(),
		LiveDeliveries:    liveDeliveriesTotal.Load(),
	}
}

func Handler(w http.ResponseWriter, r *http.Request) {
	WritePrometheus(w)
}

func WritePrometheus(w http.ResponseWriter) {
	s := Read()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP bloodbridge_dispatch_requests_total Blood requests dispatched.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_dispatch_requests_total counter\n")
	fmt.Fprintf(w, "bloodbridge_dispatch_requests_total %d\n", s.Dispatches)

	fmt.Fprintf(w, "# HELP bloodbridge_dispatch_donors_matched_total Compatible donors matched across dispatches.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_dispatch_donors_matched_total counter\n")
	fmt.Fprintf(w, "bloodbridge_dispatch_donors_matched_total %d\n", s.DonorsMatched)

	fmt.Fprintf(w, "# HELP bloodbridge_sms_sent_total SMS messages accepted by the transport.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_sms_sent_total counter\n")
	fmt.Fprintf(w, "bloodbridge_sms_sent_total %d\n", s.SMSSent)

	fmt.Fprintf(w, "# HELP bloodbridge_sms_failed_total SMS messages the transport failed or timed out on.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_sms_failed_total counter\n")
	fmt.Fprintf(w, "bloodbridge_sms_failed_total %d\n", s.SMSFailed)

	fmt.Fprintf(w, "# HELP bloodbridge_token_redemptions_total Response token redemptions by outcome.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_token_redemptions_total counter\n")
	fmt.Fprintf(w, "bloodbridge_token_redemptions_total{outcome=\"ok\"} %d\n", s.RedeemSuccess)
	fmt.Fprintf(w, "bloodbridge_token_redemptions_total{outcome=\"not_found\"} %d\n", s.RedeemNotFound)
	fmt.Fprintf(w, "bloodbridge_token_redemptions_total{outcome=\"expired\"} %d\n", s.RedeemExpired)
	fmt.Fprintf(w, "bloodbridge_token_redemptions_total{outcome=\"already_used\"} %d\n", s.RedeemAlreadyUsed)

	fmt.Fprintf(w, "# HELP bloodbridge_live_subscribers Open live-update connections.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_live_subscribers gauge\n")
	fmt.Fprintf(w, "bloodbridge_live_subscribers %d\n", s.LiveSubscribers)

	fmt.Fprintf(w, "# HELP bloodbridge_live_deliveries_total Live events accepted by subscriber connections.\n")
	fmt.Fprintf(w, "# TYPE bloodbridge_live_deliveries_total counter\n")
	fmt.Fprintf(w, "bloodbridge_live_deliveries_total %d\n", s.LiveDeliveries)
}
