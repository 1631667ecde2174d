package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamOpenedClosedTracksInFlightAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(streamsInFlight)

	StreamOpened()
	if got := testutil.ToFloat64(streamsInFlight); got != before+1 {
		t.Errorf("streams_in_flight after StreamOpened = %v, want %v", got, before+1)
	}

	StreamClosed(OutcomeReset)
	if got := testutil.ToFloat64(streamsInFlight); got != before {
		t.Errorf("streams_in_flight after StreamClosed = %v, want %v", got, before)
	}
	if got := testutil.ToFloat64(streamsTotal.WithLabelValues(string(OutcomeReset))); got < 1 {
		t.Errorf("streams_total{outcome=reset} = %v, want >= 1", got)
	}
}

func TestWindowUpdateSent(t *testing.T) {
	before := testutil.ToFloat64(windowUpdatesTotal.WithLabelValues("stream"))
	WindowUpdateSent("stream")
	after := testutil.ToFloat64(windowUpdatesTotal.WithLabelValues("stream"))
	if after != before+1 {
		t.Errorf("window_updates_total{scope=stream} = %v, want %v", after, before+1)
	}
}
