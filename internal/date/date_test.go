package date

import (
	"testing"
	"time"
)

func TestCurrentAfterStartTicker(t *testing.T) {
	stop := StartTicker()
	defer stop()

	got := string(Current())
	if _, err := time.Parse(time.RFC1123, got); err != nil {
		t.Errorf("Current() = %q, not a valid RFC1123 date: %v", got, err)
	}
}

func TestCurrentFallsBackBeforeStart(t *testing.T) {
	got := Current()
	if len(got) == 0 {
		t.Error("expected a non-empty fallback date before StartTicker is called")
	}
}
