package flowcontrol

import "testing"

func TestIncrementRequiresConsumption(t *testing.T) {
	w := NewWindow(1000)
	if _, ok := w.Increment(); ok {
		t.Fatal("expected no increment before any bytes are consumed")
	}
}

func TestIncrementBelowHalfDoesNotFire(t *testing.T) {
	w := NewWindow(1000)
	w.OnConsumed(400)
	if _, ok := w.Increment(); ok {
		t.Fatal("expected no increment below half the window")
	}
}

func TestIncrementAtHalfFiresAndResets(t *testing.T) {
	w := NewWindow(1000)
	w.OnConsumed(500)
	inc, ok := w.Increment()
	if !ok || inc != 500 {
		t.Fatalf("Increment() = (%d, %v), want (500, true)", inc, ok)
	}
	if _, ok := w.Increment(); ok {
		t.Fatal("expected consumed counter to reset after Increment")
	}
}

func TestPausedSenderLowersThreshold(t *testing.T) {
	w := NewWindow(1000)
	w.SetPaused(true)
	w.OnConsumed(1)
	inc, ok := w.Increment()
	if !ok || inc != 1 {
		t.Fatalf("Increment() = (%d, %v), want (1, true) once a pause is outstanding", inc, ok)
	}
	if w.Paused() {
		t.Error("expected Increment to clear the pause flag")
	}
}

func TestMax(t *testing.T) {
	w := NewWindow(65535)
	if w.Max() != 65535 {
		t.Errorf("Max() = %d, want 65535", w.Max())
	}
}
