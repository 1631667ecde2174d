// Package flowcontrol computes when a receiver should emit a WINDOW_UPDATE
// (component F): both the connection-level and per-stream windows use the
// same policy, generalized from a single "over half consumed" threshold
// (as in a plain receive-window tracker) into the proactive,
// buffer-aware policy spec §4.F requires.
package flowcontrol

// Window tracks a local (receiver-side) HTTP/2 flow-control window: bytes
// the peer may still send before it must wait for a WINDOW_UPDATE.
type Window struct {
	max          int32
	consumed     int32 // consumed-but-unacknowledged bytes
	pausedSender bool  // true once backpressure told the sender to pause
}

// NewWindow creates a window tracker with the given local maximum
// (INITIAL_WINDOW_SIZE for this stream or the connection).
func NewWindow(max int32) *Window {
	return &Window{max: max}
}

// OnConsumed records that the caller has consumed n bytes out of the
// receive window (handed them to the application / origin write).
func (w *Window) OnConsumed(n int32) {
	w.consumed += n
}

// SetPaused records whether an earlier pause was issued to the sender
// (client upload backpressure) so a later proactive update can be
// recognized as "unblocking" rather than routine.
func (w *Window) SetPaused(p bool) { w.pausedSender = p }

// Paused reports whether a pause is outstanding.
func (w *Window) Paused() bool { return w.pausedSender }

// Increment returns the WINDOW_UPDATE increment to emit now, or (0, false)
// if none is warranted yet. When it returns true, the local window is
// restored to max and the internal consumed counter is reset.
//
// A window update is warranted when either:
//   - consumed has grown large enough that leaving it unacknowledged
//     would materially reduce the sender's usable window (more than half
//     of max), or
//   - a pause was previously issued and enough has now been consumed to
//     lift it (avoids adding RTT latency to upload throughput by not
//     waiting for the window to fully drain before telling the sender it
//     may resume).
func (w *Window) Increment() (uint32, bool) {
	if w.consumed <= 0 {
		return 0, false
	}
	halfDrained := w.consumed*2 >= w.max
	if !halfDrained && !w.pausedSender {
		return 0, false
	}
	inc := w.consumed
	w.consumed = 0
	w.pausedSender = false
	//nolint:gosec // inc is bounded by max, which callers keep within int32 range
	return uint32(inc), true
}

// Max returns the configured local maximum.
func (w *Window) Max() int32 { return w.max }
