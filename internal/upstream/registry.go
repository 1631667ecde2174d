package upstream

// Registry maps stream-id to *Stream (component B). The session drives it
// from a single goroutine per connection, so unlike the teacher's
// concurrent-safe manager this needs no lock (see DESIGN.md).
type Registry struct {
	streams       map[uint32]*Stream
	activeStreams uint32
	maxStreams    uint32
}

// NewRegistry creates an empty registry with the given concurrent-stream
// cap (MAX_CONCURRENT_STREAMS).
func NewRegistry(maxStreams uint32) *Registry {
	return &Registry{
		streams:    make(map[uint32]*Stream),
		maxStreams: maxStreams,
	}
}

// TryOpen inserts a new stream if the concurrency cap allows it. Returns
// false if the cap would be exceeded, in which case the stream is not
// registered and the caller must refuse it (RST_STREAM REFUSED_STREAM).
func (r *Registry) TryOpen(s *Stream) bool {
	if r.activeStreams >= r.maxStreams {
		return false
	}
	s.registry = r
	r.streams[s.ID] = s
	r.activeStreams++
	return true
}

// Find returns the stream for id, or nil if none is registered.
func (r *Registry) Find(id uint32) *Stream {
	return r.streams[id]
}

// Remove deletes the stream for id, decrementing the active count. Safe
// to call even if id is unknown (idempotent from the caller's view, per
// spec §4.B, since the codec guarantees exactly one close per id).
func (r *Registry) Remove(id uint32) {
	if _, ok := r.streams[id]; !ok {
		return
	}
	delete(r.streams, id)
	if r.activeStreams > 0 {
		r.activeStreams--
	}
}

// Count returns the number of currently registered streams.
func (r *Registry) Count() int { return len(r.streams) }

// ActiveCount returns the number of streams counted against the
// concurrency cap.
func (r *Registry) ActiveCount() uint32 { return r.activeStreams }

// SetMaxConcurrentStreams updates the concurrency cap (e.g. from a config
// reload or renegotiated SETTINGS).
func (r *Registry) SetMaxConcurrentStreams(n uint32) { r.maxStreams = n }

// MaxConcurrentStreams returns the configured cap.
func (r *Registry) MaxConcurrentStreams() uint32 { return r.maxStreams }

// Each iterates all registered streams; iteration order is unspecified,
// matching spec §4.B's "iteration order is not observed by the protocol".
func (r *Registry) Each(fn func(*Stream)) {
	for _, s := range r.streams {
		fn(s)
	}
}
