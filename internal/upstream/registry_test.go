package upstream

import "testing"

func TestTryOpenEnforcesConcurrencyCap(t *testing.T) {
	r := NewRegistry(2)
	s1 := NewStream(1, DefaultPriority, 65535)
	s2 := NewStream(3, DefaultPriority, 65535)
	s3 := NewStream(5, DefaultPriority, 65535)

	if !r.TryOpen(s1) {
		t.Fatal("expected first stream to open")
	}
	if !r.TryOpen(s2) {
		t.Fatal("expected second stream to open")
	}
	if r.TryOpen(s3) {
		t.Fatal("expected third stream to be refused at the concurrency cap")
	}
	if r.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", r.ActiveCount())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(10)
	s := NewStream(1, DefaultPriority, 65535)
	r.TryOpen(s)

	r.Remove(1)
	if r.Find(1) != nil {
		t.Error("expected stream to be gone after Remove")
	}
	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", r.ActiveCount())
	}

	r.Remove(1) // must not panic or underflow
	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount() after double Remove = %d, want 0", r.ActiveCount())
	}
}

func TestRemoveFreesConcurrencySlot(t *testing.T) {
	r := NewRegistry(1)
	s1 := NewStream(1, DefaultPriority, 65535)
	r.TryOpen(s1)
	r.Remove(1)

	s2 := NewStream(3, DefaultPriority, 65535)
	if !r.TryOpen(s2) {
		t.Error("expected removing a stream to free a concurrency slot")
	}
}

func TestEachVisitsAllStreams(t *testing.T) {
	r := NewRegistry(10)
	ids := []uint32{1, 3, 5}
	for _, id := range ids {
		r.TryOpen(NewStream(id, DefaultPriority, 65535))
	}
	seen := make(map[uint32]bool)
	r.Each(func(s *Stream) { seen[s.ID] = true })
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("Each did not visit stream %d", id)
		}
	}
}
