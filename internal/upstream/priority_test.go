package upstream

import "testing"

func TestDefaultPriority(t *testing.T) {
	if DefaultPriority.Weight != 15 {
		t.Errorf("DefaultPriority.Weight = %d, want 15 (RFC 7540's default)", DefaultPriority.Weight)
	}
	if DefaultPriority.StreamDependency != 0 || DefaultPriority.Exclusive {
		t.Errorf("DefaultPriority should have no dependency and not be exclusive, got %+v", DefaultPriority)
	}
}

func TestChangePriorityStoresValueOnly(t *testing.T) {
	s := NewStream(1, DefaultPriority, 65535)
	updated := Priority{StreamDependency: 3, Weight: 200, Exclusive: true}
	s.ChangePriority(updated)
	if s.Priority != updated {
		t.Errorf("Priority = %+v, want %+v", s.Priority, updated)
	}
}
