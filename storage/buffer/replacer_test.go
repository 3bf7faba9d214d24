package buffer

import "testing"

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(4)

	r.RecordAccess(0) // a
	r.RecordAccess(1) // b
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Victim()
	if !ok || victim != 0 {
		t.Fatalf("expected victim 0 (least recently used), got %d ok=%v", victim, ok)
	}

	victim, ok = r.Victim()
	if !ok || victim != 1 {
		t.Fatalf("expected victim 1, got %d ok=%v", victim, ok)
	}

	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no evictable frames left")
	}
}

func TestLRUReplacerOnlyEvictableCandidates(t *testing.T) {
	r := NewLRUReplacer(4)

	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Victim()
	if !ok || victim != 1 {
		t.Fatalf("expected only evictable frame 1 to be a candidate, got %d ok=%v", victim, ok)
	}
}

func TestLRUReplacerSetEvictableFalseRemovesCandidate(t *testing.T) {
	r := NewLRUReplacer(4)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	r.SetEvictable(0, false)

	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no victim after un-marking evictable")
	}
}

func TestLRUReplacerReAccessMovesToFront(t *testing.T) {
	r := NewLRUReplacer(4)

	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(0) // re-access 0, now 1 is LRU
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Victim()
	if !ok || victim != 1 {
		t.Fatalf("expected victim 1 after re-accessing 0, got %d ok=%v", victim, ok)
	}
}
