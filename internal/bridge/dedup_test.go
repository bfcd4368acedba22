package bridge

import "testing"

func TestDedupSeen(t *testing.T) {
	d := newDedup(10)

	if d.Seen(1) {
		t.Error("Seen(1) = true on first sight, want false")
	}
	if !d.Seen(1) {
		t.Error("Seen(1) = false on second sight, want true")
	}
	if d.Seen(2) {
		t.Error("Seen(2) = true on first sight, want false")
	}
}

func TestDedupZeroIDNeverRecorded(t *testing.T) {
	d := newDedup(10)

	if d.Seen(0) {
		t.Error("Seen(0) = true, want false")
	}
	if d.Seen(0) {
		t.Error("Seen(0) = true on repeat, want false")
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d after zero ids, want 0", d.Len())
	}
}

func TestDedupEvictsOldest(t *testing.T) {
	d := newDedup(3)

	d.Seen(1)
	d.Seen(2)
	d.Seen(3)

	// Recording a fourth id evicts the oldest (1).
	if d.Seen(4) {
		t.Error("Seen(4) = true on first sight, want false")
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want capacity 3", d.Len())
	}
	if d.Seen(1) {
		t.Error("Seen(1) = true after eviction, want false")
	}

	// 3 and 4 are still tracked; re-recording 1 evicted 2.
	if !d.Seen(3) {
		t.Error("Seen(3) = false, want true")
	}
	if !d.Seen(4) {
		t.Error("Seen(4) = false, want true")
	}
}

func TestDedupDisabled(t *testing.T) {
	d := newDedup(0)

	if d.Seen(1) || d.Seen(1) {
		t.Error("Seen() = true with capacity 0, want always false")
	}
}

func TestDedupBoundedUnderChurn(t *testing.T) {
	d := newDedup(100)

	for id := int64(1); id <= 10000; id++ {
		d.Seen(id)
	}
	if d.Len() != 100 {
		t.Errorf("Len() = %d after churn, want 100", d.Len())
	}
}
