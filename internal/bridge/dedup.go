package bridge

// dedup is a bounded set of recently seen packet ids. When full, recording
// a new id evicts the oldest recorded one, so the memory footprint is
// fixed regardless of uptime.
//
// Not safe for concurrent use; the controller calls it from a single
// goroutine.
type dedup struct {
	capacity int
	seen     map[int64]struct{}
	order    []int64
	next     int
}

// newDedup creates a dedup cache holding up to capacity ids.
// A capacity of 0 disables duplicate suppression.
func newDedup(capacity int) *dedup {
	d := &dedup{capacity: capacity}
	if capacity > 0 {
		d.seen = make(map[int64]struct{}, capacity)
		d.order = make([]int64, 0, capacity)
	}
	return d
}

// Seen reports whether id was already recorded, recording it if not.
// The zero id is never recorded: packets without an id cannot be
// distinguished from each other.
func (d *dedup) Seen(id int64) bool {
	if d.capacity == 0 || id == 0 {
		return false
	}
	if _, ok := d.seen[id]; ok {
		return true
	}

	if len(d.order) < d.capacity {
		d.order = append(d.order, id)
	} else {
		delete(d.seen, d.order[d.next])
		d.order[d.next] = id
		d.next = (d.next + 1) % d.capacity
	}
	d.seen[id] = struct{}{}
	return false
}

// Len returns the number of ids currently recorded.
func (d *dedup) Len() int {
	return len(d.seen)
}
