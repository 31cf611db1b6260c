package storage

// countRing is a bounded FIFO of ints.
//
// It grows lazily up to limit and then overwrites the oldest slot, so a push is
// O(1). Changing the limit re-packs the buffer once.
type countRing struct {
	buf   []int
	head  int // index of the oldest value once the ring is full
	n     int
	limit int
}

func (r *countRing) push(v, limit int) {
	if limit != r.limit {
		r.resize(limit)
	}
	if r.n < r.limit {
		// Not full yet: head stays 0 and buf holds exactly n values.
		r.buf = append(r.buf, v)
		r.n++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.limit
}

func (r *countRing) resize(limit int) {
	vals := r.values()
	if len(vals) > limit {
		vals = vals[len(vals)-limit:]
	}
	r.buf = append(make([]int, 0, len(vals)), vals...)
	r.head = 0
	r.n = len(vals)
	r.limit = limit
}

// values returns a copy, oldest first.
func (r *countRing) values() []int {
	out := make([]int, r.n)
	if r.n == 0 {
		return out
	}
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// restoreRing rebuilds a ring from persisted values (oldest first).
func restoreRing(vals []int, limit int) countRing {
	r := countRing{buf: append([]int(nil), vals...), n: len(vals), limit: len(vals)}
	if limit > 0 && limit != r.limit {
		r.resize(limit)
	}
	return r
}
