package resource

// ring keeps the last n values pushed.
type ring struct {
	buf   []float64
	next  int
	count int
}

func newRing(n int) *ring {
	return &ring{buf: make([]float64, max(1, n))}
}

func (r *ring) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) reset() {
	r.next = 0
	r.count = 0
}

// values returns a copy, oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
