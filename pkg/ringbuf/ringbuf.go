package ringbuf

// Ringbuf is a circular buffer to calculate the running mean of a series.
type Ringbuf struct {
	buf []float64
	p   int
	s   int
	sum float64
}

func NewRingbuf(size int) *Ringbuf {
	return &Ringbuf{
		s: size,
	}
}

// Add appends v, displacing the oldest value once the buffer is full.
func (r *Ringbuf) Add(v float64) {
	if r.s <= 0 {
		return
	}
	if len(r.buf) < r.s {
		r.buf = append(r.buf, v)
		r.sum += v
		return
	}
	r.sum += v - r.buf[r.p]
	r.buf[r.p] = v
	r.p = (r.p + 1) % r.s
}

// Mean returns the average of the buffered values, NaN while empty.
func (r *Ringbuf) Mean() float64 {
	return r.sum / float64(len(r.buf))
}
