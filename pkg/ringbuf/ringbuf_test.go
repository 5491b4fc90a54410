package ringbuf

import (
	"testing"

	"github.com/carlmjohnson/be"
)

func TestRingbufPartiallyFilled(t *testing.T) {
	r := NewRingbuf(4)
	r.Add(1)
	r.Add(3)
	be.Equal(t, 2, r.Mean())
}

func TestRingbufDisplacesOldest(t *testing.T) {
	r := NewRingbuf(3)
	for _, v := range []float64{10, 20, 30} {
		r.Add(v)
	}
	be.Equal(t, 20, r.Mean())

	r.Add(60) // displaces 10
	be.Equal(t, float64(20+30+60)/3, r.Mean())

	r.Add(90) // displaces 20
	be.Equal(t, 60, r.Mean())
}

func TestRingbufZeroSize(t *testing.T) {
	r := NewRingbuf(0)
	r.Add(1)
	r.Add(2)
	be.Equal(t, 0, len(r.buf))
}
