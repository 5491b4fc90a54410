package main

import (
	"math"
	"sync"
)

// Measurement shares the smoothed meter power between go-routines. Like an
// "Optional" type it can be set to hold currently no value.
type Measurement struct {
	m     sync.RWMutex
	value float64
	valid bool
}

func (o *Measurement) SetInvalid() {
	o.m.Lock()
	defer o.m.Unlock()
	o.valid = false
	o.value = 0.0
}

func (o *Measurement) Set(v float64) {
	o.m.Lock()
	defer o.m.Unlock()
	o.value = v
	o.valid = true
}

func (o *Measurement) Get() (value float64, valid bool) {
	o.m.RLock()
	defer o.m.RUnlock()
	if !o.valid {
		return 0.0, false
	}
	return o.value, true
}

// limitStep rounds the controller output to a whole ampere within the
// charger's allowed range. Rounding keeps marginal controller movement from
// producing config writes.
func limitStep(out float64, min, max int) int {
	limit := int(math.Round(out))
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
