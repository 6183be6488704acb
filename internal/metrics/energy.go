package metrics

import "github.com/san-kum/tanksim/internal/dynamo"

// HeaterEnergy integrates the delivered heater power. Under a zero-order
// hold the sum is exact.
type HeaterEnergy struct {
	prev    dynamo.Sample
	started bool
	energy  float64
}

func NewHeaterEnergy() *HeaterEnergy {
	return &HeaterEnergy{}
}

func (h *HeaterEnergy) Name() string { return "heater_energy" }

func (h *HeaterEnergy) Observe(s dynamo.Sample) {
	if h.started {
		h.energy += s.Command * (s.Time - h.prev.Time)
	}
	h.prev = s
	h.started = true
}

func (h *HeaterEnergy) Value() float64 { return h.energy }

func (h *HeaterEnergy) Reset() {
	*h = HeaterEnergy{}
}
