package control

// Manual holds a fixed heater power. It is the open-loop controller: the
// measurement is ignored and Set changes the power between ticks.
type Manual struct {
	initial      float64
	power        float64
	min, max     float64
	samplePeriod float64
}

func NewManual(power, min, max, samplePeriod float64) *Manual {
	m := &Manual{min: min, max: max, samplePeriod: samplePeriod}
	m.initial = clamp(power, min, max)
	m.power = m.initial
	return m
}

// Set updates the power, clamped to the output limits.
func (m *Manual) Set(power float64) {
	m.power = clamp(power, m.min, m.max)
}

func (m *Manual) Power() float64 { return m.power }

func (m *Manual) SamplePeriod() float64 { return m.samplePeriod }

func (m *Manual) Compute(setpoint, measured float64) float64 {
	return m.power
}

// Reset restores the power given at construction.
func (m *Manual) Reset() {
	m.power = m.initial
}
