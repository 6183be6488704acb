package metrics

import (
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

// integralError integrates a function of the tracking error with the
// trapezoidal rule.
type integralError struct {
	name    string
	f       func(e float64) float64
	prev    dynamo.Sample
	started bool
	sum     float64
}

func (m *integralError) Name() string { return m.name }

func (m *integralError) Observe(s dynamo.Sample) {
	if m.started {
		a := m.f(m.prev.Setpoint - m.prev.Temperature)
		b := m.f(s.Setpoint - s.Temperature)
		m.sum += 0.5 * (a + b) * (s.Time - m.prev.Time)
	}
	m.prev = s
	m.started = true
}

func (m *integralError) Value() float64 { return m.sum }

func (m *integralError) Reset() {
	m.prev = dynamo.Sample{}
	m.started = false
	m.sum = 0
}

// NewIAE returns the integral of absolute error.
func NewIAE() dynamo.Metric {
	return &integralError{name: "iae", f: math.Abs}
}

// NewISE returns the integral of squared error.
func NewISE() dynamo.Metric {
	return &integralError{name: "ise", f: func(e float64) float64 { return e * e }}
}
