package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/tanksim/internal/dynamo"
)

func feed(m dynamo.Metric, samples ...dynamo.Sample) float64 {
	for _, s := range samples {
		m.Observe(s)
	}
	return m.Value()
}

var run = []dynamo.Sample{
	{Time: 0, Temperature: 20, Command: 0, Setpoint: 25},
	{Time: 1, Temperature: 21, Command: 10, Setpoint: 25},
	{Time: 2, Temperature: 23, Command: 10, Setpoint: 25},
	{Time: 4, Temperature: 25, Command: 5, Setpoint: 25},
}

func TestHeaterEnergy(t *testing.T) {
	m := NewHeaterEnergy()
	if got := feed(m, run...); got != 30 {
		t.Errorf("expected 30 J, got %g", got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %g", m.Value())
	}
	if got := feed(m, run[:2]...); got != 10 {
		t.Errorf("expected 10 J after reset, got %g", got)
	}
}

func TestIntegralErrors(t *testing.T) {
	// errors 5, 4, 2, 0 at t = 0, 1, 2, 4
	iae := feed(NewIAE(), run...)
	if math.Abs(iae-(4.5+3+2)) > 1e-12 {
		t.Errorf("expected IAE 9.5, got %g", iae)
	}

	ise := feed(NewISE(), run...)
	if math.Abs(ise-(20.5+10+4)) > 1e-12 {
		t.Errorf("expected ISE 34.5, got %g", ise)
	}

	neg := feed(NewIAE(),
		dynamo.Sample{Time: 0, Temperature: 30, Setpoint: 25},
		dynamo.Sample{Time: 2, Temperature: 30, Setpoint: 25},
	)
	if neg != 10 {
		t.Errorf("IAE should count error above setpoint, got %g", neg)
	}
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	if got := feed(m, run...); math.Abs(got-25.0/3) > 1e-12 {
		t.Errorf("expected mean effort 25/3, got %g", got)
	}
	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %g", m.Value())
	}
}

func TestSaturation(t *testing.T) {
	m := NewSaturation(0, 10)
	if got := feed(m, run...); math.Abs(got-2.0/3) > 1e-12 {
		t.Errorf("expected 2/3 of intervals saturated, got %g", got)
	}
}

func TestDefaultsHaveDistinctNames(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Defaults(0, 10) {
		if seen[m.Name()] {
			t.Errorf("duplicate metric name %s", m.Name())
		}
		seen[m.Name()] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 metrics, got %d", len(seen))
	}
}
