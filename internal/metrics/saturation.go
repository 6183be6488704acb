package metrics

import (
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

// Saturation is the fraction of control intervals spent at either power
// limit.
type Saturation struct {
	min, max  float64
	tol       float64
	intervals int
	saturated int
	started   bool
}

func NewSaturation(min, max float64) *Saturation {
	return &Saturation{min: min, max: max, tol: 1e-9 * math.Max(1, max-min)}
}

func (s *Saturation) Name() string { return "saturation" }

func (s *Saturation) Observe(sample dynamo.Sample) {
	if !s.started {
		s.started = true
		return
	}
	s.intervals++
	if sample.Command <= s.min+s.tol || sample.Command >= s.max-s.tol {
		s.saturated++
	}
}

func (s *Saturation) Value() float64 {
	if s.intervals == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.intervals)
}

func (s *Saturation) Reset() {
	s.intervals = 0
	s.saturated = 0
	s.started = false
}

// Defaults returns the metrics attached to every experiment run.
func Defaults(minPower, maxPower float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewIAE(),
		NewISE(),
		NewHeaterEnergy(),
		NewControlEffort(),
		NewSaturation(minPower, maxPower),
	}
}
