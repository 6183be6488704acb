package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

type Difference struct {
	MaxAbs  float64 `json:"max_abs"`
	RMS     float64 `json:"rms"`
	WorstAt float64 `json:"worst_at"`
	Samples int     `json:"samples"`
}

// Compare returns the temperature difference between two runs. Both must
// share the same time grid.
func Compare(a, b dynamo.Trajectory) (Difference, error) {
	if len(a) != len(b) {
		return Difference{}, fmt.Errorf("analysis: trajectories differ in length: %d vs %d", len(a), len(b))
	}
	var d Difference
	sum := 0.0
	for i := range a {
		if math.Abs(a[i].Time-b[i].Time) > 1e-9*math.Max(1, math.Abs(a[i].Time)) {
			return Difference{}, fmt.Errorf("analysis: time grids differ at sample %d: %g vs %g", i, a[i].Time, b[i].Time)
		}
		diff := math.Abs(a[i].Temperature - b[i].Temperature)
		if diff > d.MaxAbs {
			d.MaxAbs = diff
			d.WorstAt = a[i].Time
		}
		sum += diff * diff
	}
	d.Samples = len(a)
	if d.Samples > 0 {
		d.RMS = math.Sqrt(sum / float64(d.Samples))
	}
	return d, nil
}

// AgainstReference compares tr with the exact temperature at each sample
// time.
func AgainstReference(tr dynamo.Trajectory, exact func(t float64) float64) Difference {
	ref := make(dynamo.Trajectory, len(tr))
	for i, s := range tr {
		ref[i] = dynamo.Sample{Time: s.Time, Temperature: exact(s.Time)}
	}
	d, _ := Compare(tr, ref)
	return d
}

// Order estimates the convergence order p from errors at step sizes h and
// h/refinement: coarse/fine ≈ refinement^p.
func Order(coarse, fine, refinement float64) float64 {
	if fine <= 0 || coarse <= 0 || refinement <= 1 {
		return math.NaN()
	}
	return math.Log(coarse/fine) / math.Log(refinement)
}
