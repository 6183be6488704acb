package analysis

import (
	"errors"
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

var ErrNoStep = errors.New("analysis: trajectory has no step to analyse")

// StepResponse summarises the response to a setpoint step. Times are
// relative to the first sample.
type StepResponse struct {
	Initial          float64 `json:"initial"`
	Target           float64 `json:"target"`
	RiseTime         float64 `json:"rise_time"` // 10% to 90%
	Peak             float64 `json:"peak"`
	PeakTime         float64 `json:"peak_time"`
	Overshoot        float64 `json:"overshoot_pct"`
	SettlingTime     float64 `json:"settling_time"`
	Settled          bool    `json:"settled"`
	SteadyStateError float64 `json:"steady_state_error"`
}

// Step analyses tr as a step from its first temperature to target. band is
// the settling band as a fraction of the step size, e.g. 0.02.
func Step(tr dynamo.Trajectory, target, band float64) (StepResponse, error) {
	if len(tr) < 2 {
		return StepResponse{}, ErrNoStep
	}
	y0 := tr[0].Temperature
	span := target - y0
	if span == 0 || math.IsNaN(span) {
		return StepResponse{}, ErrNoStep
	}

	t0 := tr[0].Time
	res := StepResponse{Initial: y0, Target: target, Peak: y0}

	var t10, t90 = math.NaN(), math.NaN()
	best := 0.0
	lastOutside := -1
	for i, s := range tr {
		progress := (s.Temperature - y0) / span
		if math.IsNaN(t10) && progress >= 0.1 {
			t10 = s.Time
		}
		if math.IsNaN(t90) && progress >= 0.9 {
			t90 = s.Time
		}
		if progress > best {
			best = progress
			res.Peak = s.Temperature
			res.PeakTime = s.Time - t0
		}
		if math.Abs(s.Temperature-target) > band*math.Abs(span) {
			lastOutside = i
		}
	}

	if !math.IsNaN(t10) && !math.IsNaN(t90) {
		res.RiseTime = t90 - t10
	} else {
		res.RiseTime = math.NaN()
	}
	res.Overshoot = math.Max(0, best-1) * 100

	switch {
	case lastOutside == len(tr)-1:
		res.SettlingTime = math.NaN()
	case lastOutside < 0:
		res.Settled = true
	default:
		res.Settled = true
		res.SettlingTime = tr[lastOutside+1].Time - t0
	}

	res.SteadyStateError = target - tr.Last().Temperature
	return res, nil
}

// Window returns the samples with from <= Time < to.
func Window(tr dynamo.Trajectory, from, to float64) dynamo.Trajectory {
	var out dynamo.Trajectory
	for _, s := range tr {
		if s.Time >= from && s.Time < to {
			out = append(out, s)
		}
	}
	return out
}
