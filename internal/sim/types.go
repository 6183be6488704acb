package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/tanksim/internal/dynamo"
)

// Upper bounds on the work a single run may request. The trajectory holds
// one sample per tick, so MaxTicks also bounds its memory.
const (
	MaxTicks        = 10_000_000
	MaxStepsPerTick = 1_000_000
)

// Config holds the run parameters passed to Init.
type Config struct {
	SamplePeriod       float64 // T_s, control tick
	FineStep           float64 // dt_sim, upper bound on the integration step
	Duration           float64
	InitialTemperature float64
	ValidateState      bool
}

func DefaultConfig() Config {
	return Config{
		SamplePeriod:       1,
		FineStep:           0.1,
		Duration:           3600,
		InitialTemperature: 20,
		ValidateState:      true,
	}
}

func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"sample_period", c.SamplePeriod},
		{"fine_step_size", c.FineStep},
		{"run_duration", c.Duration},
		{"initial_temperature", c.InitialTemperature},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return dynamo.InvalidParameter(f.name, f.v, "must be finite")
		}
	}
	if c.SamplePeriod <= 0 {
		return dynamo.InvalidParameter("sample_period", c.SamplePeriod, "must be positive")
	}
	if c.FineStep <= 0 {
		return dynamo.InvalidParameter("fine_step_size", c.FineStep, "must be positive")
	}
	if c.FineStep > c.SamplePeriod {
		return dynamo.InvalidParameter("fine_step_size", c.FineStep, "must not exceed sample_period")
	}
	if c.Duration <= 0 {
		return dynamo.InvalidParameter("run_duration", c.Duration, "must be positive")
	}
	if c.Duration/c.SamplePeriod > MaxTicks {
		return dynamo.InvalidParameter("run_duration", c.Duration,
			fmt.Sprintf("needs more than %d ticks at sample_period %g", MaxTicks, c.SamplePeriod))
	}
	if c.SamplePeriod/c.FineStep > MaxStepsPerTick {
		return dynamo.InvalidParameter("fine_step_size", c.FineStep,
			fmt.Sprintf("needs more than %d steps per tick", MaxStepsPerTick))
	}
	return nil
}

// Ticks returns the number of control ticks needed to cover Duration.
func (c Config) Ticks() int {
	return int(math.Ceil(c.Duration/c.SamplePeriod - 1e-9))
}

// FineSteps returns the number of uniform integration steps per tick.
func (c Config) FineSteps() int {
	n := int(math.Ceil(c.SamplePeriod/c.FineStep - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// Progress is what stop conditions see before each tick.
type Progress struct {
	Last    dynamo.Sample
	Samples int
	Elapsed time.Duration
}

// StopCondition ends a run early. It returns a reason and true to stop.
type StopCondition func(p Progress) (string, bool)

// MaxSamples stops once the trajectory holds n samples.
func MaxSamples(n int) StopCondition {
	return func(p Progress) (string, bool) {
		if p.Samples >= n {
			return fmt.Sprintf("sample limit %d reached", n), true
		}
		return "", false
	}
}

// WallClock stops once Run has spent d of real time.
func WallClock(d time.Duration) StopCondition {
	return func(p Progress) (string, bool) {
		if p.Elapsed >= d {
			return fmt.Sprintf("wall-clock budget %s exhausted", d), true
		}
		return "", false
	}
}

// StopWhen stops as soon as pred holds for the latest sample.
func StopWhen(reason string, pred func(dynamo.Sample) bool) StopCondition {
	return func(p Progress) (string, bool) {
		if pred(p.Last) {
			return reason, true
		}
		return "", false
	}
}
