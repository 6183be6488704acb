package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// TimeConstanter is implemented by first-order plants that can report their
// characteristic time constant. +Inf means the plant has no restoring term.
type TimeConstanter interface {
	TimeConstant() float64
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// StabilityLimiter is implemented by explicit schemes that know the largest
// stable step for a linear decay with time constant tau.
type StabilityLimiter interface {
	StableStep(tau float64) float64
}

// Controller computes one command per control tick. Each call advances the
// controller's internal state exactly once.
type Controller interface {
	Compute(setpoint, measured float64) float64
	Reset()
}

// Actuator turns a controller command into the input applied to the plant.
// Hold is called once per control tick; Output is read for every fine step.
type Actuator interface {
	Hold(u float64)
	Output() float64
	Reset()
}

type Setpoint interface {
	At(t float64) float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

type Status int

const (
	StatusUninitialized Status = iota
	StatusRunning
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Sample is one trajectory point. Command and Setpoint are the values that
// were in force over the control interval ending at Time.
type Sample struct {
	Time        float64 `json:"t"`
	Temperature float64 `json:"temperature"`
	Command     float64 `json:"command"`
	Setpoint    float64 `json:"setpoint"`
}

type Trajectory []Sample

func (tr Trajectory) Times() []float64 {
	out := make([]float64, len(tr))
	for i, s := range tr {
		out[i] = s.Time
	}
	return out
}

func (tr Trajectory) Temperatures() []float64 {
	out := make([]float64, len(tr))
	for i, s := range tr {
		out[i] = s.Temperature
	}
	return out
}

func (tr Trajectory) Commands() []float64 {
	out := make([]float64, len(tr))
	for i, s := range tr {
		out[i] = s.Command
	}
	return out
}

func (tr Trajectory) Setpoints() []float64 {
	out := make([]float64, len(tr))
	for i, s := range tr {
		out[i] = s.Setpoint
	}
	return out
}

// Last returns the final sample, or a zero Sample for an empty trajectory.
func (tr Trajectory) Last() Sample {
	if len(tr) == 0 {
		return Sample{}
	}
	return tr[len(tr)-1]
}

type Result struct {
	Trajectory Trajectory
	Status     Status
	StopReason string
	Warnings   []InstabilityWarning
	Metrics    map[string]float64
	Ticks      int
	FineSteps  int
}
