// Package setpoint provides time-varying temperature setpoints.
package setpoint

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/tanksim/internal/dynamo"
)

type Constant float64

func (c Constant) At(t float64) float64 { return float64(c) }

// Func adapts a plain function to dynamo.Setpoint.
type Func func(t float64) float64

func (f Func) At(t float64) float64 { return f(t) }

type Step struct {
	At    float64 `yaml:"at" json:"at"`
	Value float64 `yaml:"value" json:"value"`
}

// Steps is piecewise constant: Initial until the first step, then each
// step's value from its time on.
type Steps struct {
	Initial float64
	steps   []Step
}

func NewSteps(initial float64, steps ...Step) *Steps {
	sorted := append([]Step(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	return &Steps{Initial: initial, steps: sorted}
}

func (s *Steps) At(t float64) float64 {
	v := s.Initial
	for _, st := range s.steps {
		if t < st.At {
			break
		}
		v = st.Value
	}
	return v
}

func (s *Steps) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// Ramp moves linearly from From to To between Start and End and is flat
// outside that window.
type Ramp struct {
	From, To   float64
	Start, End float64
}

func (r Ramp) At(t float64) float64 {
	switch {
	case t <= r.Start:
		return r.From
	case t >= r.End:
		return r.To
	}
	return r.From + (r.To-r.From)*(t-r.Start)/(r.End-r.Start)
}

// Spec is the serialisable description of a schedule.
type Spec struct {
	Type  string  `yaml:"type,omitempty" json:"type,omitempty"`
	Value float64 `yaml:"value" json:"value"`
	Steps []Step  `yaml:"steps,omitempty" json:"steps,omitempty"`
	To    float64 `yaml:"to,omitempty" json:"to,omitempty"`
	Start float64 `yaml:"start,omitempty" json:"start,omitempty"`
	End   float64 `yaml:"end,omitempty" json:"end,omitempty"`
}

// UnmarshalYAML accepts either a bare number, meaning a constant setpoint,
// or the full mapping.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = Spec{Value: v}
		return nil
	}
	type plain Spec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Spec(p)
	return nil
}

const (
	TypeConstant = "constant"
	TypeSteps    = "steps"
	TypeRamp     = "ramp"
)

// Build validates the spec and returns the schedule it describes. An empty
// Type means a constant Value.
func (s Spec) Build() (dynamo.Setpoint, error) {
	values := []float64{s.Value, s.To, s.Start, s.End}
	for _, st := range s.Steps {
		values = append(values, st.At, st.Value)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, dynamo.InvalidParameter("setpoint_schedule", v, "must be finite")
		}
	}

	switch s.Type {
	case "", TypeConstant:
		return Constant(s.Value), nil
	case TypeSteps:
		for _, st := range s.Steps {
			if st.At < 0 {
				return nil, dynamo.InvalidParameter("setpoint_schedule.steps.at", st.At, "must not be negative")
			}
		}
		return NewSteps(s.Value, s.Steps...), nil
	case TypeRamp:
		if s.End <= s.Start {
			return nil, dynamo.InvalidParameter("setpoint_schedule.end", s.End, "must be after start")
		}
		return Ramp{From: s.Value, To: s.To, Start: s.Start, End: s.End}, nil
	}
	return nil, fmt.Errorf("%w: unknown setpoint schedule type %q", dynamo.ErrInvalidParameter, s.Type)
}

// Final returns the value the schedule settles on.
func (s Spec) Final() float64 {
	switch s.Type {
	case TypeSteps:
		if sp, err := s.Build(); err == nil {
			if steps := sp.(*Steps).Steps(); len(steps) > 0 {
				return steps[len(steps)-1].Value
			}
		}
	case TypeRamp:
		return s.To
	}
	return s.Value
}
