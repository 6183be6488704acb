package control

import (
	"fmt"
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

type Kind string

const (
	KindPI          Kind = "pi"
	KindPID         Kind = "pid"
	KindPIDBackCalc Kind = "pid-backcalc"
	KindOpenLoop    Kind = "open-loop"
)

// Kinds lists the controller variants in display order.
func Kinds() []Kind {
	return []Kind{KindPI, KindPID, KindPIDBackCalc, KindOpenLoop}
}

// AntiWindup selects how the integral accumulator behaves while the output
// is saturated. The empty value picks the default for the controller kind.
type AntiWindup string

const (
	AntiWindupConditional     AntiWindup = "conditional"
	AntiWindupBackCalculation AntiWindup = "back-calculation"
	AntiWindupNone            AntiWindup = "none"
)

// Params are the immutable controller parameters.
type Params struct {
	Kind         Kind
	Kp, Ki, Kd   float64
	SamplePeriod float64
	OutputMin    float64
	OutputMax    float64
	AntiWindup   AntiWindup

	// DerivativeFilter is the first-order smoothing factor α ∈ [0,1) applied
	// to the error derivative. 0 disables filtering.
	DerivativeFilter float64

	AllowNegativeGains bool

	// OpenLoopOutput is the constant command of KindOpenLoop.
	OpenLoopOutput float64
}

func DefaultParams() Params {
	return Params{
		Kind:         KindPI,
		Kp:           2000,
		Ki:           20,
		SamplePeriod: 1,
		OutputMin:    0,
		OutputMax:    10000,
	}
}

// StandardGains converts standard-form gains (Kp, Ti, Td) to the parallel
// form used by [Params]. Ti <= 0 disables integral action.
func StandardGains(kp, ti, td float64) (ki, kd float64) {
	if ti > 0 {
		ki = kp / ti
	}
	return ki, kp * td
}

// Policy resolves the anti-windup policy for the controller kind.
func (p Params) Policy() AntiWindup {
	if p.AntiWindup != "" {
		return p.AntiWindup
	}
	if p.Kind == KindPIDBackCalc {
		return AntiWindupBackCalculation
	}
	return AntiWindupConditional
}

func (p Params) Validate() error {
	switch p.Kind {
	case KindPI, KindPID, KindPIDBackCalc, KindOpenLoop:
	default:
		return fmt.Errorf("%w: unknown controller kind %q", dynamo.ErrInvalidParameter, p.Kind)
	}

	switch pol := p.Policy(); pol {
	case AntiWindupConditional, AntiWindupNone:
		if p.Kind == KindPIDBackCalc {
			return fmt.Errorf("%w: %s requires back-calculation anti-windup, got %q",
				dynamo.ErrInvalidParameter, p.Kind, pol)
		}
	case AntiWindupBackCalculation:
	default:
		return fmt.Errorf("%w: unknown anti-windup policy %q", dynamo.ErrInvalidParameter, pol)
	}

	fields := []struct {
		name string
		v    float64
	}{
		{"kp", p.Kp}, {"ki", p.Ki}, {"kd", p.Kd},
		{"sample_period", p.SamplePeriod},
		{"actuator_limits[0]", p.OutputMin},
		{"actuator_limits[1]", p.OutputMax},
		{"derivative_filter", p.DerivativeFilter},
		{"open_loop_power", p.OpenLoopOutput},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return dynamo.InvalidParameter(f.name, f.v, "must be finite")
		}
	}

	if !p.AllowNegativeGains {
		for _, g := range fields[:3] {
			if g.v < 0 {
				return dynamo.InvalidGain(g.name, g.v, "must not be negative")
			}
		}
	}
	if p.SamplePeriod <= 0 {
		return dynamo.InvalidParameter("sample_period", p.SamplePeriod, "must be positive")
	}
	if p.OutputMin >= p.OutputMax {
		return dynamo.InvalidParameter("actuator_limits", p.OutputMin, "lower limit must be below upper limit")
	}
	if p.DerivativeFilter < 0 || p.DerivativeFilter >= 1 {
		return dynamo.InvalidParameter("derivative_filter", p.DerivativeFilter, "must be in [0,1)")
	}
	return nil
}

// New builds the controller variant named by p.Kind.
func New(p Params) (dynamo.Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Kind == KindOpenLoop {
		return NewManual(p.OpenLoopOutput, p.OutputMin, p.OutputMax, p.SamplePeriod), nil
	}
	return newPID(p), nil
}
