// Package actuator converts controller commands into heater power.
//
// [ZeroOrderHold] latches one command per control tick and presents it as a
// constant power to every fine integration step until the next tick.
package actuator

import (
	"fmt"
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

type Config struct {
	// PowerMin and PowerMax bound the delivered heater power.
	PowerMin float64
	PowerMax float64

	// Scaled maps the command range [CommandMin, CommandMax] linearly onto
	// the power range. Without it the command already is power.
	Scaled     bool
	CommandMin float64
	CommandMax float64

	// Resolution quantises power to multiples of this step above PowerMin.
	// 0 disables quantisation.
	Resolution float64

	// DelayTicks is the transport delay in whole control ticks.
	DelayTicks int

	// Initial is the power held before the first command.
	Initial float64
}

func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"heater_min_power", c.PowerMin},
		{"heater_max_power", c.PowerMax},
		{"actuator_scaling[0]", c.CommandMin},
		{"actuator_scaling[1]", c.CommandMax},
		{"actuator_resolution", c.Resolution},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return dynamo.InvalidParameter(f.name, f.v, "must be finite")
		}
	}
	if c.PowerMin >= c.PowerMax {
		return dynamo.InvalidParameter("heater_min_power", c.PowerMin, "must be below heater_max_power")
	}
	if c.Scaled && c.CommandMin >= c.CommandMax {
		return dynamo.InvalidParameter("actuator_scaling", c.CommandMin, "lower bound must be below upper bound")
	}
	if c.Resolution < 0 {
		return dynamo.InvalidParameter("actuator_resolution", c.Resolution, "must not be negative")
	}
	if c.DelayTicks < 0 {
		return fmt.Errorf("%w: actuator_delay=%d must not be negative", dynamo.ErrInvalidParameter, c.DelayTicks)
	}
	return nil
}

// ZeroOrderHold holds the heater power constant between control ticks. It
// never interpolates between commands.
type ZeroOrderHold struct {
	cfg     Config
	initial float64
	output  float64
	pending []float64
}

func New(cfg Config) (*ZeroOrderHold, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	z := &ZeroOrderHold{cfg: cfg}
	z.initial = z.quantise(z.clamp(cfg.Initial))
	z.Reset()
	return z, nil
}

func (z *ZeroOrderHold) Config() Config { return z.cfg }

// Hold latches command u. With a delay of n ticks the power it produces
// reaches the output n calls later.
func (z *ZeroOrderHold) Hold(u float64) {
	power := z.Power(u)
	if len(z.pending) == 0 {
		z.output = power
		return
	}
	z.output = z.pending[0]
	copy(z.pending, z.pending[1:])
	z.pending[len(z.pending)-1] = power
}

// Output returns the held heater power.
func (z *ZeroOrderHold) Output() float64 { return z.output }

// Power converts a command to the power it would produce, without
// changing the held value.
func (z *ZeroOrderHold) Power(u float64) float64 {
	p := u
	if z.cfg.Scaled {
		span := (z.cfg.PowerMax - z.cfg.PowerMin) / (z.cfg.CommandMax - z.cfg.CommandMin)
		p = z.cfg.PowerMin + (u-z.cfg.CommandMin)*span
	}
	return z.quantise(z.clamp(p))
}

// Reset restores the initial output and empties the delay line.
func (z *ZeroOrderHold) Reset() {
	z.output = z.initial
	z.pending = make([]float64, z.cfg.DelayTicks)
	for i := range z.pending {
		z.pending[i] = z.initial
	}
}

func (z *ZeroOrderHold) clamp(p float64) float64 {
	return math.Max(z.cfg.PowerMin, math.Min(z.cfg.PowerMax, p))
}

func (z *ZeroOrderHold) quantise(p float64) float64 {
	if z.cfg.Resolution <= 0 {
		return p
	}
	steps := math.Round((p - z.cfg.PowerMin) / z.cfg.Resolution)
	return z.clamp(z.cfg.PowerMin + steps*z.cfg.Resolution)
}
