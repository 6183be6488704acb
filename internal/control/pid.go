package control

import "math"

// Diagnostics is a snapshot of the controller after its last invocation.
type Diagnostics struct {
	Error      float64 `json:"error"`
	Integral   float64 `json:"integral"`
	Derivative float64 `json:"derivative"` // filtered de/dt
	P          float64 `json:"p"`
	I          float64 `json:"i"`
	D          float64 `json:"d"`
	Raw        float64 `json:"raw"`
	Output     float64 `json:"output"`
}

// Unsaturated returns P + Ki·I + D with the accumulator as it stands after
// the update. With anti-windup active it lies within the output limits.
func (d Diagnostics) Unsaturated() float64 {
	return d.P + d.I + d.D
}

// PID is a discrete PID controller sampled every SamplePeriod. The
// derivative acts on the error and is primed on the first call, so a
// setpoint present from the start causes no derivative kick.
type PID struct {
	params Params
	kd     float64
	policy AntiWindup

	integral   float64
	prevErr    float64
	derivative float64
	primed     bool
	last       Diagnostics
}

func newPID(p Params) *PID {
	c := &PID{params: p, kd: p.Kd, policy: p.Policy()}
	if p.Kind == KindPI {
		c.kd = 0
	}
	return c
}

func (c *PID) Params() Params { return c.params }

func (c *PID) SamplePeriod() float64 { return c.params.SamplePeriod }

func (c *PID) Policy() AntiWindup { return c.policy }

func (c *PID) Diagnostics() Diagnostics { return c.last }

func (c *PID) Compute(setpoint, measured float64) float64 {
	p := c.params
	ts := p.SamplePeriod
	e := setpoint - measured

	if !c.primed {
		c.prevErr = e
		c.primed = true
	}
	alpha := p.DerivativeFilter
	c.derivative = alpha*c.derivative + (1-alpha)*(e-c.prevErr)/ts
	c.prevErr = e

	pTerm := p.Kp * e
	dTerm := c.kd * c.derivative
	candidate := c.integral + e*ts
	raw := pTerm + p.Ki*candidate + dTerm
	u := clamp(raw, p.OutputMin, p.OutputMax)

	switch c.policy {
	case AntiWindupNone:
		c.integral = candidate
	case AntiWindupBackCalculation:
		c.integral = candidate
		if p.Ki != 0 {
			c.integral += (u - raw) / p.Ki
		}
	default:
		if raw == u {
			c.integral = candidate
		}
		if p.Ki != 0 {
			lo := (p.OutputMin - pTerm - dTerm) / p.Ki
			hi := (p.OutputMax - pTerm - dTerm) / p.Ki
			if lo > hi {
				lo, hi = hi, lo
			}
			c.integral = clamp(c.integral, lo, hi)
		}
	}

	c.last = Diagnostics{
		Error:      e,
		Integral:   c.integral,
		Derivative: c.derivative,
		P:          pTerm,
		I:          p.Ki * c.integral,
		D:          dTerm,
		Raw:        raw,
		Output:     u,
	}
	return u
}

// Reset clears integral and derivative state.
func (c *PID) Reset() {
	c.integral = 0
	c.prevErr = 0
	c.derivative = 0
	c.primed = false
	c.last = Diagnostics{}
}

// GetParams returns tunable parameters for live adjustment.
func (c *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": c.params.Kp,
		"Ki": c.params.Ki,
		"Kd": c.kd,
	}
}

// SetParam adjusts a gain between ticks. The accumulator is kept, so the
// change is bumpless only for Kp and Kd.
func (c *PID) SetParam(name string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	if value < 0 && !c.params.AllowNegativeGains {
		return
	}
	switch name {
	case "Kp":
		c.params.Kp = value
	case "Ki":
		c.params.Ki = value
	case "Kd":
		if c.params.Kind != KindPI {
			c.params.Kd = value
			c.kd = value
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
