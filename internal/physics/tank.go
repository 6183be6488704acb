package physics

import (
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

// Params describes a stirred tank with an electric heater. Any consistent
// unit system works: W with J/(kg·K), or kW with kJ/(kg·K).
type Params struct {
	Volume        float64 // V, m³
	Density       float64 // ρ, kg/m³
	SpecificHeat  float64 // c_p, J/(kg·K)
	HeatLossCoeff float64 // U·A to ambient, W/K
	AmbientTemp   float64 // T_amb
	InletFlow     float64 // q_in, m³/s
	InletTemp     float64 // T_in
	MaxPower      float64 // P_max, W
	MinPower      float64 // negative for a cooling element
}

// DefaultParams returns a 1 m³ water tank with a 10 kW heater.
func DefaultParams() Params {
	return Params{
		Volume:        1.0,
		Density:       1000,
		SpecificHeat:  4186,
		HeatLossCoeff: 50,
		AmbientTemp:   20,
		InletFlow:     0,
		InletTemp:     15,
		MaxPower:      10000,
		MinPower:      0,
	}
}

func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"tank_volume", p.Volume},
		{"fluid_density", p.Density},
		{"specific_heat", p.SpecificHeat},
		{"heat_loss_coefficient", p.HeatLossCoeff},
		{"ambient_temperature", p.AmbientTemp},
		{"inlet_flow_rate", p.InletFlow},
		{"inlet_temperature", p.InletTemp},
		{"heater_max_power", p.MaxPower},
		{"heater_min_power", p.MinPower},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return dynamo.InvalidParameter(f.name, f.v, "must be finite")
		}
	}

	if p.Volume <= 0 {
		return dynamo.InvalidParameter("tank_volume", p.Volume, "must be positive")
	}
	if c := p.Volume * p.Density * p.SpecificHeat; c <= 0 {
		return dynamo.InvalidParameter("thermal_capacitance", c, "V·ρ·c_p must be positive")
	}
	if p.InletFlow < 0 {
		return dynamo.InvalidParameter("inlet_flow_rate", p.InletFlow, "must not be negative")
	}
	if p.HeatLossCoeff < 0 {
		return dynamo.InvalidParameter("heat_loss_coefficient", p.HeatLossCoeff, "must not be negative")
	}
	if p.MaxPower <= 0 {
		return dynamo.InvalidParameter("heater_max_power", p.MaxPower, "must be positive")
	}
	if p.MinPower >= p.MaxPower {
		return dynamo.InvalidParameter("heater_min_power", p.MinPower, "must be below heater_max_power")
	}
	return nil
}

// Tank is the lumped-capacitance energy balance of a stirred tank:
//
//	C·dT/dt = q_in·ρ·c_p·(T_in − T) + u − U·A·(T − T_amb),  C = V·ρ·c_p
//
// It is immutable after construction.
type Tank struct {
	params Params
	cap    float64 // V·ρ·c_p
	flow   float64 // q_in·ρ·c_p
}

func NewTank(p Params) (*Tank, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Tank{
		params: p,
		cap:    p.Volume * p.Density * p.SpecificHeat,
		flow:   p.InletFlow * p.Density * p.SpecificHeat,
	}, nil
}

func (k *Tank) Params() Params { return k.params }

func (k *Tank) StateDim() int   { return 1 }
func (k *Tank) ControlDim() int { return 1 }

// Capacitance returns V·ρ·c_p.
func (k *Tank) Capacitance() float64 { return k.cap }

// ClampPower limits heater power to [MinPower, MaxPower].
func (k *Tank) ClampPower(u float64) float64 {
	return math.Max(k.params.MinPower, math.Min(k.params.MaxPower, u))
}

// Rate returns dT/dt at temperature temp with heater power u.
func (k *Tank) Rate(temp, u float64) float64 {
	p := k.params
	inflow := k.flow * (p.InletTemp - temp)
	loss := p.HeatLossCoeff * (temp - p.AmbientTemp)
	return (inflow + k.ClampPower(u) - loss) / k.cap
}

func (k *Tank) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	power := 0.0
	if len(u) > 0 {
		power = u[0]
	}
	return dynamo.State{k.Rate(x[0], power)}
}

// TimeConstant returns τ = V·ρ·c_p / (q_in·ρ·c_p + U·A), or +Inf for an
// isolated tank with no through-flow.
func (k *Tank) TimeConstant() float64 {
	g := k.flow + k.params.HeatLossCoeff
	if g == 0 {
		return math.Inf(1)
	}
	return k.cap / g
}

// SteadyState returns the open-loop equilibrium temperature under constant
// heater power u. ok is false when the tank has no equilibrium.
func (k *Tank) SteadyState(u float64) (temp float64, ok bool) {
	p := k.params
	g := k.flow + p.HeatLossCoeff
	if g == 0 {
		return math.NaN(), false
	}
	return (k.flow*p.InletTemp + p.HeatLossCoeff*p.AmbientTemp + k.ClampPower(u)) / g, true
}

// OpenLoop evaluates the exact solution of the energy balance for constant
// heater power u, starting from temp0 at t=0.
func (k *Tank) OpenLoop(temp0, u, t float64) float64 {
	if ss, ok := k.SteadyState(u); ok {
		return ss + (temp0-ss)*math.Exp(-t/k.TimeConstant())
	}
	return temp0 + k.Rate(temp0, u)*t
}
