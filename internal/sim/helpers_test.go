package sim

import (
	"math"

	. "github.com/onsi/gomega"

	"github.com/san-kum/tanksim/internal/actuator"
	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/integrators"
	"github.com/san-kum/tanksim/internal/physics"
)

// labTank is a small isolated vessel: C = 4186 J/K, 10 W heater.
func labTank() physics.Params {
	return physics.Params{
		Volume: 1, Density: 1, SpecificHeat: 4186,
		AmbientTemp: 20, InletTemp: 15,
		MaxPower: 10,
	}
}

// lossyTank loses heat to ambient: C = 41860 J/K, U·A = 100 W/K.
func lossyTank() physics.Params {
	return physics.Params{
		Volume: 0.01, Density: 1000, SpecificHeat: 4186,
		HeatLossCoeff: 100, AmbientTemp: 20, InletTemp: 15,
		MaxPower: 5000,
	}
}

func piParams(kp, ki, ts float64, p physics.Params) control.Params {
	return control.Params{
		Kind: control.KindPI, Kp: kp, Ki: ki,
		SamplePeriod: ts,
		OutputMin:    p.MinPower,
		OutputMax:    p.MaxPower,
	}
}

type rig struct {
	sim  *Simulator
	tank *physics.Tank
	ctrl dynamo.Controller
}

func newRig(p physics.Params, cp control.Params, integ dynamo.Integrator, sp dynamo.Setpoint, opts ...Option) *rig {
	tank, err := physics.NewTank(p)
	Expect(err).NotTo(HaveOccurred())
	ctrl, err := control.New(cp)
	Expect(err).NotTo(HaveOccurred())
	act, err := actuator.New(actuator.Config{PowerMin: p.MinPower, PowerMax: p.MaxPower})
	Expect(err).NotTo(HaveOccurred())
	return &rig{
		sim:  New(tank, integ, ctrl, act, sp, opts...),
		tank: tank,
		ctrl: ctrl,
	}
}

func runConfig(ts, dt, duration, t0 float64) Config {
	return Config{
		SamplePeriod:       ts,
		FineStep:           dt,
		Duration:           duration,
		InitialTemperature: t0,
		ValidateState:      true,
	}
}

func euler() dynamo.Integrator { return integrators.NewEuler() }
func rk4() dynamo.Integrator   { return integrators.NewRK4() }

type recorder struct {
	samples []dynamo.Sample
}

func (r *recorder) OnSample(s dynamo.Sample) { r.samples = append(r.samples, s) }

type diagnosticsRecorder struct {
	pid   *control.PID
	diags []control.Diagnostics
	times []float64
}

func (r *diagnosticsRecorder) OnSample(s dynamo.Sample) {
	r.diags = append(r.diags, r.pid.Diagnostics())
	r.times = append(r.times, s.Time)
}

type nanPlant struct{}

func (nanPlant) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{math.NaN()}
}
func (nanPlant) StateDim() int   { return 1 }
func (nanPlant) ControlDim() int { return 1 }

func maxAbsError(tr dynamo.Trajectory, exact func(t float64) float64) float64 {
	worst := 0.0
	for _, s := range tr {
		worst = math.Max(worst, math.Abs(s.Temperature-exact(s.Time)))
	}
	return worst
}
