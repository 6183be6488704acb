package sim

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/physics"
	"github.com/san-kum/tanksim/internal/setpoint"
)

func run(r *rig, cfg Config) *dynamo.Result {
	Expect(r.sim.Init(cfg)).To(Succeed())
	res, err := r.sim.Run(context.Background())
	Expect(err).NotTo(HaveOccurred())
	Expect(res.Status).To(Equal(dynamo.StatusCompleted))
	return res
}

var _ = Describe("Closed-loop behaviour", func() {
	It("should hold the open-loop steady state with vanishing command", func() {
		p := physics.Params{
			Volume: 1, Density: 1000, SpecificHeat: 4186,
			HeatLossCoeff: 500, AmbientTemp: 20,
			InletFlow: 0.001, InletTemp: 15,
			MaxPower: 20000, MinPower: -20000,
		}
		tank, err := physics.NewTank(p)
		Expect(err).NotTo(HaveOccurred())
		ss, ok := tank.SteadyState(0)
		Expect(ok).To(BeTrue())

		r := newRig(p, piParams(2000, 20, 1, p), euler(), setpoint.Constant(ss))
		res := run(r, runConfig(1, 0.1, 20000, ss-5))

		last := res.Trajectory.Last()
		Expect(math.Abs(last.Command)).To(BeNumerically("<", 1))
		Expect(last.Temperature).To(BeNumerically("~", ss, 1e-3))
	})

	Describe("step response of the isolated lab tank", func() {
		var res *dynamo.Result

		BeforeEach(func() {
			p := labTank()
			r := newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Constant(25))
			res = run(r, runConfig(1, 0.1, 4000, 20))
		})

		It("should saturate the first command at full power", func() {
			Expect(res.Trajectory[1].Command).To(Equal(10.0))
		})

		It("should never cool down", func() {
			temps := res.Trajectory.Temperatures()
			for k := 1; k < len(temps); k++ {
				Expect(temps[k]).To(BeNumerically(">=", temps[k-1]))
			}
		})

		It("should settle inside the 2% band within the saturated ramp bound", func() {
			// C·ΔT/P_max is the shortest possible heat-up time.
			bound := 1.5 * 4186 * 5 / 10.0
			for _, s := range res.Trajectory {
				Expect(s.Temperature).To(BeNumerically("<=", 25.5))
				if s.Time >= bound {
					Expect(s.Temperature).To(BeNumerically("~", 25, 0.5))
				}
			}
		})
	})

	Describe("integrator windup", func() {
		schedule := func() dynamo.Setpoint {
			return setpoint.NewSteps(150, setpoint.Step{At: 3000, Value: 60})
		}

		windup := func(kind control.Kind, policy control.AntiWindup) (*dynamo.Result, *diagnosticsRecorder) {
			p := lossyTank()
			cp := piParams(500, 5, 1, p)
			cp.Kind = kind
			cp.AntiWindup = policy

			rec := &diagnosticsRecorder{}
			r := newRig(p, cp, euler(), schedule(), WithObserver(rec))
			rec.pid = r.ctrl.(*control.PID)
			return run(r, runConfig(1, 0.1, 3600, 20)), rec
		}

		DescribeTable("with anti-windup",
			func(kind control.Kind, policy control.AntiWindup) {
				res, rec := windup(kind, policy)

				// The tank warms by at most u_max·T_s/C per tick, and the
				// integral only moves when the output leaves the limit, so
				// the output can dip below u_max by at most (Kp+Ki·T_s) times
				// that rise.
				p := lossyTank()
				capacity := p.Volume * p.Density * p.SpecificHeat
				floor := 5000 - (500+5*1.0)*5000*1.0/capacity

				for i, d := range rec.diags {
					if rec.times[i] > 0 && rec.times[i] <= 3000 {
						Expect(d.Output).To(BeNumerically(">=", floor-1e-6))
						Expect(d.Output).To(BeNumerically("<=", 5000))
						Expect(d.Unsaturated()).To(BeNumerically("<=", 5000+1e-6))
					}
				}

				Expect(res.Trajectory.Last().Time).To(Equal(3600.0))
				Expect(res.Trajectory.Last().Temperature).To(BeNumerically("~", 60, 2))
			},
			Entry("conditional integration", control.KindPI, control.AntiWindup("")),
			Entry("back-calculation", control.KindPIDBackCalc, control.AntiWindup("")),
		)

		It("should stay far above the new setpoint without anti-windup", func() {
			res, rec := windup(control.KindPI, control.AntiWindupNone)

			Expect(rec.diags[3000].Unsaturated()).To(BeNumerically(">", 5000))
			Expect(res.Trajectory.Last().Temperature).To(BeNumerically(">", 65))
		})
	})

	Describe("open-loop accuracy", func() {
		var (
			p     physics.Params
			exact func(t float64) float64
		)

		BeforeEach(func() {
			p = lossyTank()
			p.InletFlow = 0.0001
			tank, err := physics.NewTank(p)
			Expect(err).NotTo(HaveOccurred())
			exact = func(t float64) float64 { return tank.OpenLoop(15, 4000, t) }
		})

		openLoop := func(integ dynamo.Integrator, ts, dt float64) float64 {
			cp := piParams(0, 0, ts, p)
			cp.Kind = control.KindOpenLoop
			cp.OpenLoopOutput = 4000
			r := newRig(p, cp, integ, setpoint.Constant(0))
			res := run(r, runConfig(ts, dt, 400, 15))
			return maxAbsError(res.Trajectory, exact)
		}

		It("should track the closed form within 1% with Euler", func() {
			span := math.Abs(exact(400) - 15)
			Expect(openLoop(euler(), 1, 1)).To(BeNumerically("<=", 0.01*span))
			Expect(openLoop(rk4(), 1, 1)).To(BeNumerically("<", 1e-7))
		})

		It("should converge at first order with Euler", func() {
			ratio := openLoop(euler(), 1, 1) / openLoop(euler(), 1, 0.5)
			Expect(ratio).To(BeNumerically("~", 2, 0.2))
		})

		It("should converge at fourth order with RK4", func() {
			ratio := openLoop(rk4(), 10, 10) / openLoop(rk4(), 10, 5)
			Expect(ratio).To(BeNumerically("~", 16, 2.5))
		})
	})

	It("should be deterministic", func() {
		trajectory := func() dynamo.Trajectory {
			p := lossyTank()
			cp := piParams(500, 5, 1, p)
			cp.Kind = control.KindPID
			cp.Kd = 200
			cp.DerivativeFilter = 0.3
			r := newRig(p, cp, rk4(), setpoint.NewSteps(40, setpoint.Step{At: 500, Value: 55}))
			return run(r, runConfig(1, 0.1, 1000, 20)).Trajectory
		}

		Expect(trajectory()).To(Equal(trajectory()))
	})

	DescribeTable("fine step at both extremes",
		func(integ func() dynamo.Integrator, tol float64) {
			trajectory := func(dt float64) dynamo.Trajectory {
				p := lossyTank()
				r := newRig(p, piParams(500, 5, 1, p), integ(), setpoint.Constant(60))
				return run(r, runConfig(1, dt, 2000, 20)).Trajectory
			}

			coarse := trajectory(1)
			fine := trajectory(0.01)
			Expect(coarse).To(HaveLen(len(fine)))
			for k := range coarse {
				Expect(coarse[k].Time).To(Equal(fine[k].Time))
				Expect(coarse[k].Temperature).To(BeNumerically("~", fine[k].Temperature, tol))
			}
		},
		Entry("rk4", rk4, 1e-6),
		Entry("euler", euler, 0.05),
	)
})
