package sim

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/tanksim/internal/actuator"
	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/setpoint"
)

var _ = Describe("Simulator", func() {
	var (
		r *rig
	)

	BeforeEach(func() {
		p := labTank()
		r = newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Ramp{From: 25, To: 35, Start: 0, End: 10})
	})

	Context("before Init", func() {
		It("should refuse to step", func() {
			_, err := r.sim.Step()
			Expect(err).To(MatchError(dynamo.ErrNotInitialized))
			Expect(r.sim.Status()).To(Equal(dynamo.StatusUninitialized))
		})

		It("should refuse to run", func() {
			_, err := r.sim.Run(context.Background())
			Expect(err).To(MatchError(dynamo.ErrNotInitialized))
		})
	})

	Context("Init", func() {
		It("should leave no state behind on invalid config", func() {
			err := r.sim.Init(runConfig(1, 2, 10, 20))
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))

			var pe *dynamo.ParameterError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Param).To(Equal("fine_step_size"))

			Expect(r.sim.Status()).To(Equal(dynamo.StatusUninitialized))
			Expect(r.sim.Trajectory()).To(BeEmpty())

			Expect(r.sim.Init(runConfig(1, 0.5, 10, 20))).To(Succeed())
		})

		DescribeTable("rejects",
			func(cfg Config, param string) {
				err := r.sim.Init(cfg)
				var pe *dynamo.ParameterError
				Expect(errors.As(err, &pe)).To(BeTrue())
				Expect(pe.Param).To(Equal(param))
			},
			Entry("zero sample period", runConfig(0, 0.1, 10, 20), "sample_period"),
			Entry("zero fine step", runConfig(1, 0, 10, 20), "fine_step_size"),
			Entry("zero duration", runConfig(1, 0.1, 0, 20), "run_duration"),
			Entry("duration beyond the tick limit", runConfig(1e-4, 1e-4, 1e15, 20), "run_duration"),
			Entry("fine step beyond the per-tick limit", runConfig(1, 1e-9, 10, 20), "fine_step_size"),
		)

		It("should reject a second Init", func() {
			Expect(r.sim.Init(runConfig(1, 0.1, 10, 20))).To(Succeed())
			Expect(r.sim.Init(runConfig(1, 0.1, 10, 20))).To(MatchError(dynamo.ErrAlreadyInitialized))
		})

		It("should reject a controller with a different sample period", func() {
			err := r.sim.Init(runConfig(2, 0.1, 10, 20))
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should record the initial sample", func() {
			Expect(r.sim.Init(runConfig(1, 0.1, 10, 20))).To(Succeed())

			Expect(r.sim.Status()).To(Equal(dynamo.StatusRunning))
			Expect(r.sim.Trajectory()).To(Equal(dynamo.Trajectory{
				{Time: 0, Temperature: 20, Command: 0, Setpoint: 25},
			}))
		})
	})

	Context("stepping", func() {
		BeforeEach(func() {
			Expect(r.sim.Init(runConfig(1, 0.3, 10, 20))).To(Succeed())
		})

		It("should pair each sample with the command and setpoint of the interval before it", func() {
			s1, err := r.sim.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(s1.Time).To(Equal(1.0))
			Expect(s1.Command).To(Equal(10.0))
			Expect(s1.Setpoint).To(Equal(25.0))
			Expect(s1.Temperature).To(BeNumerically("~", 20+10.0/4186, 1e-12))

			s2, err := r.sim.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(s2.Setpoint).To(Equal(26.0))
		})

		It("should use uniform fine steps that land on the tick", func() {
			Expect(r.sim.FineStep()).To(Equal(0.25))

			res, err := r.sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FineSteps).To(Equal(40))
			Expect(res.Ticks).To(Equal(10))
			for k, s := range res.Trajectory {
				Expect(s.Time).To(Equal(float64(k)))
			}
		})

		It("should complete after the duration and refuse further steps", func() {
			for i := 0; i < 10; i++ {
				_, err := r.sim.Step()
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(r.sim.Status()).To(Equal(dynamo.StatusCompleted))
			Expect(r.sim.Trajectory()).To(HaveLen(11))

			_, err := r.sim.Step()
			Expect(err).To(MatchError(dynamo.ErrCompleted))

			_, err = r.sim.Run(context.Background())
			Expect(err).To(MatchError(dynamo.ErrCompleted))
		})
	})

	It("should cover a duration that is not a whole number of ticks", func() {
		Expect(r.sim.Init(runConfig(1, 1, 10.5, 20))).To(Succeed())
		res, err := r.sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Ticks).To(Equal(11))
		Expect(res.StopReason).To(Equal(ReasonDuration))
	})

	Context("stop conditions", func() {
		It("should stop at a sample limit", func() {
			p := labTank()
			r = newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Constant(25), WithStop(MaxSamples(5)))
			Expect(r.sim.Init(runConfig(1, 0.1, 100, 20))).To(Succeed())

			res, err := r.sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trajectory).To(HaveLen(5))
			Expect(res.Status).To(Equal(dynamo.StatusCompleted))
			Expect(res.StopReason).To(ContainSubstring("sample limit"))
		})

		It("should stop on a predicate", func() {
			p := labTank()
			stop := StopWhen("warm enough", func(s dynamo.Sample) bool { return s.Temperature >= 20.05 })
			r = newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Constant(25), WithStop(stop))
			Expect(r.sim.Init(runConfig(1, 0.1, 1000, 20))).To(Succeed())

			res, err := r.sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StopReason).To(Equal("warm enough"))
			Expect(res.Trajectory.Last().Temperature).To(BeNumerically(">=", 20.05))
			Expect(res.Ticks).To(BeNumerically("<", 1000))
		})

		It("should stop when the wall-clock budget is spent", func() {
			p := labTank()
			r = newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Constant(25), WithStop(WallClock(0)))
			Expect(r.sim.Init(runConfig(1, 0.1, 1000, 20))).To(Succeed())

			res, err := r.sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Ticks).To(Equal(0))
			Expect(res.StopReason).To(ContainSubstring("wall-clock"))
		})
	})

	It("should honour a cancelled context", func() {
		Expect(r.sim.Init(runConfig(1, 0.1, 100, 20))).To(Succeed())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := r.sim.Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(res.Status).To(Equal(dynamo.StatusRunning))
		Expect(res.Trajectory).To(HaveLen(1))
	})

	It("should abort on a non-finite state", func() {
		ctrl, _ := control.New(piParams(2, 0.5, 1, labTank()))
		act, _ := actuator.New(actuator.Config{PowerMax: 10})
		s := New(nanPlant{}, euler(), ctrl, act, setpoint.Constant(25))
		Expect(s.Init(runConfig(1, 0.5, 10, 20))).To(Succeed())

		_, err := s.Run(context.Background())
		Expect(err).To(MatchError(dynamo.ErrInvalidState))

		var se *dynamo.SimulationError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Step).To(Equal(1))
		Expect(s.Status()).To(Equal(dynamo.StatusCompleted))
	})

	It("should feed observers and metrics every sample", func() {
		rec := &recorder{}
		p := labTank()
		r = newRig(p, piParams(2, 0.5, 1, p), euler(), setpoint.Constant(25), WithObserver(rec))
		Expect(r.sim.Init(runConfig(1, 0.1, 20, 20))).To(Succeed())

		res, err := r.sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.samples).To(Equal([]dynamo.Sample(res.Trajectory)))
	})

	It("should run again after Reset", func() {
		Expect(r.sim.Init(runConfig(1, 0.1, 20, 20))).To(Succeed())
		first, err := r.sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		r.sim.Reset()
		Expect(r.sim.Status()).To(Equal(dynamo.StatusUninitialized))

		Expect(r.sim.Init(runConfig(1, 0.1, 20, 20))).To(Succeed())
		second, err := r.sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Trajectory).To(Equal(first.Trajectory))
	})

	Context("stability diagnostic", func() {
		open := func(p control.Params) control.Params {
			p.Kind = control.KindOpenLoop
			p.OpenLoopOutput = 1000
			return p
		}

		It("should warn when the Euler step exceeds twice the time constant", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			p := lossyTank()
			p.InletFlow = 0.0001
			r = newRig(p, open(piParams(0, 0, 200, p)), euler(), setpoint.Constant(40), WithLogger(logger))

			Expect(r.sim.Init(runConfig(200, 200, 2000, 20))).To(Succeed())
			res, err := r.sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Warnings).To(HaveLen(1))
			w := res.Warnings[0]
			Expect(w.Integrator).To(Equal("euler"))
			Expect(w.StableStep).To(BeNumerically("~", 2*r.tank.TimeConstant(), 1e-9))
			Expect(buf.String()).To(ContainSubstring("numerical instability"))
			Expect(res.Status).To(Equal(dynamo.StatusCompleted))
		})

		It("should not warn for RK4 at the same step", func() {
			p := lossyTank()
			p.InletFlow = 0.0001
			r = newRig(p, open(piParams(0, 0, 200, p)), rk4(), setpoint.Constant(40))

			Expect(r.sim.Init(runConfig(200, 200, 2000, 20))).To(Succeed())
			Expect(r.sim.Warnings()).To(BeEmpty())
		})

		It("should not warn for an isolated tank", func() {
			p := labTank()
			r = newRig(p, piParams(2, 0.5, 100, p), euler(), setpoint.Constant(25))

			Expect(r.sim.Init(runConfig(100, 100, 1000, 20))).To(Succeed())
			Expect(r.sim.Warnings()).To(BeEmpty())
		})
	})
})
