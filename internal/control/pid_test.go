package control

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/tanksim/internal/dynamo"
)

func labParams(kind Kind) Params {
	return Params{
		Kind:         kind,
		Kp:           2,
		Ki:           0.5,
		Kd:           5,
		SamplePeriod: 1,
		OutputMin:    0,
		OutputMax:    10,
	}
}

func mustPID(p Params) *PID {
	ctrl, err := New(p)
	Expect(err).NotTo(HaveOccurred())
	pid, ok := ctrl.(*PID)
	Expect(ok).To(BeTrue())
	return pid
}

var _ = Describe("New", func() {
	It("should reject negative gains", func() {
		p := labParams(KindPI)
		p.Ki = -0.5

		_, err := New(p)
		Expect(err).To(MatchError(dynamo.ErrInvalidGains))

		var pe *dynamo.ParameterError
		Expect(errors.As(err, &pe)).To(BeTrue())
		Expect(pe.Param).To(Equal("ki"))
	})

	It("should accept negative gains when allowed", func() {
		p := labParams(KindPI)
		p.Kp, p.Ki = -2, -0.5
		p.AllowNegativeGains = true

		_, err := New(p)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("invalid parameters",
		func(mod func(p *Params)) {
			p := labParams(KindPID)
			mod(&p)
			_, err := New(p)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		},
		Entry("zero sample period", func(p *Params) { p.SamplePeriod = 0 }),
		Entry("inverted limits", func(p *Params) { p.OutputMin, p.OutputMax = 10, 0 }),
		Entry("equal limits", func(p *Params) { p.OutputMin = p.OutputMax }),
		Entry("filter of one", func(p *Params) { p.DerivativeFilter = 1 }),
		Entry("negative filter", func(p *Params) { p.DerivativeFilter = -0.1 }),
		Entry("unknown kind", func(p *Params) { p.Kind = "bang-bang" }),
		Entry("unknown policy", func(p *Params) { p.AntiWindup = "clip" }),
		Entry("back-calc kind with conditional policy", func(p *Params) {
			p.Kind = KindPIDBackCalc
			p.AntiWindup = AntiWindupConditional
		}),
	)

	It("should pick the anti-windup policy from the kind", func() {
		Expect(mustPID(labParams(KindPI)).Policy()).To(Equal(AntiWindupConditional))
		Expect(mustPID(labParams(KindPID)).Policy()).To(Equal(AntiWindupConditional))
		Expect(mustPID(labParams(KindPIDBackCalc)).Policy()).To(Equal(AntiWindupBackCalculation))

		p := labParams(KindPI)
		p.AntiWindup = AntiWindupNone
		Expect(mustPID(p).Policy()).To(Equal(AntiWindupNone))
	})

	It("should build a manual controller for open loop", func() {
		p := labParams(KindOpenLoop)
		p.OpenLoopOutput = 4

		ctrl, err := New(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl).To(BeAssignableToTypeOf(&Manual{}))
		Expect(ctrl.Compute(25, 20)).To(Equal(4.0))
	})
})

var _ = Describe("PID", func() {
	It("should saturate the first command of a large step", func() {
		pid := mustPID(labParams(KindPI))

		u := pid.Compute(25, 20)

		Expect(u).To(Equal(10.0))
		d := pid.Diagnostics()
		Expect(d.Raw).To(Equal(12.5))
		Expect(d.Integral).To(Equal(0.0))
	})

	It("should force the derivative gain to zero for PI", func() {
		pid := mustPID(labParams(KindPI))
		pid.Compute(25, 20)
		pid.Compute(25, 24)

		Expect(pid.Diagnostics().D).To(Equal(0.0))
		Expect(pid.GetParams()["Kd"]).To(Equal(0.0))
	})

	It("should not kick on the first invocation", func() {
		pid := mustPID(labParams(KindPID))
		pid.Compute(25, 20)

		Expect(pid.Diagnostics().D).To(Equal(0.0))
	})

	It("should differentiate the error between ticks", func() {
		p := labParams(KindPID)
		p.OutputMin, p.OutputMax = -1000, 1000
		pid := mustPID(p)

		pid.Compute(25, 20)
		pid.Compute(25, 21)

		Expect(pid.Diagnostics().Derivative).To(BeNumerically("~", -1, 1e-12))
		Expect(pid.Diagnostics().D).To(BeNumerically("~", -5, 1e-12))
	})

	It("should smooth the derivative with the filter", func() {
		p := labParams(KindPID)
		p.OutputMin, p.OutputMax = -1000, 1000
		p.DerivativeFilter = 0.5
		pid := mustPID(p)

		pid.Compute(25, 20)
		pid.Compute(25, 21)
		Expect(pid.Diagnostics().Derivative).To(BeNumerically("~", -0.5, 1e-12))

		pid.Compute(25, 21)
		Expect(pid.Diagnostics().Derivative).To(BeNumerically("~", -0.25, 1e-12))
	})

	It("should integrate the error over the sample period", func() {
		pid := mustPID(Params{
			Kind: KindPI, Kp: 1, Ki: 1,
			SamplePeriod: 0.5, OutputMin: -100, OutputMax: 100,
		})

		u := pid.Compute(2, 0)

		Expect(pid.Diagnostics().Integral).To(BeNumerically("~", 1, 1e-12))
		Expect(u).To(BeNumerically("~", 3, 1e-12))
	})

	Context("while saturated", func() {
		saturate := func(pid *PID, ticks int) {
			for i := 0; i < ticks; i++ {
				pid.Compute(150, 70)
				Expect(pid.Diagnostics().Output).To(Equal(10.0))
			}
		}

		It("should keep the unsaturated output inside the limits (conditional)", func() {
			pid := mustPID(labParams(KindPID))
			for i := 0; i < 50; i++ {
				pid.Compute(150, 70)
				Expect(pid.Diagnostics().Unsaturated()).To(BeNumerically("<=", 10+1e-9))
				Expect(pid.Diagnostics().Unsaturated()).To(BeNumerically(">=", -1e-9))
			}
		})

		It("should keep the unsaturated output equal to the applied output (back-calculation)", func() {
			pid := mustPID(labParams(KindPIDBackCalc))
			saturate(pid, 50)
			Expect(pid.Diagnostics().Unsaturated()).To(BeNumerically("~", 10, 1e-9))
		})

		It("should wind up without anti-windup", func() {
			p := labParams(KindPI)
			p.AntiWindup = AntiWindupNone
			pid := mustPID(p)
			saturate(pid, 10)

			Expect(pid.Diagnostics().Integral).To(BeNumerically("~", 800, 1e-9))
			Expect(pid.Diagnostics().Unsaturated()).To(BeNumerically(">", 10))
		})

		It("should leave saturation as soon as the error reverses (conditional)", func() {
			pid := mustPID(labParams(KindPI))
			saturate(pid, 100)

			u := pid.Compute(60, 62)
			Expect(u).To(BeNumerically("<", 10))
		})
	})

	It("should keep P+I+D inside the limits for reverse-acting gains", func() {
		pid := mustPID(Params{
			Kind: KindPI, Kp: -2, Ki: -0.5, AllowNegativeGains: true,
			SamplePeriod: 1, OutputMin: 0, OutputMax: 10,
		})

		for i := 0; i < 20; i++ {
			pid.Compute(20, 25)
			Expect(pid.Diagnostics().Output).To(Equal(10.0))
			Expect(pid.Diagnostics().Unsaturated()).To(BeNumerically("<=", 10+1e-9))
		}
	})

	It("should prime again after Reset", func() {
		pid := mustPID(labParams(KindPID))
		first := pid.Compute(25, 20)
		pid.Compute(25, 22)
		pid.Compute(25, 24)

		pid.Reset()

		Expect(pid.Diagnostics()).To(Equal(Diagnostics{}))
		Expect(pid.Compute(25, 20)).To(Equal(first))
		Expect(pid.Diagnostics().D).To(Equal(0.0))
	})

	It("should ignore invalid live gain changes", func() {
		pid := mustPID(labParams(KindPID))
		pid.SetParam("Kp", -1)
		pid.SetParam("Ki", 0.75)

		Expect(pid.GetParams()).To(Equal(map[string]float64{"Kp": 2, "Ki": 0.75, "Kd": 5}))
	})
})

var _ = Describe("StandardGains", func() {
	It("should convert Ti and Td", func() {
		ki, kd := StandardGains(2, 4, 0.5)
		Expect(ki).To(Equal(0.5))
		Expect(kd).To(Equal(1.0))
	})

	It("should disable integral action for Ti <= 0", func() {
		ki, _ := StandardGains(2, 0, 0)
		Expect(ki).To(Equal(0.0))
	})
})

var _ = Describe("Manual", func() {
	It("should clamp and hold the power", func() {
		m := NewManual(50, 0, 10, 1)
		Expect(m.Compute(0, 100)).To(Equal(10.0))

		m.Set(3)
		Expect(m.Compute(100, 0)).To(Equal(3.0))

		m.Reset()
		Expect(m.Power()).To(Equal(10.0))
	})
})
