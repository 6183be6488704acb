package sim

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/tanksim/internal/dynamo"
)

const (
	ReasonDuration = "duration reached"
	ReasonInvalid  = "invalid state"
)

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

func WithMetric(m dynamo.Metric) Option {
	return func(s *Simulator) { s.metrics = append(s.metrics, m) }
}

func WithObserver(o dynamo.Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

func WithStop(c StopCondition) Option {
	return func(s *Simulator) { s.stops = append(s.stops, c) }
}

// Simulator couples a plant, a discrete controller and a zero-order-hold
// actuator. The controller runs once per sample period; the plant is
// integrated in uniform fine steps in between.
//
// A Simulator is not safe for concurrent use. Independent runs should use
// independent simulators.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	actuator   dynamo.Actuator
	setpoint   dynamo.Setpoint
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	stops      []StopCondition
	log        *slog.Logger

	cfg        Config
	status     dynamo.Status
	x          dynamo.State
	u          dynamo.Control
	time       float64
	tick       int
	ticks      int
	fineSteps  int
	h          float64
	totalFine  int
	trajectory dynamo.Trajectory
	warnings   []dynamo.InstabilityWarning
	stopReason string
}

func New(plant dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller,
	actuator dynamo.Actuator, setpoint dynamo.Setpoint, opts ...Option) *Simulator {
	s := &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		actuator:   actuator,
		setpoint:   setpoint,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Init validates cfg and prepares a run. On error nothing is allocated and
// the simulator stays uninitialized.
func (s *Simulator) Init(cfg Config) error {
	if s.status != dynamo.StatusUninitialized {
		return dynamo.ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if sp, ok := s.controller.(interface{ SamplePeriod() float64 }); ok {
		if ts := sp.SamplePeriod(); math.Abs(ts-cfg.SamplePeriod) > 1e-12*cfg.SamplePeriod {
			return dynamo.InvalidParameter("sample_period", ts, "controller sample period disagrees with the simulator")
		}
	}

	s.controller.Reset()
	s.actuator.Reset()
	for _, m := range s.metrics {
		m.Reset()
	}

	s.cfg = cfg
	s.ticks = cfg.Ticks()
	s.fineSteps = cfg.FineSteps()
	s.h = cfg.SamplePeriod / float64(s.fineSteps)
	s.x = make(dynamo.State, s.plant.StateDim())
	s.x[0] = cfg.InitialTemperature
	s.u = make(dynamo.Control, s.plant.ControlDim())
	s.time = 0
	s.tick = 0
	s.totalFine = 0
	s.stopReason = ""
	s.trajectory = make(dynamo.Trajectory, 0, min(s.ticks+1, 4096))
	s.warnings = s.stabilityCheck()
	s.status = dynamo.StatusRunning

	s.log.Info("simulation initialised",
		"ticks", s.ticks,
		"fine_steps_per_tick", s.fineSteps,
		"fine_step", s.h,
		"initial_temperature", cfg.InitialTemperature)
	for _, w := range s.warnings {
		s.log.Warn("numerical instability",
			"integrator", w.Integrator,
			"fine_step", w.FineStep,
			"stable_step", w.StableStep,
			"time_constant", w.TimeConstant)
	}

	s.record(dynamo.Sample{
		Time:        0,
		Temperature: s.x[0],
		Command:     s.actuator.Output(),
		Setpoint:    s.setpoint.At(0),
	})
	return nil
}

func (s *Simulator) stabilityCheck() []dynamo.InstabilityWarning {
	tc, ok := s.plant.(dynamo.TimeConstanter)
	if !ok {
		return nil
	}
	lim, ok := s.integrator.(dynamo.StabilityLimiter)
	if !ok {
		return nil
	}
	tau := tc.TimeConstant()
	if math.IsInf(tau, 1) {
		return nil
	}
	limit := lim.StableStep(tau)
	if s.h < limit {
		return nil
	}
	return []dynamo.InstabilityWarning{{
		Integrator:   integratorName(s.integrator),
		FineStep:     s.h,
		StableStep:   limit,
		TimeConstant: tau,
	}}
}

func integratorName(i dynamo.Integrator) string {
	if n, ok := i.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "integrator"
}

// Step advances the simulation by one control tick and returns the sample
// recorded at its end.
func (s *Simulator) Step() (dynamo.Sample, error) {
	switch s.status {
	case dynamo.StatusUninitialized:
		return dynamo.Sample{}, dynamo.ErrNotInitialized
	case dynamo.StatusCompleted:
		return dynamo.Sample{}, dynamo.ErrCompleted
	}

	t0 := s.time
	sp := s.setpoint.At(t0)
	s.actuator.Hold(s.controller.Compute(sp, s.x[0]))
	power := s.actuator.Output()
	if len(s.u) > 0 {
		s.u[0] = power
	}

	for j := 0; j < s.fineSteps; j++ {
		s.x = s.integrator.Step(s.plant, s.x, s.u, t0+float64(j)*s.h, s.h)
		s.totalFine++
	}
	s.tick++
	s.time = float64(s.tick) * s.cfg.SamplePeriod

	if s.cfg.ValidateState && !s.x.IsValid() {
		s.finish(ReasonInvalid)
		s.log.Error("simulation aborted", "tick", s.tick, "time", s.time, "state", s.x)
		return dynamo.Sample{}, &dynamo.SimulationError{
			Step:    s.tick,
			Time:    s.time,
			State:   s.x.Clone(),
			Wrapped: dynamo.ErrInvalidState,
		}
	}

	sample := dynamo.Sample{
		Time:        s.time,
		Temperature: s.x[0],
		Command:     power,
		Setpoint:    sp,
	}
	s.record(sample)

	if s.tick >= s.ticks {
		s.finish(ReasonDuration)
	}
	return sample, nil
}

// Run steps until the run completes, a stop condition fires or ctx is
// done. Stop conditions and ctx are checked once per tick.
func (s *Simulator) Run(ctx context.Context) (*dynamo.Result, error) {
	switch s.status {
	case dynamo.StatusUninitialized:
		return nil, dynamo.ErrNotInitialized
	case dynamo.StatusCompleted:
		return s.Result(), dynamo.ErrCompleted
	}

	start := time.Now()
	for s.status == dynamo.StatusRunning {
		if err := ctx.Err(); err != nil {
			return s.Result(), err
		}
		if reason, ok := s.shouldStop(start); ok {
			s.finish(reason)
			break
		}
		if _, err := s.Step(); err != nil {
			return s.Result(), err
		}
	}
	return s.Result(), nil
}

func (s *Simulator) shouldStop(start time.Time) (string, bool) {
	p := Progress{
		Last:    s.trajectory.Last(),
		Samples: len(s.trajectory),
		Elapsed: time.Since(start),
	}
	for _, c := range s.stops {
		if reason, ok := c(p); ok {
			return reason, true
		}
	}
	return "", false
}

func (s *Simulator) record(sample dynamo.Sample) {
	s.trajectory = append(s.trajectory, sample)
	for _, m := range s.metrics {
		m.Observe(sample)
	}
	for _, o := range s.observers {
		o.OnSample(sample)
	}
}

func (s *Simulator) finish(reason string) {
	s.status = dynamo.StatusCompleted
	s.stopReason = reason
	s.log.Info("simulation completed",
		"reason", reason,
		"ticks", s.tick,
		"fine_steps", s.totalFine,
		"final_temperature", s.trajectory.Last().Temperature)
}

// Reset returns the simulator to the uninitialized state so it can be
// initialised again.
func (s *Simulator) Reset() {
	*s = Simulator{
		plant:      s.plant,
		integrator: s.integrator,
		controller: s.controller,
		actuator:   s.actuator,
		setpoint:   s.setpoint,
		metrics:    s.metrics,
		observers:  s.observers,
		stops:      s.stops,
		log:        s.log,
	}
}

// Result snapshots the run so far.
func (s *Simulator) Result() *dynamo.Result {
	res := &dynamo.Result{
		Trajectory: s.Trajectory(),
		Status:     s.status,
		StopReason: s.stopReason,
		Warnings:   append([]dynamo.InstabilityWarning(nil), s.warnings...),
		Metrics:    make(map[string]float64, len(s.metrics)),
		Ticks:      s.tick,
		FineSteps:  s.totalFine,
	}
	for _, m := range s.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	return res
}

func (s *Simulator) Status() dynamo.Status { return s.status }

// Time returns the simulated time of the latest sample.
func (s *Simulator) Time() float64 { return s.time }

func (s *Simulator) Temperature() float64 {
	if len(s.x) == 0 {
		return math.NaN()
	}
	return s.x[0]
}

// Trajectory returns a copy of the samples recorded so far.
func (s *Simulator) Trajectory() dynamo.Trajectory {
	return append(dynamo.Trajectory(nil), s.trajectory...)
}

func (s *Simulator) Warnings() []dynamo.InstabilityWarning {
	return append([]dynamo.InstabilityWarning(nil), s.warnings...)
}

// FineStep returns the effective uniform integration step.
func (s *Simulator) FineStep() float64 { return s.h }
