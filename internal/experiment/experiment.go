// Package experiment assembles a runnable simulation from a configuration.
package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/tanksim/internal/actuator"
	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/metrics"
	"github.com/san-kum/tanksim/internal/physics"
	"github.com/san-kum/tanksim/internal/sim"
)

type options struct {
	registry  *Registry
	logger    *slog.Logger
	observers []dynamo.Observer
	stops     []sim.StopCondition
	metrics   bool
}

type Option func(*options)

func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs dynamo.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

func WithStop(c sim.StopCondition) Option {
	return func(o *options) { o.stops = append(o.stops, c) }
}

// WithoutMetrics skips the default metrics.
func WithoutMetrics() Option {
	return func(o *options) { o.metrics = false }
}

// Experiment is one initialised simulation built from a config.
type Experiment struct {
	cfg        *config.Config
	tank       *physics.Tank
	controller dynamo.Controller
	actuator   *actuator.ZeroOrderHold
	integrator dynamo.Integrator
	simulator  *sim.Simulator
}

// New validates cfg, builds every component and initialises the simulator.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	o := options{metrics: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tank, err := physics.NewTank(cfg.PlantParams())
	if err != nil {
		return nil, err
	}
	ctrl, err := control.New(cfg.ControllerParams())
	if err != nil {
		return nil, err
	}
	act, err := actuator.New(cfg.ActuatorConfig())
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	integ, err := o.registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	simOpts := []sim.Option{sim.WithLogger(o.logger.With("run", cfg.Name))}
	if o.metrics {
		for _, m := range metrics.Defaults(cfg.HeaterMinPower, cfg.HeaterMaxPower) {
			simOpts = append(simOpts, sim.WithMetric(m))
		}
	}
	for _, obs := range o.observers {
		simOpts = append(simOpts, sim.WithObserver(obs))
	}
	for _, c := range o.stops {
		simOpts = append(simOpts, sim.WithStop(c))
	}

	s := sim.New(tank, integ, ctrl, act, schedule, simOpts...)
	if err := s.Init(cfg.SimConfig()); err != nil {
		return nil, err
	}

	return &Experiment{
		cfg:        cfg,
		tank:       tank,
		controller: ctrl,
		actuator:   act,
		integrator: integ,
		simulator:  s,
	}, nil
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx)
}

// AddObserver attaches obs after construction. Samples already recorded,
// such as the initial one, are replayed to it first.
func (e *Experiment) AddObserver(obs dynamo.Observer) {
	for _, sample := range e.simulator.Trajectory() {
		obs.OnSample(sample)
	}
	e.simulator.AddObserver(obs)
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Tank() *physics.Tank { return e.tank }

func (e *Experiment) Controller() dynamo.Controller { return e.controller }

// GetSimulator returns the underlying simulator for stepping by hand.
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// Run builds and runs cfg in one call.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (*dynamo.Result, error) {
	exp, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}
