package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/tanksim/internal/actuator"
	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/physics"
	"github.com/san-kum/tanksim/internal/setpoint"
	"github.com/san-kum/tanksim/internal/sim"
)

const (
	GainFormParallel = "parallel"
	GainFormStandard = "standard"
)

// Config is the flat description of one experiment. Zero-length
// ActuatorLimits default to the heater power range, or to ActuatorScaling
// when the command is scaled.
type Config struct {
	Name string `yaml:"name,omitempty"`

	TankVolume          float64 `yaml:"tank_volume"`
	FluidDensity        float64 `yaml:"fluid_density"`
	SpecificHeat        float64 `yaml:"specific_heat"`
	HeaterMaxPower      float64 `yaml:"heater_max_power"`
	HeaterMinPower      float64 `yaml:"heater_min_power"`
	InletFlowRate       float64 `yaml:"inlet_flow_rate"`
	InletTemperature    float64 `yaml:"inlet_temperature"`
	AmbientTemperature  float64 `yaml:"ambient_temperature"`
	HeatLossCoefficient float64 `yaml:"heat_loss_coefficient"`

	Controller         string  `yaml:"controller"`
	GainForm           string  `yaml:"gain_form,omitempty"`
	Kp                 float64 `yaml:"kp"`
	Ki                 float64 `yaml:"ki"`
	Kd                 float64 `yaml:"kd"`
	Ti                 float64 `yaml:"ti,omitempty"`
	Td                 float64 `yaml:"td,omitempty"`
	AntiWindup         string  `yaml:"anti_windup,omitempty"`
	DerivativeFilter   float64 `yaml:"derivative_filter,omitempty"`
	AllowNegativeGains bool    `yaml:"allow_negative_gains,omitempty"`
	OpenLoopPower      float64 `yaml:"open_loop_power,omitempty"`

	ActuatorLimits     []float64 `yaml:"actuator_limits,flow,omitempty"`
	ActuatorScaling    []float64 `yaml:"actuator_scaling,flow,omitempty"`
	ActuatorResolution float64   `yaml:"actuator_resolution,omitempty"`
	ActuatorDelay      int       `yaml:"actuator_delay,omitempty"`

	Integrator         string        `yaml:"integrator"`
	SamplePeriod       float64       `yaml:"sample_period"`
	FineStepSize       float64       `yaml:"fine_step_size"`
	RunDuration        float64       `yaml:"run_duration"`
	InitialTemperature float64       `yaml:"initial_temperature"`
	SetpointSchedule   setpoint.Spec `yaml:"setpoint_schedule"`
}

// Default returns a fresh configuration: a 1 m³ water tank with a 10 kW
// heater under PI control.
func Default() *Config {
	return &Config{
		Name:                "default",
		TankVolume:          1.0,
		FluidDensity:        1000,
		SpecificHeat:        4186,
		HeaterMaxPower:      10000,
		InletFlowRate:       0,
		InletTemperature:    15,
		AmbientTemperature:  20,
		HeatLossCoefficient: 50,
		Controller:          string(control.KindPI),
		GainForm:            GainFormParallel,
		Kp:                  2000,
		Ki:                  20,
		Integrator:          "rk4",
		SamplePeriod:        1,
		FineStepSize:        0.1,
		RunDuration:         3600,
		InitialTemperature:  20,
		SetpointSchedule:    setpoint.Spec{Value: 40},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadInto overlays the file at path onto cfg.
func LoadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.ActuatorLimits = append([]float64(nil), c.ActuatorLimits...)
	out.ActuatorScaling = append([]float64(nil), c.ActuatorScaling...)
	out.SetpointSchedule.Steps = append([]setpoint.Step(nil), c.SetpointSchedule.Steps...)
	return &out
}

func (c *Config) PlantParams() physics.Params {
	return physics.Params{
		Volume:        c.TankVolume,
		Density:       c.FluidDensity,
		SpecificHeat:  c.SpecificHeat,
		HeatLossCoeff: c.HeatLossCoefficient,
		AmbientTemp:   c.AmbientTemperature,
		InletFlow:     c.InletFlowRate,
		InletTemp:     c.InletTemperature,
		MaxPower:      c.HeaterMaxPower,
		MinPower:      c.HeaterMinPower,
	}
}

// Gains resolves Ki and Kd from the configured gain form.
func (c *Config) Gains() (kp, ki, kd float64) {
	if c.GainForm == GainFormStandard {
		ki, kd = control.StandardGains(c.Kp, c.Ti, c.Td)
		return c.Kp, ki, kd
	}
	return c.Kp, c.Ki, c.Kd
}

// OutputLimits returns the controller output range.
func (c *Config) OutputLimits() (lo, hi float64) {
	switch {
	case len(c.ActuatorLimits) == 2:
		return c.ActuatorLimits[0], c.ActuatorLimits[1]
	case len(c.ActuatorScaling) == 2:
		return c.ActuatorScaling[0], c.ActuatorScaling[1]
	}
	return c.HeaterMinPower, c.HeaterMaxPower
}

func (c *Config) ControllerParams() control.Params {
	kp, ki, kd := c.Gains()
	lo, hi := c.OutputLimits()
	return control.Params{
		Kind:               control.Kind(c.Controller),
		Kp:                 kp,
		Ki:                 ki,
		Kd:                 kd,
		SamplePeriod:       c.SamplePeriod,
		OutputMin:          lo,
		OutputMax:          hi,
		AntiWindup:         control.AntiWindup(c.AntiWindup),
		DerivativeFilter:   c.DerivativeFilter,
		AllowNegativeGains: c.AllowNegativeGains,
		OpenLoopOutput:     c.OpenLoopPower,
	}
}

func (c *Config) ActuatorConfig() actuator.Config {
	a := actuator.Config{
		PowerMin:   c.HeaterMinPower,
		PowerMax:   c.HeaterMaxPower,
		Resolution: c.ActuatorResolution,
		DelayTicks: c.ActuatorDelay,
	}
	if len(c.ActuatorScaling) == 2 {
		a.Scaled = true
		a.CommandMin = c.ActuatorScaling[0]
		a.CommandMax = c.ActuatorScaling[1]
	}
	return a
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		SamplePeriod:       c.SamplePeriod,
		FineStep:           c.FineStepSize,
		Duration:           c.RunDuration,
		InitialTemperature: c.InitialTemperature,
		ValidateState:      true,
	}
}

func (c *Config) Schedule() (dynamo.Setpoint, error) {
	return c.SetpointSchedule.Build()
}

// Validate checks every section and reports the first offending parameter.
func (c *Config) Validate() error {
	if err := c.PlantParams().Validate(); err != nil {
		return err
	}
	switch c.GainForm {
	case "", GainFormParallel, GainFormStandard:
	default:
		return fmt.Errorf("%w: unknown gain_form %q", dynamo.ErrInvalidParameter, c.GainForm)
	}
	if c.GainForm == GainFormStandard && c.Ti < 0 {
		return dynamo.InvalidGain("ti", c.Ti, "must not be negative")
	}
	if n := len(c.ActuatorLimits); n != 0 && n != 2 {
		return fmt.Errorf("%w: actuator_limits needs [min, max], got %d values", dynamo.ErrInvalidParameter, n)
	}
	if n := len(c.ActuatorScaling); n != 0 && n != 2 {
		return fmt.Errorf("%w: actuator_scaling needs [min, max], got %d values", dynamo.ErrInvalidParameter, n)
	}
	if err := c.ControllerParams().Validate(); err != nil {
		return err
	}
	if err := c.ActuatorConfig().Validate(); err != nil {
		return err
	}
	if err := c.SimConfig().Validate(); err != nil {
		return err
	}
	if _, err := c.Schedule(); err != nil {
		return err
	}
	return nil
}
