package config

import (
	"sort"

	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/setpoint"
)

var presets = map[string]func() *Config{
	// A tiny isolated vessel heated to a setpoint 5 K above its start.
	"lab-step": func() *Config {
		c := Default()
		c.Name = "lab-step"
		c.TankVolume = 1
		c.FluidDensity = 1
		c.SpecificHeat = 4186
		c.HeaterMaxPower = 10
		c.InletFlowRate = 0
		c.HeatLossCoefficient = 0
		c.Kp, c.Ki, c.Kd = 2, 0.5, 0
		c.Integrator = "euler"
		c.RunDuration = 4000
		c.InitialTemperature = 20
		c.SetpointSchedule = setpoint.Spec{Value: 25}
		return c
	},

	// 5 m³ vessel with through-flow heated by condensing steam. Command
	// 0..10 maps onto 0..10 kg/s of steam at 2.3 MJ/kg.
	"steam-heated": func() *Config {
		c := Default()
		c.Name = "steam-heated"
		c.TankVolume = 5
		c.FluidDensity = 1000
		c.SpecificHeat = 4200
		c.HeaterMaxPower = 2.3e7
		c.InletFlowRate = 0.1
		c.InletTemperature = 15
		c.HeatLossCoefficient = 0
		c.Controller = string(control.KindPID)
		c.GainForm = GainFormStandard
		c.Kp, c.Ti, c.Td = 0.05, 1, 0.1
		c.Ki, c.Kd = 0, 0
		c.ActuatorScaling = []float64{0, 10}
		c.Integrator = "euler"
		c.SamplePeriod = 0.1
		c.FineStepSize = 0.1
		c.RunDuration = 3600
		c.InitialTemperature = 15
		c.SetpointSchedule = setpoint.Spec{Value: 40}
		return c
	},

	// The setpoint asks for more than the heater can deliver, then drops to
	// a reachable value. Set anti_windup: none to see the windup.
	"windup-demo": func() *Config {
		c := Default()
		c.Name = "windup-demo"
		c.TankVolume = 0.01
		c.HeaterMaxPower = 5000
		c.HeatLossCoefficient = 100
		c.InletFlowRate = 0
		c.Kp, c.Ki = 500, 5
		c.Integrator = "euler"
		c.RunDuration = 3600
		c.SetpointSchedule = setpoint.Spec{
			Type:  setpoint.TypeSteps,
			Value: 150,
			Steps: []setpoint.Step{{At: 3000, Value: 60}},
		}
		return c
	},

	// A heater/cooler pair holding a through-flow tank at its natural
	// equilibrium.
	"cooling-loop": func() *Config {
		c := Default()
		c.Name = "cooling-loop"
		c.HeaterMaxPower = 20000
		c.HeaterMinPower = -20000
		c.InletFlowRate = 0.001
		c.HeatLossCoefficient = 500
		c.Kp, c.Ki = 2000, 20
		c.RunDuration = 20000
		c.InitialTemperature = 25
		c.SetpointSchedule = setpoint.Spec{Value: 15}
		return c
	},
}

// Preset returns a fresh copy of the named preset, or nil.
func Preset(name string) *Config {
	build, ok := presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
