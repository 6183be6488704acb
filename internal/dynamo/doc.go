// Package dynamo provides the shared primitives of the tank simulator.
//
// The package defines the interfaces and value types that the plant,
// controller, actuator and driver packages exchange:
//
//   - [State]: plant state vector (the tank has a single temperature node)
//   - [System]: continuous-time model dX/dt = f(X, u, t)
//   - [Integrator]: fixed-step numerical scheme advancing a [System]
//   - [Controller]: discrete feedback law invoked once per control tick
//   - [Setpoint]: time-indexed target temperature
//   - [Sample], [Trajectory]: the recorded run output
//
// # Example
//
//	tank, _ := physics.NewTank(params)
//	ctrl, _ := control.New(control.DefaultParams())
//	s := sim.New(tank, integrators.NewRK4(), ctrl, zoh, setpoint.Constant(40))
//	_ = s.Init(cfg)
//	result, _ := s.Run(ctx)
//
// # Thread Safety
//
// None of the stateful types are safe for concurrent use. Independent runs
// can execute in parallel through [RunEnsemble] as long as every run owns its
// own plant, controller and simulator.
package dynamo
