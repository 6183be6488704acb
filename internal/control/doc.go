// Package control provides the discrete temperature controllers.
//
// Controllers implement [dynamo.Controller] and are invoked once per control
// tick with the setpoint and the measured temperature:
//
//   - [PID] in three fixed variants: PI, PID, and PID with back-calculation
//     anti-windup
//   - [Manual]: constant heater power for open-loop experiments
//
// The variant is chosen once, at construction, by [New]:
//
//	ctrl, err := control.New(control.Params{
//		Kind: control.KindPI, Kp: 2, Ki: 0.5,
//		SamplePeriod: 1, OutputMin: 0, OutputMax: 10,
//	})
//
// Gains are in the parallel form. [StandardGains] converts Kp, Ti and Td.
package control
