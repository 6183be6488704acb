// Package analysis characterises recorded trajectories.
//
//   - [Step]: rise time, peak, overshoot, settling time and steady-state
//     error of a setpoint step
//   - [Compare]: pointwise difference between two runs on the same time grid
//   - [AgainstReference]: error of a run against a closed-form solution
//   - [Order]: observed convergence order from two step sizes
//
// A run whose setpoint changes several times is analysed by slicing the
// trajectory with [Window].
package analysis
