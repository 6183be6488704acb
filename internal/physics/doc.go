// Package physics implements the continuous-time plant models.
//
// The only model is [Tank], a lumped-capacitance energy balance of a heated,
// stirred, continuously fed tank. It implements [dynamo.System] with a
// single state (the fluid temperature) and a single input (heater power).
//
// Evaluating the model has no side effects; all validation happens once in
// [NewTank].
//
// # Energy balance
//
//	dT/dt = [q_in·ρ·c_p·(T_in − T) + u − U·A·(T − T_amb)] / (V·ρ·c_p)
//
// Heater power u is clamped to [MinPower, MaxPower] before it enters the
// balance.
package physics
