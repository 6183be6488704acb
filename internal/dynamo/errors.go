package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation setup and execution.
var (
	// ErrInvalidParameter indicates a non-physical or out-of-range parameter.
	ErrInvalidParameter = errors.New("dynamo: invalid parameter")

	// ErrInvalidGains indicates negative controller gains where they are not permitted.
	ErrInvalidGains = errors.New("dynamo: invalid controller gains")

	// ErrInvalidState indicates a state with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrNotInitialized indicates a step was requested before Init.
	ErrNotInitialized = errors.New("dynamo: simulator not initialized")

	// ErrAlreadyInitialized indicates Init was called twice.
	ErrAlreadyInitialized = errors.New("dynamo: simulator already initialized")

	// ErrCompleted indicates a step was requested after the run finished.
	ErrCompleted = errors.New("dynamo: simulation already completed")
)

// ParameterError names the parameter that failed validation. Kind is one of
// the sentinel errors above and is what errors.Is matches against.
type ParameterError struct {
	Param  string
	Value  float64
	Reason string
	Kind   error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%v: %s=%g %s", e.Kind, e.Param, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return e.Kind
}

func InvalidParameter(param string, value float64, reason string) error {
	return &ParameterError{Param: param, Value: value, Reason: reason, Kind: ErrInvalidParameter}
}

func InvalidGain(param string, value float64, reason string) error {
	return &ParameterError{Param: param, Value: value, Reason: reason, Kind: ErrInvalidGains}
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("tick %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// InstabilityWarning is a diagnostic: the fine step exceeds the stable step
// of the chosen explicit scheme for the plant's time constant. The run
// still proceeds.
type InstabilityWarning struct {
	Integrator   string  `json:"integrator"`
	FineStep     float64 `json:"fine_step"`
	StableStep   float64 `json:"stable_step"`
	TimeConstant float64 `json:"time_constant"`
}

func (w InstabilityWarning) String() string {
	return fmt.Sprintf("numerical instability: %s fine step %.4gs exceeds stable limit %.4gs (tau=%.4gs)",
		w.Integrator, w.FineStep, w.StableStep, w.TimeConstant)
}
