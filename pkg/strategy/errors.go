package strategy

import "fmt"

// InsufficientDataError reports a series shorter than the minimum lookback
// required by the chosen parameters. It is raised once at generator
// construction, never lazily per bar.
type InsufficientDataError struct {
	Strategy string
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("strategy %s requires at least %d bars, got %d", e.Strategy, e.Required, e.Got)
}

// InvalidParameterError reports a parameter rejected at construction.
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}
