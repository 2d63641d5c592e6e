package service

import "fmt"

// InsufficientDataError reports that a user's transaction history is too
// short for the requested computation.
type InsufficientDataError struct {
	Operation string
	Required  int
	Actual    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d transactions, have %d", e.Operation, e.Required, e.Actual)
}

// ModelUnavailableError reports that a requested forecasting model cannot
// run in this deployment.
type ModelUnavailableError struct {
	Model  string
	Reason string
}

func (e *ModelUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("forecast model %q unavailable: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("forecast model %q unavailable", e.Model)
}
