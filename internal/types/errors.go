package types

import (
	"errors"
	"fmt"
)

// ErrNoUsableData is returned by the aligner when no variable produced a valid
// or filled sample in the processing window. It aborts the run.
var ErrNoUsableData = errors.New("no variable produced any usable sample in the processing window")

// AcquisitionError reports that the raw data for one variable could not be
// fetched or parsed. The variable is treated as entirely missing.
type AcquisitionError struct {
	Variable string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed for %s: %v", e.Variable, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a variable with missing or inconsistent metadata.
// The variable is skipped for the run.
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for variable %s: %s", e.Variable, e.Reason)
}
