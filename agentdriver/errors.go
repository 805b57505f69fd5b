package agentdriver

import (
	"fmt"
)

// CLINotFoundError indicates the vendor CLI binary could not be resolved.
type CLINotFoundError struct {
	Vendor  Vendor
	Command string
	EnvVar  string
	Cause   error
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("%s CLI %q not found: %v (install it on PATH or set %s)",
		e.Vendor, e.Command, e.Cause, e.EnvVar)
}

func (e *CLINotFoundError) Unwrap() error {
	return e.Cause
}

// ProcessError represents a subprocess-level failure: spawn, pipe, or a
// nonzero exit that the vendor did not report through its event stream.
type ProcessError struct {
	Cause    error
	Message  string
	Stderr   string
	ExitCode int
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("process error: %s: %s", e.Message, e.Stderr)
	}
	if e.Cause != nil {
		return fmt.Sprintf("process error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("process error: %s", e.Message)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}
