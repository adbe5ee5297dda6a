package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Process exit codes.
const (
	// ExitSuccess indicates normal termination.
	ExitSuccess = 0
	// ExitConfigurationError indicates invalid flags or configuration.
	ExitConfigurationError = 1
	// ExitIOError indicates a filesystem or locking failure.
	ExitIOError = 2
	// ExitDatabaseError indicates a fatal database failure.
	ExitDatabaseError = 3
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and then terminates the
// process with ExitConfigurationError.
func Fatal(err error) {
	FatalWithCode(err, ExitConfigurationError)
}

// FatalWithCode prints an error message to standard error and then
// terminates the process with the given exit code.
func FatalWithCode(err error, code int) {
	Error(err)
	os.Exit(code)
}
