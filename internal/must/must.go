// Package must provides small helpers for operations that are expected to
// succeed but whose failure should be logged rather than escalated, such as
// best-effort cleanup paths.
package must

import (
	"io"

	"github.com/atelier-assets/atelier/internal/logging"
)

// Close closes c, logging (rather than returning) any error.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %v", err)
	}
}

// Succeed logs a failure from an operation whose error cannot be usefully
// propagated (e.g. best-effort cleanup during shutdown).
func Succeed(err error, description string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("unable to %s: %v", description, err)
	}
}
