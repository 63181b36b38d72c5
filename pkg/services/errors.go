// Package services implements the control-plane operations behind the
// HTTP API: validation, the concurrency cap, and run lifecycle calls.
package services

import "errors"

var (
	// ErrTestNotFound is returned when a test run does not exist.
	ErrTestNotFound = errors.New("test not found")

	// ErrInvalidScenario is returned for unknown scenario types.
	ErrInvalidScenario = errors.New("invalid scenario type")

	// ErrMaxTestsReached is returned when the concurrency cap is hit.
	ErrMaxTestsReached = errors.New("maximum concurrent tests reached")

	// ErrInvalidStatus is returned for lifecycle calls on a run whose
	// status does not permit them.
	ErrInvalidStatus = errors.New("invalid test status for this operation")

	// ErrTestActive is returned when deleting a run that is still active.
	ErrTestActive = errors.New("test is active")

	// ErrInvalidDuration is returned when durationSeconds is out of bounds.
	ErrInvalidDuration = errors.New("durationSeconds out of bounds")
)
