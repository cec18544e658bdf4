package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrAlreadyRunning is returned by Start when a monitoring session is
	// already active.
	ErrAlreadyRunning = errors.New("monitoring already active")

	// ErrUnsupportedPlatform is returned for platform names outside the
	// supported set.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrTargetUnavailable means the platform window was absent or
	// minimized for a sample. Recoverable: skip and retry.
	ErrTargetUnavailable = errors.New("target platform window unavailable")

	// ErrCancelled is the normal outcome of a cancelled worker. Not a
	// fault.
	ErrCancelled = errors.New("cancelled")

	// ErrNotVerified means the lockout was refused because the block name
	// is not on the verified allow-list.
	ErrNotVerified = errors.New("block name not verified")

	// ErrVerificationFailed means the verification gate could not confirm
	// the blocker actually locks. Fatal for setup; the allow-list is left
	// untouched.
	ErrVerificationFailed = errors.New("blocker verification failed")
)

// ConfigurationError rejects invalid region/threshold/duration input before
// a session starts.
type ConfigurationError struct {
	Reason string
	Inner  error
}

// NewConfigurationError wraps a validation failure.
func NewConfigurationError(reason string, inner error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Inner: inner}
}

func (e *ConfigurationError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Inner)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Inner }

// LaunchError means the external blocker invocation itself failed to spawn
// (missing executable, permission). Fatal for the current lockout attempt:
// surfaced, never silently retried, since a believed-but-failed lockout is a
// discipline-integrity violation.
type LaunchError struct {
	Executable string
	Inner      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch blocker %q: %v", e.Executable, e.Inner)
}

func (e *LaunchError) Unwrap() error { return e.Inner }

// IsLaunchError reports whether err is (or wraps) a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
