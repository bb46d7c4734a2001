package tracking

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/needletrack/calibration"
)

var (
	// ErrNotConfigured is returned by tracking and logging requests made before configuration.
	ErrNotConfigured = errors.New("tracker is not configured, please configure tracker first")
	// ErrAlreadyConfigured is returned when configuring a session twice. There is no reset path.
	ErrAlreadyConfigured = errors.New("tracker is already configured")
	// ErrSessionClosed is returned once a session's tracker has been closed.
	ErrSessionClosed = errors.New("tracking session is closed")
)

// ConfigurationError is a failure talking to the tracker while configuring a session.
type ConfigurationError struct {
	Step string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("device communication failure: %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TrackerServiceFailure is a tracker failure that ended a tracking loop.
type TrackerServiceFailure struct {
	Op  string
	Err error
}

func (e *TrackerServiceFailure) Error() string {
	return fmt.Sprintf("device communication failure: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TrackerServiceFailure) Unwrap() error {
	return e.Err
}

// Category groups errors the way they are reported to an operator.
type Category int

// The operator facing error categories.
const (
	CategoryUnknown Category = iota
	CategoryNotConfigured
	CategoryCalibration
	CategoryDevice
)

func (c Category) String() string {
	switch c {
	case CategoryNotConfigured:
		return "tracker not configured"
	case CategoryCalibration:
		return "calibration data missing or invalid"
	case CategoryDevice:
		return "device communication failure"
	case CategoryUnknown:
	}
	return "unknown error"
}

// Describe returns the operator facing category of err.
func Describe(err error) Category {
	var (
		ioErr      *calibration.IOError
		formatErr  *calibration.FormatError
		configErr  *ConfigurationError
		failureErr *TrackerServiceFailure
	)
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrSessionClosed):
		return CategoryNotConfigured
	case errors.As(err, &ioErr), errors.As(err, &formatErr):
		return CategoryCalibration
	case errors.As(err, &configErr), errors.As(err, &failureErr):
		return CategoryDevice
	}
	return CategoryUnknown
}
