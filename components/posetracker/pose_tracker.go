// Package posetracker contains the interface to a multi-tool pose tracker and the observer slots
// its pose updates are delivered through.
package posetracker

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/needletrack/logging"
)

// ToolHandle identifies a tool attached to a tracker. Handles are assigned by the tracker at
// attach time and are otherwise opaque.
type ToolHandle string

// A Service is a tracking device that reports the pose of each attached tool relative to its
// parent. Pose requests never block: a reported pose is captured by every Observer bound to the
// tool, and a tool that is not visible simply reports nothing.
type Service interface {
	// Open opens the communication channel to the device.
	Open(ctx context.Context, channel string) error
	InitializeTracker(ctx context.Context) error
	// InitializeTool loads a tool descriptor and returns the handle of the new tool.
	InitializeTool(ctx context.Context, descriptor string) (ToolHandle, error)
	AttachAll(ctx context.Context) error
	// CreateObservers returns one unbound observer per initialized tool, in initialization order.
	CreateObservers(ctx context.Context) ([]*Observer, error)

	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
	// RequestPose asks the tool to report its transform to parent.
	RequestPose(ctx context.Context, tool ToolHandle) error
	// CheckTimeouts services pending timers of the device transport. It must not block.
	CheckTimeouts(now time.Time)

	SetLogger(logger logging.Logger)
	Close(ctx context.Context) error
}

// ServiceFailure is a failure of the tracker itself, such as a lost transport, as opposed to a
// single tool failing to report.
type ServiceFailure struct {
	Err error
}

// NewServiceFailure wraps err as a ServiceFailure.
func NewServiceFailure(err error) error {
	if err == nil {
		return nil
	}
	return &ServiceFailure{Err: err}
}

func (e *ServiceFailure) Error() string {
	return "tracker service failure: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ServiceFailure) Unwrap() error {
	return e.Err
}

// IsServiceFailure returns whether err is or wraps a ServiceFailure.
func IsServiceFailure(err error) bool {
	var failure *ServiceFailure
	return errors.As(err, &failure)
}
