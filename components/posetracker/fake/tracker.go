// Package fake is a fake pose tracker for testing
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// PoseFunc decides what a tool reports for one pose request. Returning false means the tool is
// not visible and reports nothing.
type PoseFunc func(descriptor string, request int) (spatialmath.Transform, bool, error)

// Tracker is an in-memory posetracker.Service. Every failure point can be injected and every call
// is recorded so tests can assert on the exact sequence the caller issued.
type Tracker struct {
	mu sync.Mutex

	Clock  clock.Clock
	Logger logging.Logger

	OpenErr       error
	InitErr       error
	ToolErrs      map[string]error
	AttachErr     error
	ObserversErr  error
	StartErr      error
	StopErr       error
	CloseErr      error
	PoseFunc      PoseFunc
	FailOnRequest int

	Calls         []string
	CloseCount    int
	TimeoutChecks int

	opened      bool
	initialized bool
	attached    bool
	tracking    bool
	handles     []posetracker.ToolHandle
	descriptors map[posetracker.ToolHandle]string
	requests    map[posetracker.ToolHandle]int
	observers   []*posetracker.Observer
	totalReqs   int
}

// NewTracker returns a fake tracker whose tools always report the identity transform.
func NewTracker(logger logging.Logger) *Tracker {
	return &Tracker{
		Clock:       clock.New(),
		Logger:      logger,
		ToolErrs:    map[string]error{},
		descriptors: map[posetracker.ToolHandle]string{},
		requests:    map[posetracker.ToolHandle]int{},
	}
}

func (t *Tracker) record(call string) {
	t.Calls = append(t.Calls, call)
}

// Open implements posetracker.Service.
func (t *Tracker) Open(ctx context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("open")
	if t.OpenErr != nil {
		return t.OpenErr
	}
	t.opened = true
	t.Logger.Debugw("opened channel", "channel", channel)
	return nil
}

// InitializeTracker implements posetracker.Service.
func (t *Tracker) InitializeTracker(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("initialize_tracker")
	if !t.opened {
		return errors.New("communication channel is not open")
	}
	if t.InitErr != nil {
		return t.InitErr
	}
	t.initialized = true
	return nil
}

// InitializeTool implements posetracker.Service.
func (t *Tracker) InitializeTool(ctx context.Context, descriptor string) (posetracker.ToolHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("initialize_tool:" + descriptor)
	if !t.initialized {
		return "", errors.New("tracker is not initialized")
	}
	if err := t.ToolErrs[descriptor]; err != nil {
		return "", err
	}
	handle := posetracker.ToolHandle(uuid.NewString())
	t.handles = append(t.handles, handle)
	t.descriptors[handle] = descriptor
	return handle, nil
}

// AttachAll implements posetracker.Service.
func (t *Tracker) AttachAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("attach_all")
	if t.AttachErr != nil {
		return t.AttachErr
	}
	t.attached = true
	return nil
}

// CreateObservers implements posetracker.Service.
func (t *Tracker) CreateObservers(ctx context.Context) ([]*posetracker.Observer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("create_observers")
	if t.ObserversErr != nil {
		return nil, t.ObserversErr
	}
	if !t.attached {
		return nil, errors.New("tools are not attached")
	}
	t.observers = make([]*posetracker.Observer, len(t.handles))
	for i := range t.observers {
		t.observers[i] = posetracker.NewObserver()
	}
	return t.observers, nil
}

// StartTracking implements posetracker.Service.
func (t *Tracker) StartTracking(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("start_tracking")
	if t.StartErr != nil {
		return t.StartErr
	}
	t.tracking = true
	return nil
}

// StopTracking implements posetracker.Service.
func (t *Tracker) StopTracking(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("stop_tracking")
	t.tracking = false
	return t.StopErr
}

// RequestPose implements posetracker.Service. Tools only report while tracking.
func (t *Tracker) RequestPose(ctx context.Context, tool posetracker.ToolHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalReqs++
	if t.FailOnRequest > 0 && t.totalReqs == t.FailOnRequest {
		return posetracker.NewServiceFailure(errors.New("transport lost"))
	}
	descriptor, ok := t.descriptors[tool]
	if !ok {
		return errors.Errorf("unknown tool %q", tool)
	}
	if !t.tracking {
		return nil
	}
	request := t.requests[tool]
	t.requests[tool] = request + 1

	pose, visible := spatialmath.Identity(spatialmath.ValidForever), true
	if t.PoseFunc != nil {
		var err error
		pose, visible, err = t.PoseFunc(descriptor, request)
		if err != nil {
			return err
		}
	}
	if visible {
		posetracker.Publish(t.observers, tool, pose, t.Clock.Now())
	}
	return nil
}

// CheckTimeouts implements posetracker.Service.
func (t *Tracker) CheckTimeouts(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TimeoutChecks++
}

// SetLogger implements posetracker.Service.
func (t *Tracker) SetLogger(logger logging.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("set_logger")
	t.Logger = logger
}

// Close implements posetracker.Service.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("close")
	t.CloseCount++
	t.opened = false
	t.tracking = false
	return t.CloseErr
}

// Handles returns the tool handles in initialization order.
func (t *Tracker) Handles() []posetracker.ToolHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]posetracker.ToolHandle(nil), t.handles...)
}

// Requests returns how many pose requests the tool received while tracking.
func (t *Tracker) Requests(tool posetracker.ToolHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[tool]
}

// CallLog returns a copy of the recorded calls.
func (t *Tracker) CallLog() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Calls...)
}
