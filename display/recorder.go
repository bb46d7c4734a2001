package display

import (
	"sync"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// Delivery is one coordinate update and the quit poll it followed.
type Delivery struct {
	Poll   int
	Coords Coordinates
}

// Recorder is a Sink that keeps everything it is given. QuitAfter, when set, is consulted on
// every quit poll with the 1-based poll count.
type Recorder struct {
	mu sync.Mutex

	QuitAfter func(poll int) bool
	CloseErr  error

	Deliveries []Delivery
	Errors     []error
	Tracker    posetracker.Service
	ViewParent posetracker.ToolHandle
	Logger     logging.Logger
	Polls      int
	Closed     int
}

// SetCoordinates implements Sink.
func (r *Recorder) SetCoordinates(coords Coordinates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deliveries = append(r.Deliveries, Delivery{Poll: r.Polls, Coords: coords})
}

// HasQuitRequested implements Sink.
func (r *Recorder) HasQuitRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Polls++
	return r.QuitAfter != nil && r.QuitAfter(r.Polls)
}

// SetTrackerHandle implements Sink.
func (r *Recorder) SetTrackerHandle(tracker posetracker.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tracker = tracker
}

// SetViewParent implements Sink.
func (r *Recorder) SetViewParent(transform spatialmath.Transform, parent posetracker.ToolHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ViewParent = parent
}

// ShowError implements Sink.
func (r *Recorder) ShowError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// SetLogger implements Sink.
func (r *Recorder) SetLogger(logger logging.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logger = logger
}

// Close implements Sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed++
	return r.CloseErr
}
