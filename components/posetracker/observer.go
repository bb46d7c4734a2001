package posetracker

import (
	"sync"
	"time"

	"go.viam.com/needletrack/spatialmath"
)

// An Observer is a single-shot slot holding the last pose reported by the tool it is bound to.
// It is cleared before each request and inspected right after.
type Observer struct {
	mu         sync.Mutex
	tool       ToolHandle
	bound      bool
	got        bool
	transform  spatialmath.Transform
	capturedAt time.Time
}

// NewObserver returns an empty, unbound observer.
func NewObserver() *Observer {
	return &Observer{}
}

// ObserveTransformEventsFrom binds the observer to tool. Rebinding discards any captured pose.
func (o *Observer) ObserveTransformEventsFrom(tool ToolHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tool = tool
	o.bound = true
	o.got = false
}

// Tool returns the tool the observer is bound to.
func (o *Observer) Tool() (ToolHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tool, o.bound
}

// Clear discards the captured pose, if any.
func (o *Observer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = false
	o.transform = spatialmath.Transform{}
	o.capturedAt = time.Time{}
}

// Capture stores a pose reported by tool. Poses from other tools are ignored and false is returned.
func (o *Observer) Capture(tool ToolHandle, transform spatialmath.Transform, at time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.bound || tool != o.tool {
		return false
	}
	o.got = true
	o.transform = transform
	o.capturedAt = at
	return true
}

// GotTransform returns whether a pose was captured since the last Clear.
func (o *Observer) GotTransform() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.got
}

// Transform returns the captured pose and when it was captured.
func (o *Observer) Transform() (spatialmath.Transform, time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transform, o.capturedAt, o.got
}

// Publish delivers a pose reported by tool to every observer bound to it.
func Publish(observers []*Observer, tool ToolHandle, transform spatialmath.Transform, at time.Time) int {
	delivered := 0
	for _, o := range observers {
		if o.Capture(tool, transform, at) {
			delivered++
		}
	}
	return delivered
}
