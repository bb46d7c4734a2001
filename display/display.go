// Package display defines the consumers of the tracking pipeline: the sink that shows live
// coordinates and the scene objects that are posed relative to tracked tools.
package display

import (
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// Coordinates holds the probe position followed by the needle position.
type Coordinates [6]float64

// NewCoordinates packs a probe and needle position.
func NewCoordinates(probe, needle r3.Vector) Coordinates {
	return Coordinates{probe.X, probe.Y, probe.Z, needle.X, needle.Y, needle.Z}
}

// Probe returns the probe position.
func (c Coordinates) Probe() r3.Vector {
	return r3.Vector{X: c[0], Y: c[1], Z: c[2]}
}

// Needle returns the needle position.
func (c Coordinates) Needle() r3.Vector {
	return r3.Vector{X: c[3], Y: c[4], Z: c[5]}
}

func (c Coordinates) String() string {
	return fmt.Sprintf("probe: (%.2f, %.2f, %.2f) needle: (%.2f, %.2f, %.2f)", c[0], c[1], c[2], c[3], c[4], c[5])
}

// A Sink consumes the output of a tracking session.
type Sink interface {
	SetCoordinates(coords Coordinates)
	// HasQuitRequested is polled once per tick; returning true ends tracking.
	HasQuitRequested() bool
	SetTrackerHandle(tracker posetracker.Service)
	// SetViewParent places the view camera relative to a tool.
	SetViewParent(transform spatialmath.Transform, parent posetracker.ToolHandle)
	// ShowError shows an operator facing error.
	ShowError(err error)
	SetLogger(logger logging.Logger)
	Close() error
}

// A SceneObject is a renderable whose pose is a static transform relative to a tracked tool.
type SceneObject interface {
	Name() string
	SetTransformAndParent(transform spatialmath.Transform, parent posetracker.ToolHandle)
}

// Object is a SceneObject that remembers its last assignment.
type Object struct {
	name      string
	assigned  bool
	transform spatialmath.Transform
	parent    posetracker.ToolHandle
}

// NewObject returns an unplaced scene object.
func NewObject(name string) *Object {
	return &Object{name: name}
}

// Name returns the object name.
func (o *Object) Name() string {
	return o.name
}

// SetTransformAndParent implements SceneObject.
func (o *Object) SetTransformAndParent(transform spatialmath.Transform, parent posetracker.ToolHandle) {
	o.assigned = true
	o.transform = transform
	o.parent = parent
}

// Placement returns the last assignment and whether there was one.
func (o *Object) Placement() (spatialmath.Transform, posetracker.ToolHandle, bool) {
	return o.transform, o.parent, o.assigned
}
