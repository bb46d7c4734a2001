package tracking

import (
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/spatialmath"
)

// A Tool is a tracked rigid body attached to the tracker.
type Tool struct {
	ID         posetracker.ToolHandle
	Role       Role
	Descriptor string
	// Static is the transform from the tool's scene object to the tool itself.
	Static spatialmath.Transform
}

// Registry holds the tools of a configured session and the observer bound to each.
type Registry struct {
	tools     [NumRoles]Tool
	observers [NumRoles]*posetracker.Observer
}

func newRegistry(handles [NumRoles]posetracker.ToolHandle, descriptors [NumRoles]string, observers []*posetracker.Observer) (*Registry, error) {
	if len(observers) != int(NumRoles) {
		return nil, errors.Errorf("expected %d observers, got %d", NumRoles, len(observers))
	}
	if dups := lo.FindDuplicates(handles[:]); len(dups) > 0 {
		return nil, errors.Errorf("tool handles %v were issued more than once", dups)
	}
	r := &Registry{}
	for _, role := range Roles {
		if observers[role] == nil {
			return nil, errors.Errorf("no observer for %s tool", role)
		}
		if bound, ok := observers[role].Tool(); ok && bound != handles[role] {
			return nil, errors.Errorf("observer for %s tool is already bound to tool %q", role, bound)
		}
		r.tools[role] = Tool{
			ID:         handles[role],
			Role:       role,
			Descriptor: descriptors[role],
			Static:     spatialmath.Identity(spatialmath.ValidForever),
		}
		r.observers[role] = observers[role]
		r.observers[role].ObserveTransformEventsFrom(handles[role])
	}
	return r, nil
}

// Tool returns the tool playing role.
func (r *Registry) Tool(role Role) Tool {
	return r.tools[role]
}

// Tools returns every tool in role order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools[:]...)
}

// Observer returns the observer bound to the tool playing role.
func (r *Registry) Observer(role Role) *posetracker.Observer {
	return r.observers[role]
}

func (r *Registry) setStatic(role Role, static spatialmath.Transform) {
	r.tools[role].Static = static
}

// Pose returns the transform to parent the tool reported since its observer was last cleared. A
// pose that has outlived its validity at now is treated as not reported.
func (r *Registry) Pose(role Role, now time.Time) (spatialmath.Transform, bool) {
	pose, capturedAt, ok := r.observers[role].Transform()
	if !ok || pose.Expired(capturedAt, now) {
		return spatialmath.Transform{}, false
	}
	return pose, true
}
