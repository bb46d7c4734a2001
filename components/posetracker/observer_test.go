package posetracker

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/needletrack/spatialmath"
)

func TestObserverLifecycle(t *testing.T) {
	o := NewObserver()
	pose := spatialmath.Identity(time.Second)
	pose.Translation = r3.Vector{X: 1, Y: 2, Z: 3}
	now := time.Now()

	// unbound observers capture nothing
	test.That(t, o.Capture("a", pose, now), test.ShouldBeFalse)
	_, bound := o.Tool()
	test.That(t, bound, test.ShouldBeFalse)

	o.ObserveTransformEventsFrom("a")
	test.That(t, o.Capture("b", pose, now), test.ShouldBeFalse)
	test.That(t, o.GotTransform(), test.ShouldBeFalse)

	test.That(t, o.Capture("a", pose, now), test.ShouldBeTrue)
	test.That(t, o.GotTransform(), test.ShouldBeTrue)
	got, at, ok := o.Transform()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldResemble, pose)
	test.That(t, at, test.ShouldEqual, now)

	o.Clear()
	test.That(t, o.GotTransform(), test.ShouldBeFalse)
	_, _, ok = o.Transform()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPublish(t *testing.T) {
	a, b, c := NewObserver(), NewObserver(), NewObserver()
	a.ObserveTransformEventsFrom("ref")
	b.ObserveTransformEventsFrom("probe")
	c.ObserveTransformEventsFrom("ref")

	n := Publish([]*Observer{a, b, c}, "ref", spatialmath.Identity(spatialmath.ValidForever), time.Now())
	test.That(t, n, test.ShouldEqual, 2)
	test.That(t, a.GotTransform(), test.ShouldBeTrue)
	test.That(t, b.GotTransform(), test.ShouldBeFalse)
	test.That(t, c.GotTransform(), test.ShouldBeTrue)
}

func TestServiceFailure(t *testing.T) {
	test.That(t, NewServiceFailure(nil), test.ShouldBeNil)

	cause := errors.New("serial port unplugged")
	err := NewServiceFailure(cause)
	test.That(t, IsServiceFailure(err), test.ShouldBeTrue)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "serial port unplugged")
	test.That(t, IsServiceFailure(cause), test.ShouldBeFalse)
}
