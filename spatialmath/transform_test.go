package spatialmath

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// a 90 degree rotation around the z axis
var rot90z = quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)}

func TestNewTransform(t *testing.T) {
	tf, err := NewTransform(r3.Vector{X: 1, Y: 2, Z: 3}, quat.Number{Real: 2}, 0.5, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tf.Rotation, test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, tf.Translation, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, tf.IsStatic(), test.ShouldBeFalse)

	tf, err = NewTransform(r3.Vector{}, quat.Number{Imag: 3, Jmag: 4}, 0, ValidForever)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quat.Abs(tf.Rotation), test.ShouldAlmostEqual, 1)
	test.That(t, tf.Rotation.Imag, test.ShouldAlmostEqual, 0.6)
	test.That(t, tf.Rotation.Jmag, test.ShouldAlmostEqual, 0.8)

	_, err = NewTransform(r3.Vector{}, quat.Number{}, 0, ValidForever)
	test.That(t, err, test.ShouldBeError, ErrZeroRotation)

	_, err = NewTransform(r3.Vector{}, quat.Number{Real: 1}, -1, ValidForever)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIdentityComposition(t *testing.T) {
	id := Identity(ValidForever)
	tf, err := NewTransform(r3.Vector{X: -4.25, Y: 0.5, Z: 1e3}, quat.Number{Real: 0.3, Imag: -0.2, Jmag: 0.9, Kmag: 0.1}, 10, time.Minute)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, Compose(id, tf), test.ShouldResemble, tf)
	test.That(t, Compose(tf, id), test.ShouldResemble, tf)
}

func TestCompose(t *testing.T) {
	a, err := NewTransform(r3.Vector{X: 10}, rot90z, 1, ValidForever)
	test.That(t, err, test.ShouldBeNil)
	b, err := NewTransform(r3.Vector{X: 1}, quat.Number{Real: 1}, 2, time.Second)
	test.That(t, err, test.ShouldBeNil)

	c := Compose(a, b)
	test.That(t, c.Translation.X, test.ShouldAlmostEqual, 10)
	test.That(t, c.Translation.Y, test.ShouldAlmostEqual, 1)
	test.That(t, c.Translation.Z, test.ShouldAlmostEqual, 0)
	test.That(t, quaternionAlmostEqual(c.Rotation, rot90z, 1e-9), test.ShouldBeTrue)
	test.That(t, c.Error, test.ShouldEqual, 3)
	test.That(t, c.Validity, test.ShouldEqual, time.Second)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	static := Identity(ValidForever)
	test.That(t, static.Expired(now.Add(-time.Hour*24*365), now), test.ShouldBeFalse)

	live := Identity(100 * time.Millisecond)
	test.That(t, live.Expired(now.Add(-50*time.Millisecond), now), test.ShouldBeFalse)
	test.That(t, live.Expired(now.Add(-150*time.Millisecond), now), test.ShouldBeTrue)
}

func quaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}
