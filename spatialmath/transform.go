// Package spatialmath defines the rigid transforms reported by tracked tools and
// the operations used to chain them into a common reference frame.
package spatialmath

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// ValidForever is the validity of a static transform. A transform with this validity never expires.
const ValidForever time.Duration = math.MaxInt64

// ErrZeroRotation is returned when a rotation with no magnitude is used to build a transform.
var ErrZeroRotation = errors.New("rotation quaternion has zero norm")

// Transform is a rigid transform from a child frame to its parent. Rotation is always a unit
// quaternion. Error is the uncertainty bound reported alongside the transform and Validity is
// how long after capture the transform may be used.
type Transform struct {
	Translation r3.Vector
	Rotation    quat.Number
	Error       float64
	Validity    time.Duration
}

// Identity returns a transform with no translation or rotation, zero error, and the given validity.
func Identity(validity time.Duration) Transform {
	return Transform{Rotation: quat.Number{Real: 1}, Validity: validity}
}

// NewTransform builds a transform, normalizing the rotation. It fails if the rotation has zero
// norm or if the error bound is negative.
func NewTransform(translation r3.Vector, rotation quat.Number, errorValue float64, validity time.Duration) (Transform, error) {
	if errorValue < 0 || math.IsNaN(errorValue) {
		return Transform{}, errors.Errorf("error bound must be non-negative, got %v", errorValue)
	}
	unit, err := Normalize(rotation)
	if err != nil {
		return Transform{}, err
	}
	return Transform{
		Translation: translation,
		Rotation:    unit,
		Error:       errorValue,
		Validity:    validity,
	}, nil
}

// IsStatic returns whether the transform never expires.
func (t Transform) IsStatic() bool {
	return t.Validity == ValidForever
}

// Expired returns whether a transform captured at capturedAt is stale at now.
func (t Transform) Expired(capturedAt, now time.Time) bool {
	if t.IsStatic() {
		return false
	}
	return now.Sub(capturedAt) > t.Validity
}

// Compose returns the transform equivalent to applying b and then a. Errors add and the
// validity of the result is the shorter of the two.
func Compose(a, b Transform) Transform {
	validity := a.Validity
	if b.Validity < validity {
		validity = b.Validity
	}
	return Transform{
		Translation: Rotate(a.Rotation, b.Translation).Add(a.Translation),
		Rotation:    quat.Mul(a.Rotation, b.Rotation),
		Error:       a.Error + b.Error,
		Validity:    validity,
	}
}

func (t Transform) String() string {
	return fmt.Sprintf("translation: (%g, %g, %g) rotation: (%g, %g, %g, %g) error: %g",
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.Real, t.Rotation.Imag, t.Rotation.Jmag, t.Rotation.Kmag, t.Error)
}
