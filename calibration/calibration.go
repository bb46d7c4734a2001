// Package calibration loads the static transform from a tracked tool's reported pose to its
// functional point, such as the tip of an ultrasound probe.
//
// A calibration file holds exactly eight newline-delimited decimal values:
//
//	tx
//	ty
//	tz
//	qx
//	qy
//	qz
//	reserved
//	reserved
//
// The rotation is the versor (qx, qy, qz, 0) normalized to unit length. The two reserved lines are
// read so the format stays stable, but their values are not used.
package calibration

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// NumValues is the number of lines a calibration file holds.
const NumValues = 8

// DefaultError is the uncertainty assigned to every loaded calibration transform.
const DefaultError = 10.

// IOError is returned when a calibration file is named but cannot be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("calibration data: cannot read %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// FormatError is returned when a calibration file is short or holds a non-numeric value.
type FormatError struct {
	Path string
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("calibration data: invalid %q line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("calibration data: invalid %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Load reads the calibration transform at path. An empty path is not an error: the identity
// transform is returned along with false to signal that no calibration data was loaded.
func Load(path string, logger logging.Logger) (spatialmath.Transform, bool, error) {
	if path == "" {
		logger.Info("no probe calibration data loaded")
		return spatialmath.Identity(spatialmath.ValidForever), false, nil
	}

	values, err := readValues(path)
	if err != nil {
		return spatialmath.Transform{}, false, err
	}

	tf, err := FromValues(values)
	if err != nil {
		return spatialmath.Transform{}, false, &FormatError{Path: path, Err: err}
	}
	logger.Infow("loaded calibration data", "path", path, "transform", tf.String())
	return tf, true, nil
}

func readValues(path string) (values []float64, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Combine(err, &IOError{Path: path, Err: closeErr})
		}
	}()

	values = make([]float64, 0, NumValues)
	scanner := bufio.NewScanner(f)
	for len(values) < NumValues && scanner.Scan() {
		line := len(values) + 1
		v, parseErr := parseDecimal(strings.TrimSpace(scanner.Text()))
		if parseErr != nil {
			return nil, &FormatError{Path: path, Line: line, Err: parseErr}
		}
		values = append(values, v)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, &IOError{Path: path, Err: scanErr}
	}
	if len(values) < NumValues {
		return nil, &FormatError{Path: path, Err: errors.Errorf("expected %d lines, got %d", NumValues, len(values))}
	}
	return values, nil
}

// parseDecimal parses a finite decimal number. Hex floats, NaN and infinities are rejected.
func parseDecimal(text string) (float64, error) {
	if strings.ContainsAny(text, "xX") {
		return 0, errors.Errorf("%q is not a decimal number", text)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("%q is not a finite number", text)
	}
	return v, nil
}

// FromValues builds a calibration transform from the eight values of a calibration file.
func FromValues(values []float64) (spatialmath.Transform, error) {
	if len(values) != NumValues {
		return spatialmath.Transform{}, errors.Errorf("expected %d values, got %d", NumValues, len(values))
	}
	return spatialmath.NewTransform(
		r3.Vector{X: values[0], Y: values[1], Z: values[2]},
		quat.Number{Imag: values[3], Jmag: values[4], Kmag: values[5], Real: 0},
		DefaultError,
		spatialmath.ValidForever,
	)
}

// Save writes t in the calibration file format. The rotation is stored as its vector part, so only
// rotations with a zero scalar part round-trip exactly.
func Save(path string, t spatialmath.Transform) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Combine(err, &IOError{Path: path, Err: closeErr})
		}
	}()

	w := bufio.NewWriter(f)
	for _, v := range []float64{
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.Imag, t.Rotation.Jmag, t.Rotation.Kmag,
		0, 0,
	} {
		if _, err := fmt.Fprintln(w, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return &IOError{Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}
