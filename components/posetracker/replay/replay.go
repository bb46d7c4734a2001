// Package replay implements a pose tracker that plays back recorded tool poses from a file or a
// serial stream.
//
// A recording is a sequence of frames separated by blank lines. Each line of a frame holds the
// pose of one tool:
//
//	<descriptor> tx ty tz qw qx qy qz [error]
//
// where descriptor is the base name of the tool descriptor file the tool was initialized from.
// Lines starting with '#' are ignored. One frame is consumed per call to CheckTimeouts.
package replay

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/serial"
	"go.viam.com/needletrack/spatialmath"
)

// DefaultValidity is how long a replayed pose stays valid after capture.
const DefaultValidity = 100 * time.Millisecond

const defaultFrameBuffer = 8

// Opener opens the channel a recording is read from.
type Opener func(channel string) (io.ReadCloser, error)

// FileOpener reads a recording from the file named by the channel.
func FileOpener(channel string) (io.ReadCloser, error) {
	return os.Open(channel)
}

// SerialOpener reads a recording streamed over the serial port named by the channel.
func SerialOpener(options serial.Options) Opener {
	return func(channel string) (io.ReadCloser, error) {
		return serial.Open(serial.PortName(channel), options)
	}
}

// Config configures a replay tracker.
type Config struct {
	Opener      Opener
	Validity    time.Duration
	FrameBuffer int
	Clock       clock.Clock
}

type frame map[string]spatialmath.Transform

// Tracker is a posetracker.Service backed by a recording.
type Tracker struct {
	cfg    Config
	logger logging.Logger

	mu          sync.Mutex
	rc          io.ReadCloser
	frames      chan frame
	done        chan struct{}
	wg          sync.WaitGroup
	readErr     error
	current     frame
	initialized bool
	attached    bool
	tracking    bool
	handles     []posetracker.ToolHandle
	names       map[posetracker.ToolHandle]string
	observers   []*posetracker.Observer
}

// NewTracker returns a replay tracker. Zero-valued config fields take their defaults.
func NewTracker(cfg Config, logger logging.Logger) *Tracker {
	if cfg.Opener == nil {
		cfg.Opener = FileOpener
	}
	if cfg.Validity == 0 {
		cfg.Validity = DefaultValidity
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaultFrameBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Tracker{cfg: cfg, logger: logger, names: map[posetracker.ToolHandle]string{}}
}

// Open implements posetracker.Service.
func (t *Tracker) Open(ctx context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rc != nil {
		return errors.New("replay channel already open")
	}
	rc, err := t.cfg.Opener(channel)
	if err != nil {
		return errors.Wrapf(err, "opening replay channel %q", channel)
	}
	t.rc = rc
	t.frames = make(chan frame, t.cfg.FrameBuffer)
	t.done = make(chan struct{})
	t.readErr = nil
	t.wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer t.wg.Done()
		t.readFrames(rc, t.frames, t.done)
	})
	t.logger.Infow("opened replay channel", "channel", channel)
	return nil
}

func (t *Tracker) readFrames(r io.Reader, frames chan<- frame, done <-chan struct{}) {
	defer close(frames)
	scanner := bufio.NewScanner(r)
	current := frame{}
	send := func() bool {
		if len(current) == 0 {
			return true
		}
		select {
		case frames <- current:
			current = frame{}
			return true
		case <-done:
			return false
		}
	}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			if !send() {
				return
			}
			continue
		}
		name, pose, err := parsePose(line, t.cfg.Validity)
		if err != nil {
			t.log().Warnw("skipping malformed pose line", "line", lineNum, "error", err)
			continue
		}
		current[name] = pose
	}
	if !send() {
		return
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-done:
		default:
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
		}
	}
}

func parsePose(line string, validity time.Duration) (string, spatialmath.Transform, error) {
	fields := strings.Fields(line)
	if len(fields) != 8 && len(fields) != 9 {
		return "", spatialmath.Transform{}, errors.Errorf("expected 8 or 9 fields, got %d", len(fields))
	}
	values := make([]float64, len(fields)-1)
	for i, field := range fields[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return "", spatialmath.Transform{}, errors.Wrapf(err, "field %d", i+2)
		}
		values[i] = v
	}
	errorValue := 0.
	if len(values) == 8 {
		errorValue = values[7]
	}
	pose, err := spatialmath.NewTransform(
		r3.Vector{X: values[0], Y: values[1], Z: values[2]},
		quat.Number{Real: values[3], Imag: values[4], Jmag: values[5], Kmag: values[6]},
		errorValue,
		validity,
	)
	return fields[0], pose, err
}

// InitializeTracker implements posetracker.Service.
func (t *Tracker) InitializeTracker(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rc == nil {
		return errors.New("replay channel is not open")
	}
	t.initialized = true
	return nil
}

// InitializeTool implements posetracker.Service.
func (t *Tracker) InitializeTool(ctx context.Context, descriptor string) (posetracker.ToolHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return "", errors.New("replay tracker is not initialized")
	}
	if descriptor == "" {
		return "", errors.New("empty tool descriptor")
	}
	handle := posetracker.ToolHandle(uuid.NewString())
	t.handles = append(t.handles, handle)
	t.names[handle] = filepath.Base(descriptor)
	return handle, nil
}

// AttachAll implements posetracker.Service.
func (t *Tracker) AttachAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) == 0 {
		return errors.New("no tools to attach")
	}
	t.attached = true
	return nil
}

// CreateObservers implements posetracker.Service.
func (t *Tracker) CreateObservers(ctx context.Context) ([]*posetracker.Observer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
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
	if !t.attached {
		return errors.New("tools are not attached")
	}
	t.tracking = true
	return nil
}

// StopTracking implements posetracker.Service.
func (t *Tracker) StopTracking(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking = false
	return nil
}

// CheckTimeouts advances to the next recorded frame, if one is ready.
func (t *Tracker) CheckTimeouts(now time.Time) {
	t.mu.Lock()
	frames := t.frames
	t.mu.Unlock()
	if frames == nil {
		return
	}
	select {
	case f, ok := <-frames:
		t.mu.Lock()
		if ok {
			t.current = f
		} else {
			t.current = nil
			t.frames = nil
		}
		t.mu.Unlock()
	default:
	}
}

// RequestPose implements posetracker.Service. A tool missing from the current frame reports nothing.
func (t *Tracker) RequestPose(ctx context.Context, tool posetracker.ToolHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return posetracker.NewServiceFailure(t.readErr)
	}
	name, ok := t.names[tool]
	if !ok {
		return errors.Errorf("unknown tool %q", tool)
	}
	if !t.tracking {
		return nil
	}
	pose, ok := t.current[name]
	if !ok {
		return nil
	}
	posetracker.Publish(t.observers, tool, pose, t.cfg.Clock.Now())
	return nil
}

// Exhausted returns whether every recorded frame has been consumed.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rc != nil && t.frames == nil
}

func (t *Tracker) log() logging.Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logger
}

// SetLogger implements posetracker.Service.
func (t *Tracker) SetLogger(logger logging.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// Close implements posetracker.Service.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	rc, done := t.rc, t.done
	t.rc = nil
	t.tracking = false
	t.mu.Unlock()
	if rc == nil {
		return nil
	}
	close(done)
	err := rc.Close()
	t.wg.Wait()
	if err != nil {
		return posetracker.NewServiceFailure(errors.Wrap(err, "closing replay channel"))
	}
	return nil
}
