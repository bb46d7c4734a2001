// Package tracking configures a multi-tool tracker and streams the positions of the tracked
// probe and needle to a display.
package tracking

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/needletrack/calibration"
	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/display"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// DefaultYieldInterval is how long each tick waits for pending events before the next one.
const DefaultYieldInterval = time.Millisecond

// Scene holds the objects posed relative to each tool. Nil objects are created on demand.
type Scene struct {
	ReferenceAxes display.SceneObject
	Probe         display.SceneObject
	Needle        display.SceneObject
	Pointer       display.SceneObject
}

func (s Scene) byRole() [NumRoles]display.SceneObject {
	objects := [NumRoles]display.SceneObject{s.ReferenceAxes, s.Probe, s.Needle, s.Pointer}
	for _, role := range Roles {
		if objects[role] == nil {
			objects[role] = display.NewObject(role.String())
		}
	}
	return objects
}

// ConfigureRequest names the files a session is configured from.
type ConfigureRequest struct {
	// Channel is the communication channel passed to the tracker, e.g. a serial port number.
	Channel string
	// Descriptors holds the tool descriptor file for each role.
	Descriptors [NumRoles]string
	// CalibrationPath is the probe calibration file. Empty means no calibration.
	CalibrationPath string
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for tracker housekeeping.
func WithClock(clk clock.Clock) Option {
	return func(s *Session) {
		s.clock = clk
	}
}

// WithYieldInterval sets how long each tick yields. Zero or less does not wait at all.
func WithYieldInterval(d time.Duration) Option {
	return func(s *Session) {
		s.yield = d
	}
}

// Session owns a tracker, its tools, and the display they are streamed to. All methods must be
// called from a single goroutine.
type Session struct {
	tracker posetracker.Service
	sink    display.Sink
	scene   [NumRoles]display.SceneObject
	logger  logging.Logger
	clock   clock.Clock
	yield   time.Duration

	state       stateMachine
	opened      bool
	registry    *Registry
	calibrated  bool
	logAppender logging.Appender
	stats       Stats
}

// NewSession returns an unconfigured session.
func NewSession(
	tracker posetracker.Service,
	sink display.Sink,
	scene Scene,
	logger logging.Logger,
	opts ...Option,
) *Session {
	s := &Session{
		tracker: tracker,
		sink:    sink,
		scene:   scene.byRole(),
		logger:  logger,
		clock:   clock.New(),
		yield:   DefaultYieldInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the configuration state.
func (s *Session) State() State {
	return s.state.current
}

// Registry returns the tools of a configured session, or nil.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Calibrated returns whether probe calibration data was loaded.
func (s *Session) Calibrated() bool {
	return s.calibrated
}

// Configure opens the tracker, initializes and attaches the four tools, binds an observer to each,
// and places the scene objects. On failure the session stays unconfigured and the tracker is closed.
// A configured session cannot be configured again.
func (s *Session) Configure(ctx context.Context, req ConfigureRequest) error {
	if err := s.state.transition(Unconfigured, Configuring); err != nil {
		return err
	}
	registry, err := s.configure(ctx, req)
	if err != nil {
		if s.opened {
			if closeErr := s.tracker.Close(ctx); closeErr != nil {
				err = multierr.Combine(err, &ConfigurationError{Step: "close tracker", Err: closeErr})
			}
			s.opened = false
		}
		s.logger.Errorw("tracker configuration failed", "error", err)
		return multierr.Combine(err, s.state.transition(Configuring, Unconfigured))
	}
	s.registry = registry
	return s.state.transition(Configuring, Configured)
}

func (s *Session) configure(ctx context.Context, req ConfigureRequest) (*Registry, error) {
	for _, role := range Roles {
		if req.Descriptors[role] == "" {
			return nil, &ConfigurationError{
				Step: "initialize " + role.String() + " tool",
				Err:  errors.New("no tool descriptor given"),
			}
		}
	}

	s.logger.Info("initializing serial communication")
	if err := s.tracker.Open(ctx, req.Channel); err != nil {
		return nil, &ConfigurationError{Step: "open communication", Err: err}
	}
	s.opened = true
	s.logger.Info("initializing tracker")
	if err := s.tracker.InitializeTracker(ctx); err != nil {
		return nil, &ConfigurationError{Step: "initialize tracker", Err: err}
	}

	var handles [NumRoles]posetracker.ToolHandle
	for _, role := range Roles {
		s.logger.Infof("initializing %s tracker tool", role)
		handle, err := s.tracker.InitializeTool(ctx, req.Descriptors[role])
		if err != nil {
			return nil, &ConfigurationError{Step: "initialize " + role.String() + " tool", Err: err}
		}
		handles[role] = handle
	}

	s.logger.Info("attaching all tools")
	if err := s.tracker.AttachAll(ctx); err != nil {
		return nil, &ConfigurationError{Step: "attach tools", Err: err}
	}

	s.logger.Info("creating observers for all tools")
	observers, err := s.tracker.CreateObservers(ctx)
	if err != nil {
		return nil, &ConfigurationError{Step: "create observers", Err: err}
	}
	registry, err := newRegistry(handles, req.Descriptors, observers)
	if err != nil {
		return nil, &ConfigurationError{Step: "create observers", Err: err}
	}
	for _, tool := range registry.Tools() {
		s.logger.Infow("tracker tool ready", "role", tool.Role.String(), "id", tool.ID, "descriptor", tool.Descriptor)
	}

	s.logger.Info("loading calibration data")
	probeCalibration, loaded, err := calibration.Load(req.CalibrationPath, s.logger)
	if err != nil {
		return nil, errors.Wrap(err, "loading probe calibration")
	}
	s.calibrated = loaded
	registry.setStatic(Probe, probeCalibration)

	for _, role := range Roles {
		tool := registry.Tool(role)
		s.scene[role].SetTransformAndParent(tool.Static, tool.ID)
	}
	s.sink.SetTrackerHandle(s.tracker)
	return registry, nil
}

// AttachLogger sends the diagnostic output of both the display and the tracker to appender for the
// rest of the session. Attaching again replaces the previous appender.
func (s *Session) AttachLogger(appender logging.Appender) error {
	if !s.state.is(Configured) {
		return s.notConfigured("attach logger")
	}
	root := logging.NewBlankLogger("session")
	root.AddAppender(appender)
	s.sink.SetLogger(root.Sublogger("display"))
	s.tracker.SetLogger(root.Sublogger("tracker"))
	s.logAppender = appender
	s.logger.Info("attached session logger")
	return nil
}

func (s *Session) notConfigured(action string) error {
	err := ErrNotConfigured
	if s.state.is(Closed) {
		err = ErrSessionClosed
	}
	s.logger.Warnw("request refused", "action", action, "state", s.state.current.String())
	s.sink.ShowError(err)
	return err
}

func identity() spatialmath.Transform {
	return spatialmath.Identity(spatialmath.ValidForever)
}
