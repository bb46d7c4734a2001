package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/spatialmath"
)

// Console is a Sink that prints coordinates as text, at most once per interval.
type Console struct {
	out       io.Writer
	sometimes *rate.Sometimes
	quit      atomic.Bool

	mu      sync.Mutex
	logger  logging.Logger
	tracker posetracker.Service
	last    Coordinates
	count   int
}

// NewConsole returns a console sink writing to out.
func NewConsole(out io.Writer, interval time.Duration, logger logging.Logger) *Console {
	return &Console{
		out:       out,
		sometimes: &rate.Sometimes{Interval: interval},
		logger:    logger,
	}
}

// SetCoordinates implements Sink.
func (c *Console) SetCoordinates(coords Coordinates) {
	c.mu.Lock()
	c.last = coords
	c.count++
	c.mu.Unlock()
	c.sometimes.Do(func() {
		fmt.Fprintln(c.out, coords.String())
	})
}

// Last returns the most recent coordinates and how many were delivered.
func (c *Console) Last() (Coordinates, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.count
}

// RequestQuit asks the tracking loop to stop at its next tick.
func (c *Console) RequestQuit() {
	c.quit.Store(true)
}

// HasQuitRequested implements Sink.
func (c *Console) HasQuitRequested() bool {
	return c.quit.Load()
}

// SetTrackerHandle implements Sink.
func (c *Console) SetTrackerHandle(tracker posetracker.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = tracker
}

// SetViewParent implements Sink.
func (c *Console) SetViewParent(transform spatialmath.Transform, parent posetracker.ToolHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debugw("view attached", "parent", parent, "transform", transform.String())
}

// ShowError implements Sink.
func (c *Console) ShowError(err error) {
	fmt.Fprintf(c.out, "error: %v\n", err)
}

// SetLogger implements Sink.
func (c *Console) SetLogger(logger logging.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Close implements Sink. The final coordinates are always printed.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		fmt.Fprintf(c.out, "last %s (%d updates)\n", c.last.String(), c.count)
	}
	return nil
}
