package tracking

import (
	"context"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/display"
)

// Stats counts what the tracking loop did.
type Stats struct {
	Ticks     int
	Delivered int
	// Skipped counts ticks where the reference, probe, or needle did not report a live pose.
	Skipped int
}

// Stats returns the counters of the last tracking loop.
func (s *Session) Stats() Stats {
	return s.stats
}

// StartTracking polls every tool until the display asks to quit or ctx is done, delivering probe
// and needle coordinates on each tick the reference tool reports a pose. When the loop ends the
// tracker is stopped and closed and the display is released, whatever the reason for stopping.
// Tracker failures end the loop and are returned.
func (s *Session) StartTracking(ctx context.Context) error {
	if !s.state.is(Configured) {
		return s.notConfigured("start tracking")
	}
	s.stats = Stats{}

	var runErr error
	if err := s.tracker.StartTracking(ctx); err != nil {
		runErr = &TrackerServiceFailure{Op: "start tracking", Err: err}
	} else {
		s.sink.SetViewParent(identity(), s.registry.Tool(Reference).ID)
		s.logger.Info("tracking started")
		if err := s.run(ctx); err != nil {
			runErr = &TrackerServiceFailure{Op: "request pose", Err: err}
		}
	}
	return s.shutdown(context.WithoutCancel(ctx), runErr)
}

func (s *Session) run(ctx context.Context) error {
	for {
		if s.sink.HasQuitRequested() {
			s.logger.Debug("quit requested")
			return nil
		}
		if err := s.tick(ctx); err != nil {
			return err
		}
		if !s.wait(ctx) {
			s.logger.Debug("tracking canceled")
			return nil
		}
	}
}

func (s *Session) wait(ctx context.Context) bool {
	if s.yield <= 0 {
		return ctx.Err() == nil
	}
	return utils.SelectContextOrWait(ctx, s.yield)
}

// tick clears and requests a pose for every tool, then delivers coordinates if the reference tool
// reported. Probe and needle must both have reported in the same tick. Expired poses count as
// not reported.
func (s *Session) tick(ctx context.Context) error {
	now := s.clock.Now()
	s.tracker.CheckTimeouts(now)

	for _, role := range Roles {
		tool := s.registry.Tool(role)
		s.registry.Observer(role).Clear()
		if err := s.tracker.RequestPose(ctx, tool.ID); err != nil {
			if posetracker.IsServiceFailure(err) {
				return err
			}
			s.logger.Debugw("pose request failed", "role", role.String(), "id", tool.ID, "error", err)
		}
	}
	s.stats.Ticks++

	if _, ok := s.registry.Pose(Reference, now); !ok {
		if s.registry.Observer(Reference).GotTransform() {
			s.logger.Debugw("reference pose expired", "id", s.registry.Tool(Reference).ID)
		}
		s.stats.Skipped++
		return nil
	}
	probe, probeOK := s.registry.Pose(Probe, now)
	needle, needleOK := s.registry.Pose(Needle, now)
	if !probeOK || !needleOK {
		s.stats.Skipped++
		return nil
	}
	s.sink.SetCoordinates(display.NewCoordinates(probe.Translation, needle.Translation))
	s.stats.Delivered++
	return nil
}

func (s *Session) shutdown(ctx context.Context, runErr error) error {
	err := runErr
	if stopErr := s.tracker.StopTracking(ctx); stopErr != nil {
		err = multierr.Combine(err, &TrackerServiceFailure{Op: "stop tracking", Err: stopErr})
	}
	if closeErr := s.tracker.Close(ctx); closeErr != nil {
		err = multierr.Combine(err, &TrackerServiceFailure{Op: "close tracker", Err: closeErr})
	}
	s.opened = false
	err = multierr.Combine(err, s.sink.Close())
	if s.logAppender != nil {
		utils.UncheckedError(s.logAppender.Sync())
	}
	utils.UncheckedError(s.state.transition(Configured, Closed))

	s.logger.Infow("tracking stopped",
		"ticks", s.stats.Ticks, "delivered", s.stats.Delivered, "skipped", s.stats.Skipped, "error", err)
	return err
}
