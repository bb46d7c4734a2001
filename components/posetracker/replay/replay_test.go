package replay

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/logging"
)

const recording = `# two frames
ref.rom 0 0 0 1 0 0 0 0.25
probe.rom 10 20 30 1 0 0 0

probe.rom 11 21 31 0 0 0 2
this line is garbage
`

func setup(t *testing.T, cfg Config, channel string) (*Tracker, []posetracker.ToolHandle, []*posetracker.Observer) {
	t.Helper()
	ctx := context.Background()
	tr := NewTracker(cfg, logging.NewTestLogger(t))
	test.That(t, tr.Open(ctx, channel), test.ShouldBeNil)
	test.That(t, tr.InitializeTracker(ctx), test.ShouldBeNil)
	var handles []posetracker.ToolHandle
	for _, descriptor := range []string{"/roms/ref.rom", "/roms/probe.rom"} {
		h, err := tr.InitializeTool(ctx, descriptor)
		test.That(t, err, test.ShouldBeNil)
		handles = append(handles, h)
	}
	test.That(t, tr.AttachAll(ctx), test.ShouldBeNil)
	observers, err := tr.CreateObservers(ctx)
	test.That(t, err, test.ShouldBeNil)
	for i, o := range observers {
		o.ObserveTransformEventsFrom(handles[i])
	}
	test.That(t, tr.StartTracking(ctx), test.ShouldBeNil)
	return tr, handles, observers
}

func request(tb testing.TB, tr *Tracker, handles []posetracker.ToolHandle, observers []*posetracker.Observer) {
	tb.Helper()
	for i, o := range observers {
		o.Clear()
		test.That(tb, tr.RequestPose(context.Background(), handles[i]), test.ShouldBeNil)
	}
}

func TestReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.poses")
	test.That(t, os.WriteFile(path, []byte(recording), 0o600), test.ShouldBeNil)

	tr, handles, observers := setup(t, Config{}, path)
	defer func() {
		test.That(t, tr.Close(context.Background()), test.ShouldBeNil)
	}()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		tr.CheckTimeouts(tr.cfg.Clock.Now())
		request(tb, tr, handles, observers)
		test.That(tb, observers[0].GotTransform(), test.ShouldBeTrue)
	})
	ref, _, _ := observers[0].Transform()
	test.That(t, ref.Error, test.ShouldEqual, 0.25)
	test.That(t, ref.Validity, test.ShouldEqual, DefaultValidity)
	probe, _, ok := observers[1].Transform()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, probe.Translation.X, test.ShouldEqual, 10)
	test.That(t, probe.Translation.Z, test.ShouldEqual, 30)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		tr.CheckTimeouts(tr.cfg.Clock.Now())
		request(tb, tr, handles, observers)
		test.That(tb, observers[0].GotTransform(), test.ShouldBeFalse)
	})
	probe, _, ok = observers[1].Transform()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, probe.Translation.X, test.ShouldEqual, 11)
	// rotation is normalized on parse
	test.That(t, probe.Rotation.Kmag, test.ShouldEqual, 1)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		tr.CheckTimeouts(tr.cfg.Clock.Now())
		test.That(tb, tr.Exhausted(), test.ShouldBeTrue)
	})
	request(t, tr, handles, observers)
	test.That(t, observers[1].GotTransform(), test.ShouldBeFalse)
}

func TestReplayTransportLoss(t *testing.T) {
	opener := func(channel string) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			strings.NewReader("ref.rom 0 0 0 1 0 0 0\n"),
			iotest.ErrReader(errors.New("cable unplugged")),
		)), nil
	}
	tr, handles, _ := setup(t, Config{Opener: opener}, "3")
	defer tr.Close(context.Background())

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		tr.CheckTimeouts(tr.cfg.Clock.Now())
		err := tr.RequestPose(context.Background(), handles[0])
		if err == nil {
			tb.Error("read error not reported yet")
			return
		}
		test.That(tb, posetracker.IsServiceFailure(err), test.ShouldBeTrue)
		test.That(tb, err.Error(), test.ShouldContainSubstring, "cable unplugged")
	})

	// the failure sticks for every later request
	err := tr.RequestPose(context.Background(), handles[0])
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, posetracker.IsServiceFailure(err), test.ShouldBeTrue)
}

func TestReplayOpenErrors(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(Config{}, logging.NewTestLogger(t))
	test.That(t, tr.InitializeTracker(ctx), test.ShouldNotBeNil)
	err := tr.Open(ctx, filepath.Join(t.TempDir(), "missing.poses"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "missing.poses")
	// closing a tracker that never opened is a no-op
	test.That(t, tr.Close(ctx), test.ShouldBeNil)
}

func TestParsePose(t *testing.T) {
	name, pose, err := parsePose("needle.rom 1 2 3 0 1 0 0", DefaultValidity)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldEqual, "needle.rom")
	test.That(t, pose.Rotation.Imag, test.ShouldEqual, 1)

	_, _, err = parsePose("needle.rom 1 2 3", DefaultValidity)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = parsePose("needle.rom 1 2 x 1 0 0 0", DefaultValidity)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = parsePose("needle.rom 1 2 3 0 0 0 0", DefaultValidity)
	test.That(t, err, test.ShouldNotBeNil)
}
