// Package main runs a tracking session from the command line, printing the probe and needle
// positions as they are reported.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/needletrack/components/posetracker"
	"go.viam.com/needletrack/components/posetracker/replay"
	"go.viam.com/needletrack/display"
	"go.viam.com/needletrack/logging"
	"go.viam.com/needletrack/serial"
	"go.viam.com/needletrack/tracking"
)

const (
	flagReference   = "reference"
	flagProbe       = "probe"
	flagNeedle      = "needle"
	flagPointer     = "pointer"
	flagCalibration = "calibration"
	flagReplay      = "replay"
	flagSerial      = "serial"
	flagBaud        = "baud"
	flagLog         = "log"
	flagDuration    = "duration"
	flagPrintEvery  = "print-every"
	flagDebug       = "debug"
	flagLogLevel    = "log-level"
)

type runArgs struct {
	descriptors     [tracking.NumRoles]string
	calibrationPath string
	replayPath      string
	serialPort      string
	baudRate        int
	logPath         string
	duration        time.Duration
	printEvery      time.Duration
}

func main() {
	logger := logging.NewLogger("needletrack")
	app := &cli.App{
		Name:  "needletrack",
		Usage: "stream tracked probe and needle positions",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging, same as --log-level debug",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "minimum level logged: debug, info, warn or error",
			},
		},
		Before: func(c *cli.Context) error {
			return setLogLevel(logger, c.String(flagLogLevel), c.Bool(flagDebug))
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "configure the tracker and stream coordinates until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagReference, Required: true, Usage: "reference tool descriptor `FILE`"},
					&cli.StringFlag{Name: flagProbe, Required: true, Usage: "ultrasound probe tool descriptor `FILE`"},
					&cli.StringFlag{Name: flagNeedle, Required: true, Usage: "needle tool descriptor `FILE`"},
					&cli.StringFlag{Name: flagPointer, Required: true, Usage: "pointer tool descriptor `FILE`"},
					&cli.StringFlag{Name: flagCalibration, Usage: "probe calibration `FILE`"},
					&cli.StringFlag{Name: flagReplay, Usage: "replay poses recorded in `FILE`"},
					&cli.StringFlag{Name: flagSerial, Usage: "read poses streamed over serial `PORT` (a device path or port number)"},
					&cli.IntFlag{Name: flagBaud, Value: serial.DefaultOptions.BaudRate, Usage: "serial baud rate"},
					&cli.StringFlag{Name: flagLog, Usage: "write the session log to `FILE`"},
					&cli.DurationFlag{Name: flagDuration, Usage: "stop after this long; zero runs until interrupted"},
					&cli.DurationFlag{Name: flagPrintEvery, Value: 100 * time.Millisecond, Usage: "print coordinates at most this often"},
				},
				Action: func(c *cli.Context) error {
					args := runArgs{
						descriptors: [tracking.NumRoles]string{
							c.String(flagReference), c.String(flagProbe), c.String(flagNeedle), c.String(flagPointer),
						},
						calibrationPath: c.String(flagCalibration),
						replayPath:      c.String(flagReplay),
						serialPort:      c.String(flagSerial),
						baudRate:        c.Int(flagBaud),
						logPath:         c.String(flagLog),
						duration:        c.Duration(flagDuration),
						printEvery:      c.Duration(flagPrintEvery),
					}
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()
					return run(ctx, args, c.App.Writer, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Errorw("needletrack failed", "category", tracking.Describe(err).String(), "error", err)
		os.Exit(1)
	}
}

func setLogLevel(logger logging.Logger, name string, debug bool) error {
	if debug {
		logger.SetLevel(logging.DEBUG)
		return nil
	}
	level, err := logging.LevelFromString(name)
	if err != nil {
		return errors.Wrapf(err, "--%s", flagLogLevel)
	}
	logger.SetLevel(level)
	return nil
}

func newTracker(args runArgs, logger logging.Logger) (posetracker.Service, string, error) {
	switch {
	case args.replayPath != "" && args.serialPort != "":
		return nil, "", errors.Errorf("--%s and --%s are mutually exclusive", flagReplay, flagSerial)
	case args.replayPath != "":
		return replay.NewTracker(replay.Config{Opener: replay.FileOpener}, logger), args.replayPath, nil
	case args.serialPort != "":
		options := serial.DefaultOptions
		options.BaudRate = args.baudRate
		return replay.NewTracker(replay.Config{Opener: replay.SerialOpener(options)}, logger), args.serialPort, nil
	}
	return nil, "", errors.Errorf("one of --%s or --%s is required", flagReplay, flagSerial)
}

func run(ctx context.Context, args runArgs, out io.Writer, logger logging.Logger) error {
	tracker, channel, err := newTracker(args, logger.Sublogger("tracker"))
	if err != nil {
		return err
	}
	console := display.NewConsole(out, args.printEvery, logger.Sublogger("display"))
	session := tracking.NewSession(tracker, console, tracking.Scene{}, logger.Sublogger("session"))

	if err := session.Configure(ctx, tracking.ConfigureRequest{
		Channel:         channel,
		Descriptors:     args.descriptors,
		CalibrationPath: args.calibrationPath,
	}); err != nil {
		console.ShowError(fmt.Errorf("%s: %w", tracking.Describe(err), err))
		return err
	}

	if args.logPath != "" {
		appender := logging.NewFileAppender(args.logPath, 10)
		defer func() {
			if closeErr := appender.Close(); closeErr != nil {
				logger.Warnw("closing session log", "error", closeErr)
			}
		}()
		if err := session.AttachLogger(appender); err != nil {
			return err
		}
	}

	if args.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.duration)
		defer cancel()
	}
	return session.StartTracking(ctx)
}
