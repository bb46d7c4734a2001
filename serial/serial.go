// Package serial provides utilities for opening the serial channel a tracker streams over.
package serial

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.uber.org/multierr"
)

// Options to be passed to Open(), closely mirrors go.bug.st/serial Mode.
type Options struct {
	BaudRate int
	DataBits int
	StopBits StopBits
	Parity   Parity
	// ReadTimeout in milliseconds. Zero blocks until data arrives.
	ReadTimeout int
}

// DefaultOptions are the line settings position sensors like the Polaris boot into.
var DefaultOptions = Options{
	BaudRate: 9600,
	DataBits: 8,
	StopBits: OneStopBit,
	Parity:   NoParity,
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
	// MarkParity enable mark-parity (always 1) check.
	MarkParity
	// SpaceParity enable space-parity (always 0) check.
	SpaceParity
)

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

// PortName resolves a numbered channel to the device path for the current platform. Channel 0 is
// COM1 on windows and /dev/ttyS0 elsewhere. Non-numeric channels are returned unchanged so a full
// device path can always be given.
func PortName(channel string) string {
	n, err := strconv.Atoi(strings.TrimSpace(channel))
	if err != nil || n < 0 {
		return channel
	}
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", n+1)
	}
	return fmt.Sprintf("/dev/ttyS%d", n)
}

func (options Options) mode() *ser.Mode {
	return &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   ser.Parity(options.Parity),
		DataBits: options.DataBits,
		StopBits: ser.StopBits(options.StopBits),
	}
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	if devicePath == "" {
		return nil, errors.New("no serial device path given")
	}
	device, err := ser.Open(devicePath, options.mode())
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial device %q", devicePath)
	}
	if options.ReadTimeout > 0 {
		if err := device.SetReadTimeout(time.Duration(options.ReadTimeout) * time.Millisecond); err != nil {
			return nil, multierr.Combine(errors.Wrap(err, "setting read timeout"), device.Close())
		}
	}

	return device, nil
}

// SetOptions to change the configuration of a serial port already open.
var SetOptions = func(b io.ReadWriteCloser, options Options) error {
	p, ok := b.(ser.Port)
	if !ok {
		return errors.New("couldn't convert to underlying Port interface")
	}
	return p.SetMode(options.mode())
}
