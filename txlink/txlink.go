// Package txlink frames command and data transfers to a display controller
// sitting on a SPI bus with GPIO control lines.
//
// A command frame drives the data/command line low, a data frame drives it
// high. When a chip-select GPIO is given, every frame raises it, sets the
// data/command line, lowers it for the transfer and raises it again; without
// one the port's own chip-select frames the transfer.
//
// The bus clock rate is re-applied before every frame, so a port shared with a
// peripheral running at another rate does not leave the link misconfigured.
// Callers sharing the bus must serialize access themselves.
package txlink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Sleeper pauses the calling goroutine. clockwork.Clock implements it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Opts is the configuration of a Link.
type Opts struct {
	// Freq is the bus clock rate (required).
	Freq physic.Frequency
	// DC is the data/command line (required).
	DC gpio.PinOut
	// CS is the chip-select line, active low. nil lets the port drive its own
	// chip-select.
	CS gpio.PinOut

	// Clock is used for every delay (default: the real clock).
	Clock Sleeper
	// Logger receives transfer traces at debug level (default: discarded).
	Logger logrus.FieldLogger
}

type speedLimiter interface {
	LimitSpeed(f physic.Frequency) error
}

// Link is an open command/data link to a controller.
type Link struct {
	port  spi.Port
	c     spi.Conn
	freq  physic.Frequency
	dc    gpio.PinOut
	cs    gpio.PinOut
	clock Sleeper
	log   logrus.FieldLogger
}

// New connects to the port in SPI mode 0 with 8-bit words and returns a link
// driving the given control lines. The chip-select line, if any, is left
// deasserted.
func New(p spi.Port, opts *Opts) (*Link, error) {
	if opts == nil {
		return nil, errors.New("txlink: opts are required")
	}
	if opts.Freq <= 0 {
		return nil, errors.New("txlink: bus frequency must be set")
	}
	if opts.DC == nil || opts.DC == gpio.INVALID {
		return nil, errors.New("txlink: a data/command pin is required")
	}

	mode := spi.Mode0
	if opts.CS != nil {
		mode |= spi.NoCS
		if err := opts.CS.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("txlink: failed to deassert CS: %w", err)
		}
	}
	if err := opts.DC.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("txlink: failed to set DC: %w", err)
	}

	c, err := p.Connect(opts.Freq, mode, 8)
	if err != nil {
		return nil, err
	}

	l := &Link{
		port:  p,
		c:     c,
		freq:  opts.Freq,
		dc:    opts.DC,
		cs:    opts.CS,
		clock: opts.Clock,
		log:   opts.Logger,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.log == nil {
		lg := logrus.New()
		lg.SetOutput(io.Discard)
		l.log = lg
	}
	return l, nil
}

// String implements conn.Resource.
func (l *Link) String() string {
	return fmt.Sprintf("txlink.Link{%s, %s}", l.c, l.freq)
}

// Halt implements conn.Resource. It releases the chip-select line.
func (l *Link) Halt() error {
	if l.cs == nil {
		return nil
	}
	return l.cs.Out(gpio.High)
}

// Freq returns the bus clock rate re-applied before every frame.
func (l *Link) Freq() physic.Frequency {
	return l.freq
}

// Logger returns the logger transfers are traced to.
func (l *Link) Logger() logrus.FieldLogger {
	return l.log
}

// Command sends a single opcode in a command frame.
func (l *Link) Command(op byte) error {
	l.log.Debugf("txlink: cmd 0x%02X", op)
	return l.frame(gpio.Low, []byte{op})
}

// Data sends buf in a single data frame.
func (l *Link) Data(buf []byte) error {
	l.log.Debugf("txlink: data %d bytes", len(buf))
	return l.frame(gpio.High, buf)
}

// CommandData sends op in a command frame followed by data in a data frame.
// The data frame is skipped when data is empty.
func (l *Link) CommandData(op byte, data ...byte) error {
	if err := l.Command(op); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return l.Data(data)
}

// SharesBus reports whether another device can be selected on the bus. It
// needs the link's own chip-select to be a GPIO; otherwise the port asserts
// it on every transfer.
func (l *Link) SharesBus() bool {
	return l.cs != nil
}

// Read selects another device on the same bus through cs, writes header, then
// clocks out n fill bytes and returns what was read back. The link must have
// been opened with a chip-select GPIO.
func (l *Link) Read(cs gpio.PinOut, header []byte, n int, fill byte) ([]byte, error) {
	if cs == nil {
		return nil, errors.New("txlink: a chip-select pin is required to read")
	}
	if !l.SharesBus() {
		return nil, errors.New("txlink: read needs the link's chip-select on a GPIO")
	}
	if err := l.limitSpeed(); err != nil {
		return nil, err
	}
	if err := cs.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("txlink: failed to assert CS: %w", err)
	}
	r, err := l.read(header, n, fill)
	if err2 := cs.Out(gpio.High); err == nil && err2 != nil {
		err = fmt.Errorf("txlink: failed to deassert CS: %w", err2)
	}
	if err != nil {
		return nil, err
	}
	l.log.Debugf("txlink: read %d bytes after %d byte header", n, len(header))
	return r, nil
}

func (l *Link) read(header []byte, n int, fill byte) ([]byte, error) {
	if len(header) != 0 {
		if err := l.tx(header); err != nil {
			return nil, err
		}
	}
	w := make([]byte, n)
	for i := range w {
		w[i] = fill
	}
	r := make([]byte, n)
	if err := l.c.Tx(w, r); err != nil {
		return nil, fmt.Errorf("txlink: read failed: %w", err)
	}
	return r, nil
}

// WaitIdle blocks while busy reads high, checking it every interval. It never
// times out.
func (l *Link) WaitIdle(busy gpio.PinIn, interval time.Duration) {
	n := 0
	for busy.Read() == gpio.High {
		l.clock.Sleep(interval)
		n++
	}
	if n != 0 {
		l.log.Debugf("txlink: busy for %d polls", n)
	}
}

// Sleep pauses for d using the link's clock.
func (l *Link) Sleep(d time.Duration) {
	l.clock.Sleep(d)
}

func (l *Link) limitSpeed() error {
	if s, ok := l.port.(speedLimiter); ok {
		if err := s.LimitSpeed(l.freq); err != nil {
			return fmt.Errorf("txlink: failed to set bus speed: %w", err)
		}
	}
	return nil
}

// frame sends buf with the data/command line at dc.
func (l *Link) frame(dc gpio.Level, buf []byte) error {
	if err := l.limitSpeed(); err != nil {
		return err
	}
	if l.cs != nil {
		if err := l.cs.Out(gpio.High); err != nil {
			return fmt.Errorf("txlink: failed to deassert CS: %w", err)
		}
	}
	if err := l.dc.Out(dc); err != nil {
		return fmt.Errorf("txlink: failed to set DC: %w", err)
	}
	if l.cs == nil {
		return l.tx(buf)
	}
	if err := l.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("txlink: failed to assert CS: %w", err)
	}
	err := l.tx(buf)
	if err2 := l.cs.Out(gpio.High); err == nil && err2 != nil {
		err = fmt.Errorf("txlink: failed to deassert CS: %w", err2)
	}
	return err
}

// tx writes buf, split into chunks the connection accepts. Chunks only keep
// the device selected when chip-select is driven by a GPIO.
func (l *Link) tx(buf []byte) error {
	chunk := len(buf)
	if lim, ok := l.c.(conn.Limits); ok && lim.MaxTxSize() > 0 {
		chunk = lim.MaxTxSize()
	}
	for len(buf) != 0 {
		n := min(len(buf), chunk)
		if err := l.c.Tx(buf[:n], nil); err != nil {
			return fmt.Errorf("txlink: write failed: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}
