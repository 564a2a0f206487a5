// Package epd1in54 controls a 1.54" 200x200 monochrome e-paper panel via SPI.
//
// The panel's controller keeps the image in its own RAM; Present writes the
// whole frame buffer there and triggers a full refresh, which takes one to two
// seconds and blocks until the busy line drops.
package epd1in54

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/flavioheleno/monodisplay"
	"github.com/flavioheleno/monodisplay/image1bit"
	"github.com/flavioheleno/monodisplay/txlink"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Panel geometry.
const (
	Width  = 200
	Height = 200
)

// Controller opcodes.
const (
	driverOutputControl            byte = 0x01
	boosterSoftStartControl        byte = 0x0C
	gateScanStartPosition          byte = 0x0F
	deepSleepMode                  byte = 0x10
	dataEntryModeSetting           byte = 0x11
	swReset                        byte = 0x12
	temperatureSensorControl       byte = 0x1A
	masterActivation               byte = 0x20
	displayUpdateControl1          byte = 0x21
	displayUpdateControl2          byte = 0x22
	writeRAM                       byte = 0x24
	writeVCOMRegister              byte = 0x2C
	writeLUTRegister               byte = 0x32
	setDummyLinePeriod             byte = 0x3A
	setGateTime                    byte = 0x3B
	borderWaveformControl          byte = 0x3C
	setRAMXAddressStartEndPosition byte = 0x44
	setRAMYAddressStartEndPosition byte = 0x45
	setRAMXAddressCounter          byte = 0x4E
	setRAMYAddressCounter          byte = 0x4F
	terminateFrameReadWrite        byte = 0xFF
)

// Timing.
const (
	// DefaultFreq is the bus rate, 2MiHz.
	DefaultFreq = 2 * 1024 * 1024 * physic.Hertz

	resetHold    = 200 * time.Millisecond
	pollInterval = 100 * time.Millisecond
)

// LUTSize is the length of a waveform table.
const LUTSize = 30

// Waveform tables. LUTFullUpdate clears ghosting with a flashing refresh,
// LUTPartialUpdate is faster but may leave ghosts.
var (
	LUTFullUpdate = [LUTSize]byte{
		0x02, 0x02, 0x01, 0x11, 0x12, 0x12, 0x22, 0x22,
		0x66, 0x69, 0x69, 0x59, 0x58, 0x99, 0x99, 0x88,
		0x00, 0x00, 0x00, 0x00, 0xF8, 0xB4, 0x13, 0x51,
		0x35, 0x51, 0x51, 0x19, 0x01, 0x00,
	}
	LUTPartialUpdate = [LUTSize]byte{
		0x10, 0x18, 0x18, 0x08, 0x18, 0x18, 0x08, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x13, 0x14, 0x44, 0x12,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// State is the lifecycle state of the controller.
type State int

const (
	Uninitialized State = iota
	Resetting
	Configuring
	Idle
	Refreshing
	WaitingIdle
	Sleeping
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Resetting:
		return "Resetting"
	case Configuring:
		return "Configuring"
	case Idle:
		return "Idle"
	case Refreshing:
		return "Refreshing"
	case WaitingIdle:
		return "WaitingIdle"
	case Sleeping:
		return "Sleeping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Opts is the configuration for the e-paper panel.
type Opts struct {
	DC   gpio.PinOut // Data/Command pin (required)
	RST  gpio.PinOut // Reset pin (required)
	CS   gpio.PinOut // Chip-select pin (optional, nil to use the port's CS)
	Busy gpio.PinIn  // Busy pin, high while the controller works (required)

	Freq   physic.Frequency   // Bus rate (default: DefaultFreq)
	Clock  txlink.Sleeper     // Delay source (default: real clock)
	Logger logrus.FieldLogger // Debug traces (default: discarded)
}

// Dev is the device handle for the e-paper panel.
type Dev struct {
	l    *txlink.Link
	dc   gpio.PinOut
	rst  gpio.PinOut
	cs   gpio.PinOut
	busy gpio.PinIn

	img   *image1bit.Image
	lut   [LUTSize]byte
	state State
}

// NewSPI returns a Dev connected to the panel through p and runs Init.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errors.New("epd1in54: opts are required")
	}
	if opts.RST == nil || opts.Busy == nil {
		return nil, errors.New("epd1in54: RST and Busy pins are required")
	}
	freq := opts.Freq
	if freq == 0 {
		freq = DefaultFreq
	}
	l, err := txlink.New(p, &txlink.Opts{
		Freq:   freq,
		DC:     opts.DC,
		CS:     opts.CS,
		Clock:  opts.Clock,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("epd1in54: %w", err)
	}
	d := &Dev{
		l:    l,
		dc:   opts.DC,
		rst:  opts.RST,
		cs:   opts.CS,
		busy: opts.Busy,
		img:  image1bit.NewHorizontalMSB(image.Rect(0, 0, Width, Height)),
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// Init configures the control lines, resets the controller and loads the
// panel configuration and the full update waveform. It also wakes the panel
// from Sleep.
func (d *Dev) Init() error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd1in54: failed to configure DC: %w", err)
	}
	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd1in54: failed to configure RST: %w", err)
	}
	if d.cs != nil {
		if err := d.cs.Out(gpio.High); err != nil {
			return fmt.Errorf("epd1in54: failed to configure CS: %w", err)
		}
	}
	if err := d.busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("epd1in54: failed to configure Busy: %w", err)
	}

	if err := d.Reset(); err != nil {
		return err
	}

	d.setState(Configuring)
	h := Height - 1
	steps := []struct {
		op   byte
		data []byte
	}{
		{driverOutputControl, []byte{byte(h), byte(h >> 8), 0x00}},
		{boosterSoftStartControl, []byte{0xD7, 0xD6, 0x9D}},
		{writeVCOMRegister, []byte{0xA8}},    // VCOM 7C
		{setDummyLinePeriod, []byte{0x1A}},   // 4 dummy lines per gate
		{setGateTime, []byte{0x08}},          // 2us per line
		{dataEntryModeSetting, []byte{0x03}}, // X increment; Y increment
	}
	for _, s := range steps {
		if err := d.l.CommandData(s.op, s.data...); err != nil {
			return fmt.Errorf("epd1in54: init: %w", err)
		}
	}
	if err := d.writeLUT(LUTFullUpdate[:]); err != nil {
		return err
	}
	d.setState(Idle)
	return nil
}

// Reset pulses the reset line low for 200ms and waits another 200ms.
func (d *Dev) Reset() error {
	d.setState(Resetting)
	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd1in54: failed to pull RST low: %w", err)
	}
	d.l.Sleep(resetHold)
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd1in54: failed to pull RST high: %w", err)
	}
	d.l.Sleep(resetHold)
	return nil
}

// SetLUT loads a waveform table, usually LUTFullUpdate or LUTPartialUpdate.
func (d *Dev) SetLUT(lut []byte) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.writeLUT(lut)
}

func (d *Dev) writeLUT(lut []byte) error {
	if len(lut) != LUTSize {
		return fmt.Errorf("epd1in54: invalid LUT length %d; expected %d", len(lut), LUTSize)
	}
	if err := d.l.CommandData(writeLUTRegister, lut...); err != nil {
		return fmt.Errorf("epd1in54: failed to write LUT: %w", err)
	}
	copy(d.lut[:], lut)
	return nil
}

// LUT returns the waveform table last loaded.
func (d *Dev) LUT() [LUTSize]byte {
	return d.lut
}

// State returns the controller lifecycle state.
func (d *Dev) State() State {
	return d.state
}

// Image returns the frame buffer. Drawing into it has no visible effect until
// Present is called.
func (d *Dev) Image() *image1bit.Image {
	return d.img
}

// SetMemoryArea sets the RAM window. X coordinates are sent in units of 8
// pixels, so their 3 low bits are dropped.
func (d *Dev) SetMemoryArea(x0, y0, x1, y1 int) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.setMemoryArea(x0, y0, x1, y1)
}

func (d *Dev) setMemoryArea(x0, y0, x1, y1 int) error {
	if err := d.l.CommandData(setRAMXAddressStartEndPosition, byte(x0>>3), byte(x1>>3)); err != nil {
		return fmt.Errorf("epd1in54: failed to set RAM X window: %w", err)
	}
	if err := d.l.CommandData(setRAMYAddressStartEndPosition, byte(y0), byte(y0>>8), byte(y1), byte(y1>>8)); err != nil {
		return fmt.Errorf("epd1in54: failed to set RAM Y window: %w", err)
	}
	return nil
}

// SetMemoryPointer sets the RAM address counter and waits for the controller
// to become idle. As with SetMemoryArea, x is sent in units of 8 pixels.
func (d *Dev) SetMemoryPointer(x, y int) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.setMemoryPointer(x, y)
}

func (d *Dev) setMemoryPointer(x, y int) error {
	if err := d.l.CommandData(setRAMXAddressCounter, byte(x>>3)); err != nil {
		return fmt.Errorf("epd1in54: failed to set RAM X counter: %w", err)
	}
	if err := d.l.CommandData(setRAMYAddressCounter, byte(y), byte(y>>8)); err != nil {
		return fmt.Errorf("epd1in54: failed to set RAM Y counter: %w", err)
	}
	d.waitIdle()
	return nil
}

// SetFrameMemory writes the whole frame buffer to the controller RAM.
func (d *Dev) SetFrameMemory() error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.setFrameMemory(d.img.Pix)
}

func (d *Dev) setFrameMemory(pix []byte) error {
	if err := d.setMemoryArea(0, 0, Width-1, Height-1); err != nil {
		return err
	}
	if err := d.setMemoryPointer(0, 0); err != nil {
		return err
	}
	if err := d.l.Command(writeRAM); err != nil {
		return fmt.Errorf("epd1in54: failed to write RAM: %w", err)
	}
	if err := d.l.Data(pix); err != nil {
		return fmt.Errorf("epd1in54: failed to write RAM: %w", err)
	}
	return nil
}

// DisplayFrame refreshes the panel from the controller RAM and blocks until
// the refresh completes. Errors are handled as in Present.
func (d *Dev) DisplayFrame() error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.displayFrame()
}

func (d *Dev) displayFrame() error {
	d.setState(Refreshing)
	if err := d.l.CommandData(displayUpdateControl2, 0xC4); err != nil {
		return fmt.Errorf("epd1in54: failed to refresh: %w", err)
	}
	if err := d.l.Command(masterActivation); err != nil {
		return fmt.Errorf("epd1in54: failed to refresh: %w", err)
	}
	if err := d.l.Command(terminateFrameReadWrite); err != nil {
		return fmt.Errorf("epd1in54: failed to refresh: %w", err)
	}
	d.waitIdle()
	d.setState(Idle)
	return nil
}

// Present writes the frame buffer to the panel and refreshes it.
//
// A transfer error during the refresh leaves the panel Refreshing; every
// later call fails until Init resets the controller.
func (d *Dev) Present() error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.setFrameMemory(d.img.Pix); err != nil {
		return err
	}
	return d.displayFrame()
}

// Sleep puts the controller in deep sleep. Init must be called before the
// panel can be used again.
func (d *Dev) Sleep() error {
	if d.state == Sleeping {
		return nil
	}
	if err := d.l.Command(deepSleepMode); err != nil {
		return fmt.Errorf("epd1in54: failed to enter deep sleep: %w", err)
	}
	d.waitIdle()
	d.setState(Sleeping)
	return nil
}

// Halt implements conn.Resource. It puts the panel in deep sleep; the image on
// the panel is retained.
func (d *Dev) Halt() error {
	return d.Sleep()
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("epd1in54.Dev{%s, %dx%d}", d.l, Width, Height)
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// Draw implements display.Drawer. It draws src into the frame buffer and
// presents it.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if err := d.ready(); err != nil {
		return err
	}
	dst = dst.Intersect(d.Bounds())
	if dst.Empty() {
		return nil
	}
	draw.Draw(d.img, dst, src, sp, draw.Src)
	return d.Present()
}

// Write replaces the frame buffer with pixels in image1bit.HorizontalMSB
// layout and presents it.
func (d *Dev) Write(pixels []byte) (int, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	if len(pixels) != len(d.img.Pix) {
		return 0, errors.New("epd1in54: invalid buffer size")
	}
	copy(d.img.Pix, pixels)
	if err := d.Present(); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

func (d *Dev) ready() error {
	switch d.state {
	case Idle:
		return nil
	case Sleeping:
		return errors.New("epd1in54: asleep")
	}
	return fmt.Errorf("epd1in54: not ready (%s)", d.state)
}

func (d *Dev) waitIdle() {
	prev := d.state
	d.setState(WaitingIdle)
	d.l.WaitIdle(d.busy, pollInterval)
	d.setState(prev)
}

func (d *Dev) setState(s State) {
	if d.state != s {
		d.l.Logger().Debugf("epd1in54: %s -> %s", d.state, s)
	}
	d.state = s
}

var _ monodisplay.Controller = &Dev{}
