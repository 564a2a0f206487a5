// Package ssd1306 controls a monochrome OLED display via a SSD1306 controller.
//
// The controller can be driven over 4-wire SPI or I²C. Unlike the e-paper
// panel, nothing is retained across a Show: every call rewrites the whole
// frame buffer, which is cheap enough at 10MiHz to be done continuously.
//
// On SPI the bus may also carry a glyph ROM on a second chip-select; build the
// link with txlink.New, pass it to NewLink and share it with glyphrom.New.
package ssd1306

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"time"

	"github.com/flavioheleno/monodisplay"
	"github.com/flavioheleno/monodisplay/image1bit"
	"github.com/flavioheleno/monodisplay/txlink"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Registers.
const (
	setContrast      byte = 0x81
	setEntireOn      byte = 0xA4
	setNormInv       byte = 0xA6
	setDisp          byte = 0xAE
	setMemAddr       byte = 0x20
	setColAddr       byte = 0x21
	setPageAddr      byte = 0x22
	setDispStartLine byte = 0x40
	setSegRemap      byte = 0xA0
	setMuxRatio      byte = 0xA8
	setComOutDir     byte = 0xC0
	setDispOffset    byte = 0xD3
	setComPinCfg     byte = 0xDA
	setDispClkDiv    byte = 0xD5
	setPrecharge     byte = 0xD9
	setVcomDesel     byte = 0xDB
	setChargePump    byte = 0x8D
)

const (
	// DefaultFreq is the SPI bus rate, 10MiHz.
	DefaultFreq = 10 * 1024 * 1024 * physic.Hertz
	// DefaultAddr is the I²C address of most modules.
	DefaultAddr = 0x3C

	i2cCmd  = 0x80 // Co=1, D/C#=0
	i2cData = 0x40 // Co=0, D/C#=1
)

// Opts is the configuration for the SSD1306 display.
type Opts struct {
	// Display dimensions in pixels
	W int // Width (default: 128, must be ≤128)
	H int // Height (default: 64, must be a multiple of 8 and ≤64)

	// ExternalVCC selects the pre-charge and charge pump settings for panels
	// powered by an external supply.
	ExternalVCC bool

	// SPI only.
	DC  gpio.PinOut // Data/Command pin (required by NewSPI)
	RST gpio.PinOut // Reset pin (optional, nil if not used)
	CS  gpio.PinOut // Chip-select pin (NewSPI only; optional, nil to use the port's CS)

	// I²C only.
	Addr uint16 // Device address (default: DefaultAddr)

	Freq   physic.Frequency   // SPI bus rate (default: DefaultFreq)
	Clock  txlink.Sleeper     // Delay source (default: real clock)
	Logger logrus.FieldLogger // Debug traces (default: discarded)
}

// transport carries commands and the frame buffer to the controller.
type transport interface {
	command(op byte) error
	// data sends buf unchanged in a single transfer.
	data(buf []byte) error
	powerOn() error
	String() string
}

// Dev is the device handle for the SSD1306 display.
type Dev struct {
	t      transport
	link   *txlink.Link
	log    logrus.FieldLogger
	rect   image.Rectangle
	extVCC bool

	// buf is what is sent on Show; on I²C it starts with the data control
	// byte and img.Pix aliases the rest.
	buf []byte
	img *image1bit.Image

	halted bool
}

// NewSPI connects to the display through p and runs PowerOn and Init.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errors.New("ssd1306: opts are required")
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
		return nil, fmt.Errorf("ssd1306: %w", err)
	}
	return NewLink(l, opts)
}

// NewLink returns a Dev driving the display through an existing link. Only
// W, H, ExternalVCC and RST are read from opts; it may be nil.
func NewLink(l *txlink.Link, opts *Opts) (*Dev, error) {
	if l == nil {
		return nil, errors.New("ssd1306: link is required")
	}
	o := defaults(opts)
	if err := validate(o); err != nil {
		return nil, err
	}
	if o.RST != nil {
		if err := o.RST.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("ssd1306: failed to configure RST: %w", err)
		}
	}
	buf := make([]byte, image1bit.VerticalLSB.BufLen(o.W, o.H))
	d, err := newDev(&spiTransport{l: l, rst: o.RST}, l.Logger(), o, buf, buf)
	if err != nil {
		return nil, err
	}
	d.link = l
	return d, d.start()
}

// NewI2C returns a Dev driving the display over the I²C bus b.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	o := defaults(opts)
	if err := validate(o); err != nil {
		return nil, err
	}
	addr := o.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	buf := make([]byte, 1+image1bit.VerticalLSB.BufLen(o.W, o.H))
	buf[0] = i2cData
	log := o.Logger
	if log == nil {
		log = discard()
	}
	d, err := newDev(&i2cTransport{d: &i2c.Dev{Bus: b, Addr: addr}}, log, o, buf, buf[1:])
	if err != nil {
		return nil, err
	}
	return d, d.start()
}

func defaults(opts *Opts) Opts {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.W == 0 {
		o.W = 128
	}
	if o.H == 0 {
		o.H = 64
	}
	return o
}

func validate(o Opts) error {
	if o.W < 1 || o.W > 128 {
		return fmt.Errorf("ssd1306: invalid width %d", o.W)
	}
	if o.H < 8 || o.H > 64 || o.H&7 != 0 {
		return fmt.Errorf("ssd1306: invalid height %d", o.H)
	}
	return nil
}

func newDev(t transport, log logrus.FieldLogger, o Opts, buf, pix []byte) (*Dev, error) {
	rect := image.Rect(0, 0, o.W, o.H)
	img, err := image1bit.Wrap(image1bit.VerticalLSB, rect, pix)
	if err != nil {
		return nil, fmt.Errorf("ssd1306: %w", err)
	}
	return &Dev{
		t:      t,
		log:    log,
		rect:   rect,
		extVCC: o.ExternalVCC,
		buf:    buf,
		img:    img,
	}, nil
}

func (d *Dev) start() error {
	if err := d.PowerOn(); err != nil {
		return err
	}
	return d.Init()
}

// PowerOn pulses the reset line: high 1ms, low 10ms, then high. It does
// nothing on I²C or without a reset pin.
func (d *Dev) PowerOn() error {
	if err := d.t.powerOn(); err != nil {
		return fmt.Errorf("ssd1306: power on: %w", err)
	}
	return nil
}

// Init sends the configuration sequence, clears the frame buffer and shows it.
func (d *Dev) Init() error {
	comPins := byte(0x12)
	if d.rect.Dy() == 32 {
		comPins = 0x02
	}
	precharge, chargePump := byte(0xF1), byte(0x14)
	if d.extVCC {
		precharge, chargePump = 0x22, 0x10
	}
	cmds := []byte{
		setDisp | 0x00,   // Display off
		setMemAddr, 0x00, // Horizontal addressing
		setDispStartLine | 0x00,
		setSegRemap | 0x01, // Column 127 mapped to SEG0
		setMuxRatio, byte(d.rect.Dy() - 1),
		setComOutDir | 0x08, // Scan from COM[N] to COM0
		setDispOffset, 0x00,
		setComPinCfg, comPins,
		setDispClkDiv, 0x80,
		setPrecharge, precharge,
		setVcomDesel, 0x30, // 0.83*Vcc
		setContrast, 0xFF,
		setEntireOn, // Output follows RAM
		setNormInv,  // Not inverted
		setChargePump, chargePump,
		setDisp | 0x01, // Display on
	}
	if err := d.sendCommands(cmds); err != nil {
		return fmt.Errorf("ssd1306: init: %w", err)
	}
	d.halted = false
	d.log.Debugf("ssd1306: initialized %dx%d", d.rect.Dx(), d.rect.Dy())
	d.img.Fill(image1bit.Off)
	return d.Show()
}

// ColumnWindow returns the first and last RAM columns written by Show. Panels
// 64 pixels wide are centered in the 128 column RAM.
func (d *Dev) ColumnWindow() (x0, x1 byte) {
	x0, x1 = 0, byte(d.rect.Dx()-1)
	if d.rect.Dx() == 64 {
		x0 += 32
		x1 += 32
	}
	return x0, x1
}

// Show sends the whole frame buffer to the display.
func (d *Dev) Show() error {
	if d.halted {
		return errors.New("ssd1306: halted")
	}
	x0, x1 := d.ColumnWindow()
	cmds := []byte{
		setColAddr, x0, x1,
		setPageAddr, 0, byte(d.rect.Dy()/8 - 1),
	}
	if err := d.sendCommands(cmds); err != nil {
		return fmt.Errorf("ssd1306: show: %w", err)
	}
	if err := d.t.data(d.buf); err != nil {
		return fmt.Errorf("ssd1306: show: %w", err)
	}
	return nil
}

// Present is an alias of Show.
func (d *Dev) Present() error {
	return d.Show()
}

// Image returns the frame buffer in image1bit.VerticalLSB layout. Drawing into
// it has no visible effect until Show is called.
func (d *Dev) Image() *image1bit.Image {
	return d.img
}

// Link returns the SPI link the display is driven through, nil on I²C.
func (d *Dev) Link() *txlink.Link {
	return d.link
}

// PowerOff turns the display off. Init turns it back on.
func (d *Dev) PowerOff() error {
	if err := d.t.command(setDisp | 0x00); err != nil {
		return fmt.Errorf("ssd1306: power off: %w", err)
	}
	d.halted = true
	return nil
}

// Halt implements conn.Resource. It turns the display off.
func (d *Dev) Halt() error {
	return d.PowerOff()
}

// SetContrast sets the display contrast (0-255).
func (d *Dev) SetContrast(level byte) error {
	if d.halted {
		return errors.New("ssd1306: halted")
	}
	return d.sendCommands([]byte{setContrast, level})
}

// Invert inverts the display colors.
func (d *Dev) Invert(invert bool) error {
	if d.halted {
		return errors.New("ssd1306: halted")
	}
	mode := setNormInv
	if invert {
		mode |= 0x01
	}
	return d.t.command(mode)
}

// TestPattern draws a diagonal line from the top left corner over up to 32
// pixels and shows it.
func (d *Dev) TestPattern() error {
	for i := 0; i < 32; i++ {
		d.img.SetBit(i, i, image1bit.On)
	}
	return d.Show()
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("ssd1306.Dev{%s, %dx%d}", d.t, d.rect.Dx(), d.rect.Dy())
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer. It draws src into the frame buffer and
// shows it.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted {
		return errors.New("ssd1306: halted")
	}
	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}
	draw.Draw(d.img, dst, src, sp, draw.Src)
	return d.Show()
}

// Write replaces the frame buffer with pixels in image1bit.VerticalLSB layout
// and shows it.
func (d *Dev) Write(pixels []byte) (int, error) {
	if d.halted {
		return 0, errors.New("ssd1306: halted")
	}
	if len(pixels) != len(d.img.Pix) {
		return 0, fmt.Errorf("ssd1306: invalid pixel stream length; expected %d bytes, got %d bytes", len(d.img.Pix), len(pixels))
	}
	copy(d.img.Pix, pixels)
	if err := d.Show(); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// sendCommands sends each byte in its own command frame.
func (d *Dev) sendCommands(cmds []byte) error {
	for _, c := range cmds {
		if err := d.t.command(c); err != nil {
			return err
		}
	}
	return nil
}

type spiTransport struct {
	l   *txlink.Link
	rst gpio.PinOut
}

func (s *spiTransport) command(op byte) error {
	return s.l.Command(op)
}

func (s *spiTransport) data(buf []byte) error {
	return s.l.Data(buf)
}

func (s *spiTransport) powerOn() error {
	if s.rst == nil {
		return nil
	}
	if err := s.rst.Out(gpio.High); err != nil {
		return err
	}
	s.l.Sleep(time.Millisecond)
	if err := s.rst.Out(gpio.Low); err != nil {
		return err
	}
	s.l.Sleep(10 * time.Millisecond)
	return s.rst.Out(gpio.High)
}

func (s *spiTransport) String() string {
	return s.l.String()
}

type i2cTransport struct {
	d *i2c.Dev
}

func (t *i2cTransport) command(op byte) error {
	return t.d.Tx([]byte{i2cCmd, op}, nil)
}

// data sends buf, control byte included, in a single transaction.
func (t *i2cTransport) data(buf []byte) error {
	return t.d.Tx(buf, nil)
}

func (t *i2cTransport) powerOn() error {
	return nil
}

func (t *i2cTransport) String() string {
	return t.d.String()
}

func discard() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

var _ monodisplay.Controller = &Dev{}
