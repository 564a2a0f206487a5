// Package glyphrom reads 16x16 kanji glyphs from a serial glyph ROM sharing
// the SPI bus of a display.
//
// Glyphs are looked up by their two-byte Shift_JIS code. The ROM stores them
// as contiguous 32-byte records over four bands of the JIS X 0208 row/cell
// grid; Address maps a code to the offset of its record.
package glyphrom

import (
	"errors"
	"fmt"
	"image"

	"github.com/flavioheleno/monodisplay/image1bit"
	"github.com/flavioheleno/monodisplay/txlink"
	"periph.io/x/conn/v3/gpio"
)

const (
	// Size is the width and height of a glyph in pixels.
	Size = 16
	// RecordSize is the length of a glyph record in bytes.
	RecordSize = Size * Size / 8

	readData byte = 0x03
)

// band is a range of JIS rows stored contiguously from base.
type band struct {
	first, last int
	base        uint32
}

var bands = []band{
	{1, 15, 0x00000},
	{16, 47, 0x0AA40},
	{48, 84, 0x21CDF},
	{85, 85, 0x3C4A0},
	{88, 89, 0x3D060},
}

// Address returns the ROM offset of the glyph record for the Shift_JIS code.
//
// Codes outside every band resolve to 0, the first record of the ROM. No
// error is reported for them.
func Address(code uint16) uint32 {
	c1, c2 := int(code>>8), int(code&0xFF)
	if c1 <= 159 {
		c1 -= 129
	} else {
		c1 -= 193
	}
	if c2 <= 126 {
		c2 -= 64
	} else {
		c2 -= 65
	}
	seq := c1*188 + c2
	if seq < 0 {
		return 0
	}
	row, cell := seq/94+1, seq%94+1
	for _, b := range bands {
		if row >= b.first && row <= b.last {
			return uint32((row-b.first)*94+cell-1)*RecordSize + b.base
		}
	}
	return 0
}

// Record is a glyph as stored in the ROM: two pages of 16 columns, each byte
// holding 8 rows with bit 0 on top.
type Record [RecordSize]byte

// Image returns a 16x16 view of the record. It aliases r.
func (r *Record) Image() *image1bit.Image {
	return &image1bit.Image{
		Pix:    r[:],
		Stride: Size,
		Rect:   image.Rect(0, 0, Size, Size),
		Layout: image1bit.VerticalLSB,
	}
}

// DrawTo copies the glyph into dst with its top-left corner at (x, y). Unlit
// glyph pixels clear the destination; pixels falling outside dst are dropped.
func (r *Record) DrawTo(dst *image1bit.Image, x, y int) {
	dst.Blit(r.Image(), x, y)
}

// Resolver fetches glyph records from the ROM.
type Resolver struct {
	l  *txlink.Link
	cs gpio.PinOut
}

// New returns a Resolver reading through l with the ROM selected by cs. cs is
// driven high. l must drive the display chip-select through a GPIO.
func New(l *txlink.Link, cs gpio.PinOut) (*Resolver, error) {
	if l == nil {
		return nil, errors.New("glyphrom: link is required")
	}
	if !l.SharesBus() {
		return nil, errors.New("glyphrom: link has no chip-select pin to deselect the display")
	}
	if cs == nil || cs == gpio.INVALID {
		return nil, errors.New("glyphrom: chip-select pin is required")
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("glyphrom: failed to configure CS: %w", err)
	}
	return &Resolver{l: l, cs: cs}, nil
}

// Read fetches the glyph record of code.
func (r *Resolver) Read(code uint16) (Record, error) {
	var rec Record
	a := Address(code)
	if a == 0 {
		r.l.Logger().Debugf("glyphrom: code 0x%04X resolves to address 0", code)
	}
	b, err := r.l.Read(r.cs, []byte{readData, byte(a >> 16), byte(a >> 8), byte(a)}, RecordSize, 0x00)
	if err != nil {
		return rec, fmt.Errorf("glyphrom: failed to read 0x%04X: %w", code, err)
	}
	copy(rec[:], b)
	return rec, nil
}

// Put reads the glyph of code and draws it into dst at (x, y).
func (r *Resolver) Put(dst *image1bit.Image, x, y int, code uint16) error {
	rec, err := r.Read(code)
	if err != nil {
		return err
	}
	rec.DrawTo(dst, x, y)
	return nil
}

// String implements conn.Resource.
func (r *Resolver) String() string {
	return fmt.Sprintf("glyphrom.Resolver{%s, %s}", r.l, r.cs)
}

// Halt implements conn.Resource. It deselects the ROM.
func (r *Resolver) Halt() error {
	return r.cs.Out(gpio.High)
}
