package image1bit

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Bit is a 1-bit color. On is a lit pixel (white on OLED, white paper on
// e-paper), Off is a dark one.
type Bit bool

const (
	On  Bit = true
	Off Bit = false
)

// RGBA implements color.Color.
func (b Bit) RGBA() (r, g, bl, a uint32) {
	if b {
		return 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF
	}
	return 0, 0, 0, 0xFFFF
}

func (b Bit) String() string {
	if b {
		return "On"
	}
	return "Off"
}

// toBit converts any color.Color to Bit using a 50% luminance threshold.
func toBit(c color.Color) color.Color {
	if b, ok := c.(Bit); ok {
		return b
	}
	r, g, b, _ := c.RGBA()
	y := (299*r + 587*g + 114*b + 500) / 1000
	return Bit(y >= 0x8000)
}

// BitModel converts colors to Bit.
var BitModel = color.ModelFunc(toBit)

// Layout selects how pixels are packed into bytes.
type Layout uint8

const (
	// HorizontalMSB packs 8 horizontally adjacent pixels per byte, rows are
	// ceil(width/8) bytes long and bit 7 is the leftmost column.
	HorizontalMSB Layout = iota
	// VerticalLSB packs 8 vertically adjacent pixels per byte. The buffer is a
	// sequence of pages, each 8 rows tall and width bytes long; bit 0 is the
	// topmost row of the page.
	VerticalLSB
)

func (l Layout) String() string {
	switch l {
	case HorizontalMSB:
		return "HorizontalMSB"
	case VerticalLSB:
		return "VerticalLSB"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// BufLen returns the number of bytes needed to hold a w×h image.
func (l Layout) BufLen(w, h int) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	if l == VerticalLSB {
		return (h + 7) / 8 * w
	}
	return (w + 7) / 8 * h
}

// Image is a packed 1-bit image.
type Image struct {
	Pix    []byte          // Packed pixels
	Stride int             // Bytes per row (HorizontalMSB) or per page (VerticalLSB)
	Rect   image.Rectangle // Image bounds
	Layout Layout
}

// New returns an image of the given layout covering r.
func New(l Layout, r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return &Image{Rect: r, Layout: l}
	}
	return &Image{
		Pix:    make([]byte, l.BufLen(w, h)),
		Stride: stride(l, w),
		Rect:   r,
		Layout: l,
	}
}

// NewHorizontalMSB returns an image in the e-paper packing.
func NewHorizontalMSB(r image.Rectangle) *Image {
	return New(HorizontalMSB, r)
}

// NewVerticalLSB returns an image in the OLED page packing.
func NewVerticalLSB(r image.Rectangle) *Image {
	return New(VerticalLSB, r)
}

// Wrap returns an image that draws directly into pix. pix must be exactly
// l.BufLen(r.Dx(), r.Dy()) bytes long; the returned image aliases it.
func Wrap(l Layout, r image.Rectangle, pix []byte) (*Image, error) {
	if r.Empty() {
		return nil, errors.New("image1bit: empty rectangle")
	}
	if want := l.BufLen(r.Dx(), r.Dy()); len(pix) != want {
		return nil, fmt.Errorf("image1bit: invalid buffer length %d for %s %dx%d; expected %d", len(pix), l, r.Dx(), r.Dy(), want)
	}
	return &Image{Pix: pix, Stride: stride(l, r.Dx()), Rect: r, Layout: l}, nil
}

func stride(l Layout, w int) int {
	if l == VerticalLSB {
		return w
	}
	return (w + 7) / 8
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return BitModel
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return i.Rect
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	return i.BitAt(x, y)
}

// BitAt returns the pixel at (x, y). Pixels outside the image are Off.
func (i *Image) BitAt(x, y int) Bit {
	if !(image.Point{X: x, Y: y}.In(i.Rect)) {
		return Off
	}
	offset, mask := i.pixOffset(x, y)
	return Bit(i.Pix[offset]&mask != 0)
}

// Set implements draw.Image.
func (i *Image) Set(x, y int, c color.Color) {
	i.SetBit(x, y, BitModel.Convert(c).(Bit))
}

// SetBit sets the pixel at (x, y). Out of bounds writes are ignored.
func (i *Image) SetBit(x, y int, b Bit) {
	if !(image.Point{X: x, Y: y}.In(i.Rect)) {
		return
	}
	offset, mask := i.pixOffset(x, y)
	if b {
		i.Pix[offset] |= mask
	} else {
		i.Pix[offset] &^= mask
	}
}

// pixOffset returns the byte offset and bit mask of the pixel at (x, y).
func (i *Image) pixOffset(x, y int) (offset int, mask byte) {
	x -= i.Rect.Min.X
	y -= i.Rect.Min.Y
	if i.Layout == VerticalLSB {
		return x + (y/8)*i.Stride, 1 << uint(y&7)
	}
	return y*i.Stride + x/8, 0x80 >> uint(x&7)
}
