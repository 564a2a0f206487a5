package image1bit

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Glyph cell of the built-in text face.
const (
	GlyphAdvance = 7
	GlyphHeight  = 13
)

var face = basicfont.Face7x13

// Text draws s with its top-left corner at (x, y). Only the glyph strokes
// are written, the background is left untouched.
func (i *Image) Text(s string, x, y int, b Bit) {
	d := font.Drawer{
		Dst:  i,
		Src:  image.NewUniform(b),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(s)
}
