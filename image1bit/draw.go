package image1bit

// Fill sets every pixel, including the padding bits of a partial last byte.
func (i *Image) Fill(b Bit) {
	v := byte(0x00)
	if b {
		v = 0xFF
	}
	for j := range i.Pix {
		i.Pix[j] = v
	}
}

// HLine draws a horizontal line of w pixels starting at (x, y).
func (i *Image) HLine(x, y, w int, b Bit) {
	i.FillRect(x, y, w, 1, b)
}

// VLine draws a vertical line of h pixels starting at (x, y).
func (i *Image) VLine(x, y, h int, b Bit) {
	i.FillRect(x, y, 1, h, b)
}

// Line draws a line from (x0, y0) to (x1, y1), both ends included.
func (i *Image) Line(x0, y0, x1, y1 int, b Bit) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		i.SetBit(x0, y0, b)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// DrawRect draws the outline of the w×h rectangle whose top-left corner is (x, y).
func (i *Image) DrawRect(x, y, w, h int, b Bit) {
	if w <= 0 || h <= 0 {
		return
	}
	i.HLine(x, y, w, b)
	i.HLine(x, y+h-1, w, b)
	i.VLine(x, y, h, b)
	i.VLine(x+w-1, y, h, b)
}

// FillRect fills the w×h rectangle whose top-left corner is (x, y). The part
// of the rectangle outside the image is ignored.
func (i *Image) FillRect(x, y, w, h int, b Bit) {
	x0, y0 := max(x, i.Rect.Min.X), max(y, i.Rect.Min.Y)
	x1, y1 := min(x+w, i.Rect.Max.X), min(y+h, i.Rect.Max.Y)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			i.SetBit(px, py, b)
		}
	}
}

// Scroll shifts the image content by (dx, dy). Pixels uncovered by the shift
// keep their previous value.
func (i *Image) Scroll(dx, dy int) {
	w, h := i.Rect.Dx(), i.Rect.Dy()
	xs, xe, xi := w-1, min(dx, w)-1, -1
	if dx < 0 {
		xs, xe, xi = 0, max(w+dx, 0), 1
	}
	ys, ye, yi := h-1, min(dy, h)-1, -1
	if dy < 0 {
		ys, ye, yi = 0, max(h+dy, 0), 1
	}
	ox, oy := i.Rect.Min.X, i.Rect.Min.Y
	for y := ys; y != ye; y += yi {
		for x := xs; x != xe; x += xi {
			i.SetBit(ox+x, oy+y, i.BitAt(ox+x-dx, oy+y-dy))
		}
	}
}

// Blit copies src into i with src's top-left corner at (x, y). Every source
// pixel is copied, lit or not. The two images may use different layouts.
func (i *Image) Blit(src *Image, x, y int) {
	i.blit(src, x, y, false, Off)
}

// BlitKey is like Blit but skips source pixels equal to key.
func (i *Image) BlitKey(src *Image, x, y int, key Bit) {
	i.blit(src, x, y, true, key)
}

func (i *Image) blit(src *Image, x, y int, keyed bool, key Bit) {
	r := src.Rect
	for sy := r.Min.Y; sy < r.Max.Y; sy++ {
		for sx := r.Min.X; sx < r.Max.X; sx++ {
			b := src.BitAt(sx, sy)
			if keyed && b == key {
				continue
			}
			i.SetBit(x+sx-r.Min.X, y+sy-r.Min.Y, b)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
