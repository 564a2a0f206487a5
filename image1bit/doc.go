// Package image1bit provides a packed monochrome image format shared by the
// e-paper and OLED drivers.
//
// Each byte stores 8 pixels. Two packings exist and they are not
// interchangeable:
//
// HorizontalMSB (e-paper): a row is ceil(width/8) bytes, bit 7 is the leftmost
// column of the byte.
//
//	Pixels (row 0): x=0 1 2 3 4 5 6 7
//	Values:           1 0 1 1 0 0 0 1
//	Byte:           0xB1
//
// VerticalLSB (OLED): the buffer is height/8 pages of width bytes; the byte at
// x+page*width holds rows page*8 .. page*8+7, bit 0 being the topmost one.
//
//	Pixels (x=0): y=0 1 2 3 4 5 6 7
//	Values:         1 0 1 1 0 0 0 1
//	Byte:         0x8D
//
// Blit re-packs pixels, so it can copy between images of different layouts.
//
// Example usage:
//
//	img := image1bit.NewHorizontalMSB(image.Rect(0, 0, 200, 200))
//	img.Fill(image1bit.On)
//	img.Text("Hello", 0, 0, image1bit.Off)
//	img.DrawRect(10, 20, 50, 30, image1bit.Off)
//	fmt.Println(img.BitAt(10, 20)) // Off
package image1bit
