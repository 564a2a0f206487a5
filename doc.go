// Package monodisplay drives monochrome display panels from a host with
// periph.io SPI, I²C and GPIO support.
//
// Two controllers are supported, each in its own package:
//
//   - epd1in54: 1.54" 200×200 e-paper panel (SSD1607 class controller).
//   - ssd1306: 128×64 and smaller OLED panels, over SPI or I²C.
//
// Both implement Controller, which extends periph's display.Drawer with an
// in-memory frame buffer. Drawing happens in the frame buffer; Present pushes
// it to the panel in one go.
//
// Related packages:
//
//   - image1bit: the packed 1-bit frame buffer used by both drivers.
//   - txlink: command/data framing over SPI with GPIO control lines.
//   - glyphrom: 16×16 kanji glyphs read from a serial ROM on the OLED bus.
//
// # Hardware Connection
//
// Both controllers use a data/command line besides the SPI clock and data
// lines. The e-paper panel adds a reset line and a busy line:
//
//	Panel Pin → System Pin
//	GND       → GND
//	VCC       → 3.3V
//	CLK       → SPI Clock (SCLK)
//	DIN       → SPI Data (MOSI)
//	CS        → GPIO (driven by the driver)
//	DC        → GPIO
//	RST       → GPIO
//	BUSY      → GPIO (input)
//
// When a chip-select GPIO is given the port is opened with spi.NoCS and the
// driver frames every transfer itself. This lets a glyph ROM share the bus on
// a second chip-select.
//
// # Basic Usage
//
//	package main
//
//	import (
//		"github.com/flavioheleno/monodisplay/epd1in54"
//		"github.com/flavioheleno/monodisplay/image1bit"
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//		b, _ := spireg.Open("")
//		dev, _ := epd1in54.NewSPI(b, &epd1in54.Opts{
//			DC:   gpioreg.ByName("GPIO25"),
//			CS:   gpioreg.ByName("GPIO8"),
//			RST:  gpioreg.ByName("GPIO17"),
//			Busy: gpioreg.ByName("GPIO24"),
//		})
//		defer dev.Halt()
//
//		img := dev.Image()
//		img.Fill(image1bit.On)
//		img.Text("Hello, world!", 10, 10, image1bit.Off)
//		dev.Present()
//	}
//
// # Refresh
//
// An e-paper refresh takes one to two seconds and Present blocks until the
// panel reports it is idle again. There is no timeout: a panel that never
// releases its busy line blocks forever.
//
// The OLED has no such wait; Show rewrites the whole display RAM and returns.
//
// # Kanji
//
// glyphrom maps a two-byte Shift_JIS code to the address of its 32-byte record
// in the ROM, reads it and blits it as a 16×16 glyph:
//
//	rom, _ := glyphrom.New(dev.Link(), gpioreg.ByName("GPIO7"))
//	rom.Put(dev.Image(), 0, 16, 0x93FA) // 日
//	dev.Show()
//
// Codes outside the ROM bands resolve to address 0, whose glyph is drawn
// instead of reporting an error.
//
// # Compatibility with periph.io
//
// Both drivers implement the display.Drawer interface from periph.io:
// https://pkg.go.dev/periph.io/x/conn/v3/display
package monodisplay
