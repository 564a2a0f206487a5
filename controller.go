package monodisplay

import (
	"github.com/flavioheleno/monodisplay/image1bit"
	"periph.io/x/conn/v3/display"
)

// Controller is implemented by both display drivers.
//
// The frame buffer returned by Image is owned by the controller and is never
// reallocated; drawing into it is only made visible by Present.
type Controller interface {
	display.Drawer

	// Init runs the controller initialization sequence. It is called by the
	// constructors and may be called again to recover from Halt.
	Init() error
	// Present pushes the whole frame buffer to the panel.
	Present() error
	// Image returns the frame buffer.
	Image() *image1bit.Image
}
