// Package txlinktest provides fakes of the bus, control lines and clock a
// txlink.Link drives, all reporting into a single ordered Recorder.
//
// It is meant to be used by the unit tests of the display drivers.
package txlinktest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Kind identifies a recorded operation.
type Kind int

const (
	Tx    Kind = iota // a bus transfer
	Out               // a control line level change
	Poll              // a read of an input line
	Sleep             // a delay
	Speed             // a bus rate change
)

func (k Kind) String() string {
	switch k {
	case Tx:
		return "Tx"
	case Out:
		return "Out"
	case Poll:
		return "Poll"
	case Sleep:
		return "Sleep"
	case Speed:
		return "Speed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is one recorded operation.
type Op struct {
	Kind Kind
	// Pin is the line name for Out and Poll.
	Pin string
	// Level is the level written (Out) or read (Poll).
	Level gpio.Level
	// DC is the data/command line level sampled during a Tx.
	DC gpio.Level
	// Selected names the chip-select lines held low during a Tx.
	Selected []string
	// W and R are the bytes written and read by a Tx.
	W, R []byte
	// D is the duration of a Sleep.
	D time.Duration
	// F is the frequency of a Speed change.
	F physic.Frequency
}

// IsSelected reports whether the chip-select line name was low during a Tx.
func (o Op) IsSelected(name string) bool {
	for _, s := range o.Selected {
		if s == name {
			return true
		}
	}
	return false
}

func (o Op) String() string {
	switch o.Kind {
	case Tx:
		return fmt.Sprintf("Tx(dc=%s cs=%v w=% X r=% X)", o.DC, o.Selected, o.W, o.R)
	case Out, Poll:
		return fmt.Sprintf("%s(%s=%s)", o.Kind, o.Pin, o.Level)
	case Sleep:
		return fmt.Sprintf("Sleep(%s)", o.D)
	case Speed:
		return fmt.Sprintf("Speed(%s)", o.F)
	}
	return o.Kind.String()
}

// Recorder collects the operations of every fake bound to it, in order.
type Recorder struct {
	sync.Mutex
	Ops []Op
}

func (r *Recorder) add(o Op) {
	r.Lock()
	defer r.Unlock()
	r.Ops = append(r.Ops, o)
}

// Filter returns the recorded operations of the given kinds.
func (r *Recorder) Filter(kinds ...Kind) []Op {
	r.Lock()
	defer r.Unlock()
	var out []Op
	for _, o := range r.Ops {
		for _, k := range kinds {
			if o.Kind == k {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// Reset drops every recorded operation.
func (r *Recorder) Reset() {
	r.Lock()
	defer r.Unlock()
	r.Ops = nil
}

// Pin is a gpiotest.Pin that records every Out and Read.
type Pin struct {
	gpiotest.Pin
	Rec *Recorder
}

// NewPin returns a pin named name, initially at level l.
func NewPin(rec *Recorder, name string, l gpio.Level) *Pin {
	return &Pin{Pin: gpiotest.Pin{N: name, L: l}, Rec: rec}
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.Rec.add(Op{Kind: Out, Pin: p.N, Level: l})
	return nil
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	l := p.Pin.Read()
	p.Rec.add(Op{Kind: Poll, Pin: p.N, Level: l})
	return l
}

// level returns the current level without recording a Poll.
func (p *Pin) level() gpio.Level {
	return p.Pin.Read()
}

// BusyPin is an input line that reads High for the first Busy reads after
// each Arm, then Low.
type BusyPin struct {
	Pin
	busy int
}

// NewBusyPin returns an idle busy line.
func NewBusyPin(rec *Recorder, name string) *BusyPin {
	return &BusyPin{Pin: Pin{Pin: gpiotest.Pin{N: name}, Rec: rec}}
}

// Arm makes the next n reads report busy.
func (b *BusyPin) Arm(n int) {
	b.Lock()
	defer b.Unlock()
	b.busy = n
}

// Read implements gpio.PinIn.
func (b *BusyPin) Read() gpio.Level {
	b.Lock()
	l := gpio.Low
	if b.busy > 0 {
		b.busy--
		l = gpio.High
	}
	b.Unlock()
	b.Rec.add(Op{Kind: Poll, Pin: b.N, Level: l})
	return l
}

// Sleeper records delays instead of sleeping.
type Sleeper struct {
	Rec *Recorder
}

// Sleep implements txlink.Sleeper.
func (s *Sleeper) Sleep(d time.Duration) {
	s.Rec.add(Op{Kind: Sleep, D: d})
}

// Port implements spi.PortCloser. Each Tx is recorded with the levels of the
// DC and chip-select pins at the time of the transfer.
type Port struct {
	Rec *Recorder
	// DC is sampled on every transfer; it may be nil.
	DC *Pin
	// Selects are the chip-select lines sampled on every transfer.
	Selects []*Pin
	// Respond fills r for transfers that read. nil reads zeros.
	Respond func(o Op, r []byte)
	// MaxTx, when positive, is reported through conn.Limits.
	MaxTx int
	// Fail, when set, returns the error of each transfer after it is recorded.
	Fail func(o Op) error

	// Set by Connect.
	Freq physic.Frequency
	Mode spi.Mode
	Bits int

	mu          sync.Mutex
	initialized bool
}

func (p *Port) String() string {
	return "txlinktest"
}

// Close implements spi.PortCloser.
func (p *Port) Close() error {
	return nil
}

// LimitSpeed implements spi.PortCloser.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	p.Rec.add(Op{Kind: Speed, F: f})
	return nil
}

// Connect implements spi.Port.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil, errors.New("txlinktest: Connect cannot be called twice")
	}
	p.initialized = true
	p.Freq, p.Mode, p.Bits = f, mode, bits
	if p.MaxTx > 0 {
		return &limitedConn{portConn{p}}, nil
	}
	return &portConn{p}, nil
}

func (p *Port) tx(w, r []byte) error {
	o := Op{Kind: Tx}
	if p.DC != nil {
		o.DC = p.DC.level()
	}
	for _, cs := range p.Selects {
		if cs.level() == gpio.Low {
			o.Selected = append(o.Selected, cs.N)
		}
	}
	if len(w) != 0 {
		o.W = append([]byte(nil), w...)
	}
	if len(r) != 0 {
		if p.Respond != nil {
			p.Respond(o, r)
		}
		o.R = append([]byte(nil), r...)
	}
	p.Rec.add(o)
	if p.Fail != nil {
		return p.Fail(o)
	}
	return nil
}

type portConn struct {
	p *Port
}

func (c *portConn) String() string {
	return c.p.String()
}

func (c *portConn) Tx(w, r []byte) error {
	return c.p.tx(w, r)
}

func (c *portConn) Duplex() conn.Duplex {
	return conn.Full
}

func (c *portConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.p.tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

type limitedConn struct {
	portConn
}

func (c *limitedConn) MaxTxSize() int {
	return c.p.MaxTx
}

// Env wires a Port, its control lines and a Sleeper to one Recorder.
type Env struct {
	Rec   *Recorder
	Port  *Port
	DC    *Pin
	CS    *Pin
	CS2   *Pin
	RST   *Pin
	Busy  *BusyPin
	Clock *Sleeper
}

// NewEnv returns fakes named "DC", "CS", "CS2", "RST" and "BUSY". CS and CS2
// start high.
func NewEnv() *Env {
	rec := &Recorder{}
	e := &Env{
		Rec:   rec,
		DC:    NewPin(rec, "DC", gpio.Low),
		CS:    NewPin(rec, "CS", gpio.High),
		CS2:   NewPin(rec, "CS2", gpio.High),
		RST:   NewPin(rec, "RST", gpio.Low),
		Busy:  NewBusyPin(rec, "BUSY"),
		Clock: &Sleeper{Rec: rec},
	}
	e.Port = &Port{Rec: rec, DC: e.DC, Selects: []*Pin{e.CS, e.CS2}}
	return e
}

var _ spi.PortCloser = &Port{}
var _ gpio.PinIO = &Pin{}
var _ gpio.PinIO = &BusyPin{}
