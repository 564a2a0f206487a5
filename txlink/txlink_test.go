package txlink

import (
	"bytes"
	"testing"
	"time"

	"github.com/flavioheleno/monodisplay/txlink/txlinktest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

func newTestLink(t *testing.T, withCS bool) (*Link, *txlinktest.Env) {
	t.Helper()
	env := txlinktest.NewEnv()
	opts := &Opts{Freq: 2 * physic.MegaHertz, DC: env.DC, Clock: env.Clock}
	if withCS {
		opts.CS = env.CS
	}
	l, err := New(env.Port, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.Rec.Reset()
	return l, env
}

func TestNewValidation(t *testing.T) {
	env := txlinktest.NewEnv()
	tests := []struct {
		name string
		opts *Opts
	}{
		{"nil opts", nil},
		{"no frequency", &Opts{DC: env.DC}},
		{"no dc", &Opts{Freq: physic.MegaHertz}},
		{"invalid dc", &Opts{Freq: physic.MegaHertz, DC: gpio.INVALID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(env.Port, tt.opts); err == nil {
				t.Error("expected error but didn't get one")
			}
		})
	}
}

func TestNewConnect(t *testing.T) {
	env := txlinktest.NewEnv()
	env.CS.L = gpio.Low
	if _, err := New(env.Port, &Opts{Freq: 10 * physic.MegaHertz, DC: env.DC, CS: env.CS}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if env.Port.Freq != 10*physic.MegaHertz {
		t.Errorf("Connect freq = %s, want 10MHz", env.Port.Freq)
	}
	if env.Port.Mode != spi.Mode0|spi.NoCS {
		t.Errorf("Connect mode = %s, want Mode0|NoCS", env.Port.Mode)
	}
	if env.Port.Bits != 8 {
		t.Errorf("Connect bits = %d, want 8", env.Port.Bits)
	}
	if env.CS.L != gpio.High {
		t.Error("CS should be deasserted after New")
	}
}

func TestCommandFraming(t *testing.T) {
	l, env := newTestLink(t, true)
	if err := l.Command(0x12); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Speed(2MHz)",
		"Out(CS=High)",
		"Out(DC=Low)",
		"Out(CS=Low)",
		"Tx(dc=Low cs=[CS] w=12 r=)",
		"Out(CS=High)",
	}
	ops := env.Rec.Filter(txlinktest.Speed, txlinktest.Out, txlinktest.Tx)
	if len(ops) != len(want) {
		t.Fatalf("got %d ops %v, want %v", len(ops), ops, want)
	}
	for i, o := range ops {
		if o.String() != want[i] {
			t.Errorf("op %d = %s, want %s", i, o, want[i])
		}
	}
}

func TestDataFraming(t *testing.T) {
	l, env := newTestLink(t, true)
	buf := []byte{0xD7, 0xD6, 0x9D}
	if err := l.Data(buf); err != nil {
		t.Fatal(err)
	}
	txs := env.Rec.Filter(txlinktest.Tx)
	if len(txs) != 1 {
		t.Fatalf("got %d transfers, want 1", len(txs))
	}
	if txs[0].DC != gpio.High || !txs[0].IsSelected("CS") {
		t.Errorf("data frame = %s, want DC high and CS selected", txs[0])
	}
	if !bytes.Equal(txs[0].W, buf) {
		t.Errorf("data = % X, want % X", txs[0].W, buf)
	}
}

func TestCommandData(t *testing.T) {
	l, env := newTestLink(t, false)
	if err := l.CommandData(0x2C, 0xA8); err != nil {
		t.Fatal(err)
	}
	if err := l.CommandData(0x20); err != nil {
		t.Fatal(err)
	}
	txs := env.Rec.Filter(txlinktest.Tx)
	if len(txs) != 3 {
		t.Fatalf("got %d transfers %v, want 3", len(txs), txs)
	}
	wants := []struct {
		dc gpio.Level
		w  byte
	}{{gpio.Low, 0x2C}, {gpio.High, 0xA8}, {gpio.Low, 0x20}}
	for i, w := range wants {
		if txs[i].DC != w.dc || len(txs[i].W) != 1 || txs[i].W[0] != w.w {
			t.Errorf("transfer %d = %s, want dc=%s w=%02X", i, txs[i], w.dc, w.w)
		}
		if len(txs[i].Selected) != 0 {
			t.Errorf("transfer %d selected %v without a CS pin", i, txs[i].Selected)
		}
	}
}

func TestSpeedReassertedEveryFrame(t *testing.T) {
	l, env := newTestLink(t, true)
	for i := 0; i < 3; i++ {
		if err := l.Command(byte(i)); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(env.Rec.Filter(txlinktest.Speed)); got != 3 {
		t.Errorf("LimitSpeed called %d times, want 3", got)
	}
}

func TestDataChunking(t *testing.T) {
	env := txlinktest.NewEnv()
	env.Port.MaxTx = 4096
	l, err := New(env.Port, &Opts{Freq: physic.MegaHertz, DC: env.DC, CS: env.CS, Clock: env.Clock})
	if err != nil {
		t.Fatal(err)
	}
	env.Rec.Reset()

	buf := make([]byte, 5000)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := l.Data(buf); err != nil {
		t.Fatal(err)
	}
	txs := env.Rec.Filter(txlinktest.Tx)
	if len(txs) != 2 {
		t.Fatalf("got %d transfers, want 2", len(txs))
	}
	if len(txs[0].W) != 4096 || len(txs[1].W) != 904 {
		t.Errorf("chunk sizes = %d, %d; want 4096, 904", len(txs[0].W), len(txs[1].W))
	}
	for _, tx := range txs {
		if !tx.IsSelected("CS") {
			t.Error("CS must stay asserted across chunks")
		}
	}
	if got := append(append([]byte(nil), txs[0].W...), txs[1].W...); !bytes.Equal(got, buf) {
		t.Error("chunks do not reassemble the buffer")
	}
	// Only one CS pulse for the whole frame.
	lows := 0
	for _, o := range env.Rec.Filter(txlinktest.Out) {
		if o.Pin == "CS" && o.Level == gpio.Low {
			lows++
		}
	}
	if lows != 1 {
		t.Errorf("CS asserted %d times, want 1", lows)
	}
}

func TestRead(t *testing.T) {
	l, env := newTestLink(t, true)
	env.Port.Respond = func(o txlinktest.Op, r []byte) {
		for i := range r {
			r[i] = byte(0xA0 + i)
		}
	}

	got, err := l.Read(env.CS2, []byte{0x03, 0x01, 0xB8, 0x20}, 4, 0x00)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0xA0, 0xA1, 0xA2, 0xA3}; !bytes.Equal(got, want) {
		t.Errorf("Read() = % X, want % X", got, want)
	}

	txs := env.Rec.Filter(txlinktest.Tx)
	if len(txs) != 2 {
		t.Fatalf("got %d transfers, want 2", len(txs))
	}
	if !bytes.Equal(txs[0].W, []byte{0x03, 0x01, 0xB8, 0x20}) || txs[0].R != nil {
		t.Errorf("header transfer = %s", txs[0])
	}
	if !bytes.Equal(txs[1].W, []byte{0, 0, 0, 0}) {
		t.Errorf("fill transfer = %s", txs[1])
	}
	for _, tx := range txs {
		if !tx.IsSelected("CS2") || tx.IsSelected("CS") {
			t.Errorf("transfer %s should select CS2 only", tx)
		}
	}
	if env.CS2.L != gpio.High {
		t.Error("CS2 should be released after Read")
	}

	if _, err := l.Read(nil, nil, 1, 0); err == nil {
		t.Error("Read without a chip-select should fail")
	}
}

func TestReadPortCS(t *testing.T) {
	l, env := newTestLink(t, false)
	if l.SharesBus() {
		t.Error("SharesBus() = true without a chip-select GPIO")
	}
	if err := l.Data([]byte{0xFF}); err != nil {
		t.Fatal(err)
	}
	env.Rec.Reset()

	if _, err := l.Read(env.CS2, []byte{0x03, 0x01, 0xB8, 0x20}, 32, 0x00); err == nil {
		t.Error("Read should fail when the port drives the display chip-select")
	}
	if txs := env.Rec.Filter(txlinktest.Tx); len(txs) != 0 {
		t.Errorf("rejected Read sent %v", txs)
	}
	if env.CS2.L != gpio.High {
		t.Error("CS2 should stay deasserted")
	}
}

func TestWaitIdle(t *testing.T) {
	l, env := newTestLink(t, false)
	env.Busy.Arm(3)
	l.WaitIdle(env.Busy, 100*time.Millisecond)

	var seq []string
	for _, o := range env.Rec.Filter(txlinktest.Poll, txlinktest.Sleep) {
		seq = append(seq, o.String())
	}
	want := []string{
		"Poll(BUSY=High)", "Sleep(100ms)",
		"Poll(BUSY=High)", "Sleep(100ms)",
		"Poll(BUSY=High)", "Sleep(100ms)",
		"Poll(BUSY=Low)",
	}
	if len(seq) != len(want) {
		t.Fatalf("got %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, seq[i], want[i])
		}
	}
}

func TestWaitIdleAlreadyIdle(t *testing.T) {
	l, env := newTestLink(t, false)
	l.WaitIdle(env.Busy, 100*time.Millisecond)
	if got := env.Rec.Filter(txlinktest.Sleep); len(got) != 0 {
		t.Errorf("idle line should not sleep, got %v", got)
	}
}

func TestHalt(t *testing.T) {
	l, env := newTestLink(t, true)
	env.CS.L = gpio.Low
	if err := l.Halt(); err != nil {
		t.Fatal(err)
	}
	if env.CS.L != gpio.High {
		t.Error("Halt should release CS")
	}
}

func TestString(t *testing.T) {
	l, _ := newTestLink(t, false)
	if got, want := l.String(), "txlink.Link{txlinktest, 2MHz}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if l.Freq() != 2*physic.MegaHertz {
		t.Errorf("Freq() = %s", l.Freq())
	}
}
