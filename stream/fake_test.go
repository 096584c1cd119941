package stream

import (
	"context"
	"sync"

	"github.com/nasa-jpl/zetstream/zet"
)

// fakeDevice is a scripted ADC/DAC.  Pointer returns the script in order and
// then repeats its last entry
type fakeDevice struct {
	mu sync.Mutex

	freq       float64
	words      int
	channels   []int
	irq        int
	size       int
	resolution float64
	gain       float64

	script []int
	polls  int

	fail  map[string]error
	calls []string
	buf   *zet.Buffer
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		freq:       1000,
		words:      1,
		channels:   []int{0},
		irq:        100,
		size:       10000,
		resolution: 0.001,
		gain:       1,
		fail:       map[string]error{},
	}
}

func (f *fakeDevice) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeDevice) called(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeDevice) Open() error                 { return f.record("Open") }
func (f *fakeDevice) Close() error                { return f.record("Close") }
func (f *fakeDevice) Frequency() (float64, error) { return f.freq, f.record("Frequency") }
func (f *fakeDevice) Words() (int, error)         { return f.words, f.record("Words") }
func (f *fakeDevice) Channels() (int, error)      { return len(f.channels), f.record("Channels") }
func (f *fakeDevice) InterruptSize() (int, error) { return f.irq, f.record("InterruptSize") }
func (f *fakeDevice) Start() error                { return f.record("Start") }
func (f *fakeDevice) Stop() error                 { return f.record("Stop") }

func (f *fakeDevice) EnabledChannels() ([]int, error) {
	return f.channels, f.record("EnabledChannels")
}

func (f *fakeDevice) Resolution(int) (float64, error)    { return f.resolution, f.record("Resolution") }
func (f *fakeDevice) Amplification(int) (float64, error) { return f.gain, f.record("Amplification") }
func (f *fakeDevice) Attenuation(int) (float64, error)   { return f.gain, f.record("Attenuation") }

func (f *fakeDevice) Buffer() (*zet.Buffer, error) {
	if err := f.record("Buffer"); err != nil {
		return nil, err
	}
	if f.buf == nil {
		f.buf = &zet.Buffer{Words: make([]int16, f.size)}
	}
	return f.buf, nil
}

func (f *fakeDevice) ReleaseBuffer(*zet.Buffer) error {
	return f.record("ReleaseBuffer")
}

func (f *fakeDevice) Pointer() (int, error) {
	if err := f.record("Pointer"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return 0, nil
	}
	i := f.polls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.polls++
	return f.script[i], nil
}

// countdown allows n polls and then cancels the stream
type countdown struct {
	n      int
	cancel context.CancelFunc
}

func (c *countdown) Wait(ctx context.Context) error {
	if c.n == 0 {
		c.cancel()
		return ctx.Err()
	}
	c.n--
	return nil
}

func newCountdown(n int) (*countdown, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &countdown{n: n, cancel: cancel}, ctx
}
