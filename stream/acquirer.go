package stream

import (
	"context"
	"log"

	"github.com/nasa-jpl/zetstream/zet"
)

// AcquirerConfig configures an ADC stream
type AcquirerConfig struct {
	// Sink receives every decoded block.  When nil only the newest frame is
	// decoded on each poll
	Sink Sink

	// Scheduler paces polling, NewInterval(DefaultPollInterval) if nil
	Scheduler Scheduler

	// Logger receives state transitions, log.Default() if nil
	Logger *log.Logger
}

// Acquirer streams data from an ADC.
//
// On each poll which finds the hardware pointer moved, the newest frame is
// decoded and, if a Sink is configured, so is everything written since the
// previous poll
type Acquirer struct {
	session

	cfg      AcquirerConfig
	adc      zet.ADC
	cal      Calibration
	lastSeen int
	latest   []float64
}

// NewAcquirer creates a new Acquirer in the Idle state
func NewAcquirer(adc zet.ADC, cfg AcquirerConfig) *Acquirer {
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewInterval(DefaultPollInterval)
	}
	return &Acquirer{
		session: session{dev: adc, sched: cfg.Scheduler, logger: cfg.Logger, name: "ADC"},
		cfg:     cfg,
		adc:     adc,
	}
}

// Arm opens the ADC, reads the calibration of every enabled channel, and
// allocates the buffer.  Any failure releases the device and leaves the
// Acquirer Stopped
func (a *Acquirer) Arm() error {
	return a.arm(a.configure)
}

func (a *Acquirer) configure() error {
	n := len(a.channels)
	cal := Calibration{Resolution: make([]float64, n), Gain: make([]float64, n)}
	for i, ch := range a.channels {
		res, err := a.adc.Resolution(ch)
		if err != nil {
			return err
		}
		amp, err := a.adc.Amplification(ch)
		if err != nil {
			return err
		}
		if !(res > 0) || !(amp > 0) {
			return &ConfigError{Field: "calibration", Reason: "resolution and amplification must be positive"}
		}
		cal.Resolution[i], cal.Gain[i] = res, amp
	}
	a.mu.Lock()
	a.cal = cal
	a.mu.Unlock()
	a.lastSeen = 0
	a.log().Printf("ADC armed: %g Hz, channels %v, %d words per sample", a.freq, a.channels, a.words)
	return nil
}

// Run starts the ADC and decodes what it writes until ctx is done or a device
// or sink call fails.  The ADC is always stopped, its buffer released and the
// device closed before Run returns.  Cancellation is not an error
func (a *Acquirer) Run(ctx context.Context) error {
	if a.state() != Armed {
		return ErrNotArmed
	}
	err := a.start()
	if err == nil {
		err = a.loop(ctx, a.step)
	}
	return a.shutdown(err)
}

func (a *Acquirer) step() error {
	_, err := a.drain()
	return err
}

// drain performs one poll and reports whether new data was decoded
func (a *Acquirer) drain() (bool, error) {
	hw, fresh, err := a.poll()
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	newest, ok := AvailableToRead(hw, a.lastSeen, a.words, len(a.channels), a.buf.Size())
	if !ok {
		return false, nil
	}
	latest := a.decodeFrame(newest)

	var frames int
	if a.cfg.Sink != nil {
		blk := Block{Channels: a.channels, Latest: latest, Pointer: hw}
		blk.Samples = make([][]float64, len(a.channels))
		blk.Codes = make([][]int32, len(a.channels))
		for _, sp := range Pending(hw, a.lastSeen, a.frame, a.buf.Size()) {
			a.decodeSpan(sp, &blk)
		}
		frames = blk.Frames()
		if err := a.cfg.Sink.Write(blk); err != nil {
			return false, err
		}
	}

	a.lastSeen = hw
	a.update(func(st *Status) {
		st.Steps++
		st.Frames += uint64(frames)
		st.Cursor = hw
	})
	a.mu.Lock()
	a.latest = latest
	a.mu.Unlock()
	return true, nil
}

func (a *Acquirer) decodeFrame(off int) []float64 {
	out := make([]float64, len(a.channels))
	for i := range a.channels {
		raw := a.buf.Code(off+i*a.words, a.words)
		out[i] = Decode(raw, a.cal.Resolution[i], a.cal.Gain[i])
	}
	return out
}

func (a *Acquirer) decodeSpan(sp Span, blk *Block) {
	for f := sp.Start; f+a.frame <= sp.Start+sp.Len; f += a.frame {
		for i := range a.channels {
			raw := a.buf.Code(f+i*a.words, a.words)
			blk.Codes[i] = append(blk.Codes[i], raw)
			blk.Samples[i] = append(blk.Samples[i], Decode(raw, a.cal.Resolution[i], a.cal.Gain[i]))
		}
	}
}

// Latest returns the newest decoded frame, one value per enabled channel in
// volts, or false if nothing has been decoded yet
func (a *Acquirer) Latest() ([]float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return nil, false
	}
	return append([]float64(nil), a.latest...), true
}

// Close releases an Acquirer which was armed but never run
func (a *Acquirer) Close() error {
	if a.state() != Armed {
		return nil
	}
	return a.shutdown(nil)
}

// State returns the lifecycle stage
func (a *Acquirer) State() State {
	return a.state()
}

// Status returns a snapshot of the stream
func (a *Acquirer) Status() Status {
	return a.snapshot()
}

// Calibration returns the constants of the enabled channels, read by Arm
func (a *Acquirer) Calibration() Calibration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Calibration{
		Resolution: append([]float64(nil), a.cal.Resolution...),
		Gain:       append([]float64(nil), a.cal.Gain...),
	}
}
