package stream

import (
	"context"
	"fmt"
	"log"

	"github.com/nasa-jpl/zetstream/zet"
)

// DefaultLatency is the DAC lead time used when none is configured, in ms
const DefaultLatency = 250.

// GeneratorConfig configures a DAC stream
type GeneratorConfig struct {
	// LatencyMs is the time one packet plays for, in milliseconds
	LatencyMs float64

	// Waveforms holds one waveform per enabled channel, in channel order.
	// A single waveform is copied to every enabled channel
	Waveforms []Waveform

	// Scheduler paces polling, NewInterval(DefaultPollInterval) if nil
	Scheduler Scheduler

	// Logger receives state transitions, log.Default() if nil
	Logger *log.Logger
}

// Generator streams waveforms to a DAC.
//
// After Arm, Run writes a two packet lead-in, starts the DAC, and refills one
// packet at a time whenever the hardware pointer has drained the lead to a
// single packet
type Generator struct {
	session

	cfg    GeneratorConfig
	dac    zet.DAC
	ring   Ring
	synths []*Synth
}

// NewGenerator creates a new Generator in the Idle state
func NewGenerator(dac zet.DAC, cfg GeneratorConfig) *Generator {
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewInterval(DefaultPollInterval)
	}
	return &Generator{
		session: session{dev: dac, sched: cfg.Scheduler, logger: cfg.Logger, name: "DAC"},
		cfg:     cfg,
		dac:     dac,
	}
}

// Arm opens the DAC, reads its calibration, sizes the packet, and allocates the
// buffer.  Any failure releases the device and leaves the Generator Stopped
func (g *Generator) Arm() error {
	return g.arm(g.configure)
}

func (g *Generator) configure() error {
	latency := g.cfg.LatencyMs
	if latency == 0 {
		latency = DefaultLatency
	}
	if !(latency > 0) {
		return &ConfigError{Field: "latency", Reason: fmt.Sprintf("%g ms must be positive", latency)}
	}
	n := len(g.cfg.Waveforms)
	if n != 1 && n != len(g.channels) {
		return &ConfigError{Field: "waveforms", Reason: fmt.Sprintf("%d given for %d enabled channels", n, len(g.channels))}
	}
	irq, err := g.dac.InterruptSize()
	if err != nil {
		return err
	}
	g.synths = make([]*Synth, len(g.channels))
	for i, ch := range g.channels {
		res, err := g.dac.Resolution(ch)
		if err != nil {
			return err
		}
		atten, err := g.dac.Attenuation(ch)
		if err != nil {
			return err
		}
		w := g.cfg.Waveforms[0]
		if n > 1 {
			w = g.cfg.Waveforms[i]
		} else if i > 0 {
			w = w.Clone()
		}
		g.synths[i], err = NewSynth(w, res, atten, g.words)
		if err != nil {
			return err
		}
	}

	size := g.buf.Size()
	p := PacketSize(g.freq, latency, irq, size, g.frame)
	p = AlignPacket(p, g.frame, 2*irq)
	if 2*p > size {
		return &ConfigError{Field: "packet", Reason: fmt.Sprintf("lead-in of %d words exceeds buffer of %d words", 2*p, size)}
	}
	g.ring = Ring{Size: size, Packet: p}
	g.update(func(st *Status) { st.Packet = p })
	g.log().Printf("DAC armed: %g Hz, packet %d words (%g ms), interrupt buffer %d words", g.freq, p, latency, irq)
	return nil
}

// Run writes the lead-in, starts the DAC and refills it until ctx is done or a
// device call fails.  The DAC is always stopped, its buffer released and the
// device closed before Run returns.  Cancellation is not an error
func (g *Generator) Run(ctx context.Context) error {
	if g.state() != Armed {
		return ErrNotArmed
	}
	return g.shutdown(g.run(ctx))
}

func (g *Generator) run(ctx context.Context) error {
	// lead-in
	for _, sp := range SplitWrite(0, 2*g.ring.Packet, g.ring.Size) {
		g.fill(sp)
	}
	g.ring.Prime(2 * g.ring.Packet)
	g.update(func(st *Status) {
		st.Cursor = g.ring.Cursor
		st.Queued = g.ring.Queued
	})
	if err := g.start(); err != nil {
		return err
	}
	return g.loop(ctx, g.step)
}

func (g *Generator) step() error {
	_, err := g.refill()
	return err
}

// refill performs one poll of the refill loop and reports whether a packet
// was written
func (g *Generator) refill() (bool, error) {
	hw, fresh, err := g.poll()
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	if !g.ring.Observe(hw) {
		g.update(func(st *Status) { st.Underruns++ })
		g.log().Printf("DAC underrun: pointer %d passed cursor %d", hw, g.ring.Cursor)
	}
	if g.ring.Decide() == Skip {
		g.update(func(st *Status) {
			st.Skips++
			st.Queued = g.ring.Queued
		})
		return false, nil
	}
	for _, sp := range g.ring.Spans() {
		g.fill(sp)
	}
	g.ring.Commit()
	g.update(func(st *Status) {
		st.Steps++
		st.Cursor = g.ring.Cursor
		st.Queued = g.ring.Queued
	})
	return true, nil
}

// fill synthesizes one span.  Every channel's synth advances by the frames in
// the span so the channels stay in phase
func (g *Generator) fill(sp Span) {
	frames := sp.Len / g.frame
	for i, s := range g.synths {
		codes := s.Next(frames)
		off := sp.Start + i*g.words
		for _, c := range codes {
			g.buf.SetCode(off, g.words, c)
			off += g.frame
		}
	}
	g.update(func(st *Status) { st.Frames += uint64(frames) })
}

// Close releases a Generator which was armed but never run
func (g *Generator) Close() error {
	if g.state() != Armed {
		return nil
	}
	return g.shutdown(nil)
}

// State returns the lifecycle stage
func (g *Generator) State() State {
	return g.state()
}

// Status returns a snapshot of the stream
func (g *Generator) Status() Status {
	return g.snapshot()
}
