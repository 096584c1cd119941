package stream

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nasa-jpl/zetstream/zet"
)

// Waveform is a stateful signal source.  Consecutive calls to Next continue
// where the previous one ended
type Waveform interface {
	// Next fills dst with the following len(dst) samples, in volts
	Next(dst []float64)

	// Clone returns an independent copy at the same position
	Clone() Waveform
}

// Sine is a sine wave with a continuous phase accumulator
type Sine struct {
	// Amplitude is the peak value, in volts
	Amplitude float64

	step  float64
	phase float64
}

// NewSine returns a sine of the given amplitude and tone frequency sampled at
// sampleRate
func NewSine(amplitude, tone, sampleRate float64) *Sine {
	return &Sine{Amplitude: amplitude, step: 2 * math.Pi * tone / sampleRate}
}

// Next implements Waveform
func (s *Sine) Next(dst []float64) {
	for i := range dst {
		dst[i] = s.Amplitude * math.Sin(s.phase)
		s.phase += s.step
	}
}

// Clone implements Waveform
func (s *Sine) Clone() Waveform {
	c := *s
	return &c
}

// Phase returns the phase of the next sample, in radians
func (s *Sine) Phase() float64 {
	return s.phase
}

// Table plays a sequence of samples in a loop
type Table struct {
	samples []float64
	idx     int
}

// NewTable returns a Table over samples, in volts
func NewTable(samples []float64) (*Table, error) {
	if len(samples) == 0 {
		return nil, errors.New("waveform table is empty")
	}
	return &Table{samples: samples}, nil
}

// Next implements Waveform
func (t *Table) Next(dst []float64) {
	for i := range dst {
		dst[i] = t.samples[t.idx]
		t.idx++
		if t.idx == len(t.samples) {
			t.idx = 0
		}
	}
}

// Clone implements Waveform.  The samples are shared
func (t *Table) Clone() Waveform {
	c := *t
	return &c
}

// Len returns the period of the table, in samples
func (t *Table) Len() int {
	return len(t.samples)
}

// Synth converts a Waveform to DAC codes
type Synth struct {
	wave   Waveform
	scale  float64
	lo, hi int32
	volts  []float64
	codes  []int32
}

// NewSynth returns a Synth for a channel with the given volts per code and
// attenuation, emitting codes of the given sample width in words.
// The scale 1/(resolution*attenuation) is computed once here
func NewSynth(w Waveform, resolution, attenuation float64, words int) (*Synth, error) {
	if !(resolution > 0) || !(attenuation > 0) || math.IsInf(1/(resolution*attenuation), 0) {
		return nil, &ConfigError{Field: "calibration", Reason: fmt.Sprintf("resolution %g and attenuation %g must be positive", resolution, attenuation)}
	}
	s := &Synth{wave: w, scale: 1 / (resolution * attenuation)}
	s.lo, s.hi = zet.CodeRange(words)
	return s, nil
}

// Next returns the following n codes.  The slice is reused by the next call
func (s *Synth) Next(n int) []int32 {
	if cap(s.volts) < n {
		s.volts = make([]float64, n)
		s.codes = make([]int32, n)
	}
	s.volts, s.codes = s.volts[:n], s.codes[:n]
	s.wave.Next(s.volts)
	for i, v := range s.volts {
		s.codes[i] = Quantize(v*s.scale, s.lo, s.hi)
	}
	return s.codes
}

// Quantize truncates v toward zero, saturating at lo and hi
func Quantize(v float64, lo, hi int32) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= float64(hi):
		return hi
	case v <= float64(lo):
		return lo
	}
	return int32(v)
}

// ReadCSV parses per-channel waveforms.  The first row holds channel numbers,
// one column per channel, and every following row one sample per channel
func ReadCSV(r io.Reader) (map[int][]float64, error) {
	reader := csv.NewReader(r)
	var (
		channels []int
		out      = map[int][]float64{}
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if channels == nil {
			channels = make([]int, len(record))
			for i := 0; i < len(record); i++ {
				c, err := strconv.Atoi(strings.TrimSpace(record[i]))
				if err != nil {
					return out, fmt.Errorf("channel header column %d: %w", i, err)
				}
				channels[i] = c
			}
			continue
		}
		for i := 0; i < len(record); i++ {
			f, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return out, err
			}
			out[channels[i]] = append(out[channels[i]], f)
		}
	}
	if channels == nil {
		return out, errors.New("waveform CSV is empty")
	}
	return out, nil
}
