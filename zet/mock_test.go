package zet

import (
	"errors"
	"math"
	"testing"
	"time"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func TestMockPointerFollowsClock(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	m := NewMock()
	m.Now = clk.now
	dac := m.DAC()
	if err := dac.Open(); err != nil {
		t.Fatal(err)
	}
	if err := dac.Start(); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(100 * time.Millisecond)
	p, err := dac.Pointer()
	if err != nil {
		t.Fatal(err)
	}
	// 50 kHz, one channel, one word
	if p != 5000 {
		t.Errorf("expected pointer 5000 got %d", p)
	}
	if err := dac.Stop(); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(time.Second)
	p2, _ := dac.Pointer()
	if p2 != p {
		t.Errorf("expected stopped pointer to hold at %d, got %d", p, p2)
	}
}

func TestMockADCFillsSine(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	m := NewMock()
	m.Now = clk.now
	adc := m.ADC()
	if err := adc.Open(); err != nil {
		t.Fatal(err)
	}
	buf, err := adc.Buffer()
	if err != nil {
		t.Fatal(err)
	}
	if err := adc.Start(); err != nil {
		t.Fatal(err)
	}
	// a quarter period of the tone
	clk.t = clk.t.Add(time.Second / (4 * MockTone))
	p, err := adc.Pointer()
	if err != nil {
		t.Fatal(err)
	}
	res, _ := adc.Resolution(0)
	last := float64(buf.Code(p-1, 1)) * res
	if math.Abs(last-m.MockAmplitude) > 1e-3 {
		t.Errorf("expected newest sample near the crest %f, got %f", m.MockAmplitude, last)
	}
}

func TestMockRequiresOpen(t *testing.T) {
	m := NewMock()
	if err := m.DAC().Start(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if _, err := m.ADC().Buffer(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestMockFault(t *testing.T) {
	m := NewMock()
	m.Fail("ZGetPointerADC", 0x21)
	_, err := m.ADC().Pointer()
	var de *DriverError
	if !errors.As(err, &de) || de.Code != 0x21 {
		t.Errorf("expected injected fault, got %v", err)
	}
	m.Fail("ZGetPointerADC", 0)
	if _, err := m.ADC().Pointer(); err != nil {
		t.Errorf("expected cleared fault, got %v", err)
	}
}

func TestMockSetFrequencySnaps(t *testing.T) {
	m := NewMock()
	f, err := m.ADC().SetFrequency(24000)
	if err != nil {
		t.Fatal(err)
	}
	if f != 25000 {
		t.Errorf("expected 25000 got %f", f)
	}
}

func TestMockImplementsCapabilities(t *testing.T) {
	var (
		_ ADC          = NewMock().ADC()
		_ DAC          = NewMock().DAC()
		_ Configurable = NewMock().ADC()
		_ Amplifier    = NewMock().ADC()
		_ Attenuator   = NewMock().DAC()
		_ Identifier   = NewMock()
		_ Digital      = NewMock()
		_ ADC          = (*Board)(nil).ADC()
		_ DAC          = (*Board)(nil).DAC()
		_ Configurable = (*Board)(nil).DAC()
		_ Identifier   = (*Board)(nil)
		_ Digital      = (*Board)(nil)
	)
}

func TestMockSetPointerPins(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	m := NewMock()
	m.Now = clk.now
	dac := m.DAC()
	if err := dac.Open(); err != nil {
		t.Fatal(err)
	}
	defer dac.Close()
	m.SetPointer(Output, 1234)
	if err := dac.Start(); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(time.Second)
	if p, _ := dac.Pointer(); p != 1234 {
		t.Errorf("expected pinned pointer 1234, got %d", p)
	}
}

func TestMockADCSaturates(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	m := NewMock()
	m.Now = clk.now
	m.MockAmplitude = 100
	adc := m.ADC()
	if err := adc.Open(); err != nil {
		t.Fatal(err)
	}
	defer adc.Close()
	buf, _ := adc.Buffer()
	adc.Start()
	clk.t = clk.t.Add(time.Second / (4 * MockTone))
	p, _ := adc.Pointer()
	if c := buf.Code(p-1, 1); c != math.MaxInt16 {
		t.Errorf("expected the crest to saturate at %d, got %d", math.MaxInt16, c)
	}
}
