package zet

import (
	"math"
	"sync"
	"time"

	"github.com/nasa-jpl/zetstream/util"
)

// MockTone is the frequency of the sine wave a Mock writes into its ADC buffer
const MockTone = 10.

type mockPath struct {
	freq       float64
	freqs      []float64
	words      int
	enabled    []bool
	interrupt  int
	size       int
	resolution float64
	gain       []float64

	buf       *Buffer
	started   bool
	startedAt time.Time
	base      int
	manual    bool
	pointer   int
	filled    int
	frames    int
}

// Mock is a simulated board.  While started, its hardware pointers advance
// with the clock at the sampling frequency, and the ADC buffer is filled with a
// MockTone sine of amplitude MockAmplitude volts on every enabled channel
type Mock struct {
	sync.Mutex

	// Now is the clock, time.Now if nil
	Now func() time.Time

	// MockAmplitude is the amplitude of the ADC sine wave, in volts
	MockAmplitude float64

	faults map[string]int32
	opens  int
	in     mockPath
	out    mockPath

	digLines                  int
	digIn, digOut, digEnabled uint32
}

// NewMock returns a Mock shaped like a ZET 230 with ADC channel 0 and DAC
// channel 0 enabled
func NewMock() *Mock {
	return &Mock{
		MockAmplitude: 1,
		faults:        map[string]int32{},
		in: mockPath{
			freq:       25000,
			freqs:      []float64{2500, 5000, 25000, 50000},
			words:      1,
			enabled:    []bool{true, false, false, false},
			interrupt:  256,
			size:       131072,
			resolution: 10. / 32768,
			gain:       []float64{1, 1, 1, 1},
		},
		out: mockPath{
			freq:       50000,
			freqs:      []float64{5000, 25000, 50000, 100000},
			words:      1,
			enabled:    []bool{true, false},
			interrupt:  512,
			size:       65536,
			resolution: 5. / 32768,
			gain:       []float64{1, 1},
		},
		digLines: 8,
	}
}

// Fail makes every later call to the named procedure, e.g. "ZGetPointerDAC",
// return code.  A zero code clears the fault
func (m *Mock) Fail(op string, code int32) {
	m.Lock()
	defer m.Unlock()
	if code == 0 {
		delete(m.faults, op)
		return
	}
	m.faults[op] = code
}

// SetPointer stops the pointer of one direction from following the clock and
// pins it at p
func (m *Mock) SetPointer(d Direction, p int) {
	m.Lock()
	defer m.Unlock()
	mp := m.path(d)
	mp.manual = true
	mp.pointer = p
}

// Opens returns the number of unmatched Open calls
func (m *Mock) Opens() int {
	m.Lock()
	defer m.Unlock()
	return m.opens
}

// ADC returns the analog input of the mock
func (m *Mock) ADC() *MockIn {
	return &MockIn{mockView{m: m, d: Input, p: adcProcs}}
}

// DAC returns the analog output of the mock
func (m *Mock) DAC() *MockOut {
	return &MockOut{mockView{m: m, d: Output, p: dacProcs}}
}

func (m *Mock) path(d Direction) *mockPath {
	if d == Output {
		return &m.out
	}
	return &m.in
}

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// fault must be called with the lock held
func (m *Mock) fault(p proc) error {
	if code, ok := m.faults[p.String()]; ok {
		return &DriverError{Op: p.String(), Code: code}
	}
	return nil
}

// Info returns a fixed identity
func (m *Mock) Info() (Info, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.fault(zGetNameDevice); err != nil {
		return Info{}, err
	}
	return Info{
		Type:    FormatDeviceType(ZET230),
		Name:    "MOCK230",
		Serial:  1,
		Version: Version{DSP: "mock", Driver: "mock", Library: "mock"},
	}, nil
}

// DigitalLines returns the number of lines on the digital port
func (m *Mock) DigitalLines() (int, error) {
	m.Lock()
	defer m.Unlock()
	return m.digLines, m.fault(zGetQuantityChannelDigPort)
}

// DigitalInput reads back the enabled output lines; other lines read low
func (m *Mock) DigitalInput() (uint32, error) {
	m.Lock()
	defer m.Unlock()
	return m.digIn | (m.digOut & m.digEnabled), m.fault(zGetDigInput)
}

// DigitalOutput returns the output register
func (m *Mock) DigitalOutput() (uint32, error) {
	m.Lock()
	defer m.Unlock()
	return m.digOut, m.fault(zGetDigOutput)
}

// SetDigitalOutput writes the output register
func (m *Mock) SetDigitalOutput(u uint32) error {
	m.Lock()
	defer m.Unlock()
	if err := m.fault(zSetDigOutput); err != nil {
		return err
	}
	m.digOut = u
	return nil
}

// DigitalOutputEnable returns the output enable mask
func (m *Mock) DigitalOutputEnable() (uint32, error) {
	m.Lock()
	defer m.Unlock()
	return m.digEnabled, m.fault(zGetDigOutEnable)
}

// SetDigitalOutputEnable writes the output enable mask
func (m *Mock) SetDigitalOutputEnable(u uint32) error {
	m.Lock()
	defer m.Unlock()
	if err := m.fault(zSetDigOutEnable); err != nil {
		return err
	}
	m.digEnabled = u
	return nil
}

type mockView struct {
	m *Mock
	d Direction
	p pathProcs
}

func (v mockView) Open() error {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(zOpen); err != nil {
		return err
	}
	v.m.opens++
	return nil
}

func (v mockView) Close() error {
	v.m.Lock()
	defer v.m.Unlock()
	if v.m.opens == 0 {
		return nil
	}
	v.m.opens--
	if v.m.opens == 0 {
		return v.m.fault(zClose)
	}
	return nil
}

func (v mockView) Frequency() (float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return v.m.path(v.d).freq, v.m.fault(v.p.getFreq)
}

// SetFrequency selects the supported frequency nearest f
func (v mockView) SetFrequency(f float64) (float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(v.p.setFreq); err != nil {
		return 0, err
	}
	mp := v.m.path(v.d)
	mp.freq = nearest(mp.freqs, f)
	return mp.freq, nil
}

func (v mockView) ListFrequencies() ([]float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(v.p.listFreq); err != nil {
		return nil, err
	}
	return append([]float64(nil), v.m.path(v.d).freqs...), nil
}

func (v mockView) Words() (int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return v.m.path(v.d).words, v.m.fault(v.p.words)
}

func (v mockView) Channels() (int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return v.m.path(v.d).enabledCount(), v.m.fault(v.p.number)
}

func (v mockView) ChannelCount() (int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return len(v.m.path(v.d).enabled), v.m.fault(v.p.quantity)
}

func (v mockView) ChannelEnabled(channel int) (bool, error) {
	v.m.Lock()
	defer v.m.Unlock()
	mp := v.m.path(v.d)
	if channel < 0 || channel >= len(mp.enabled) {
		return false, ErrChannelOutOfRange
	}
	return mp.enabled[channel], v.m.fault(v.p.getEnable)
}

func (v mockView) EnableChannel(channel int, enable bool) error {
	v.m.Lock()
	defer v.m.Unlock()
	mp := v.m.path(v.d)
	if channel < 0 || channel >= len(mp.enabled) {
		return ErrChannelOutOfRange
	}
	if err := v.m.fault(v.p.setEnable); err != nil {
		return err
	}
	mp.enabled[channel] = enable
	return nil
}

func (v mockView) EnabledChannels() ([]int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(v.p.getEnable); err != nil {
		return nil, err
	}
	var out []int
	for i, on := range v.m.path(v.d).enabled {
		if on {
			out = append(out, i)
		}
	}
	return out, nil
}

func (v mockView) InterruptSize() (int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return v.m.path(v.d).interrupt, v.m.fault(v.p.interrupt)
}

func (v mockView) Resolution(channel int) (float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	return v.m.path(v.d).resolution, v.m.fault(v.p.resolution)
}

func (v mockView) Buffer() (*Buffer, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if v.m.opens == 0 {
		return nil, ErrNotOpen
	}
	if err := v.m.fault(v.p.getBuffer); err != nil {
		return nil, err
	}
	mp := v.m.path(v.d)
	mp.buf = &Buffer{Words: make([]int16, mp.size), handle: 1}
	mp.filled, mp.frames = 0, 0
	return mp.buf, nil
}

func (v mockView) ReleaseBuffer(b *Buffer) error {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(v.p.remBuffer); err != nil {
		return err
	}
	mp := v.m.path(v.d)
	if b != nil && b == mp.buf {
		mp.buf = nil
	}
	return nil
}

func (v mockView) Start() error {
	v.m.Lock()
	defer v.m.Unlock()
	if v.m.opens == 0 {
		return ErrNotOpen
	}
	if err := v.m.fault(v.p.start); err != nil {
		return err
	}
	mp := v.m.path(v.d)
	mp.started = true
	mp.startedAt = v.m.now()
	return nil
}

func (v mockView) Stop() error {
	v.m.Lock()
	defer v.m.Unlock()
	mp := v.m.path(v.d)
	if mp.started && !mp.manual {
		mp.base = mp.clockPointer(v.m.now())
	}
	mp.started = false
	return v.m.fault(v.p.stop)
}

func (v mockView) Pointer() (int, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(v.p.pointer); err != nil {
		return 0, err
	}
	mp := v.m.path(v.d)
	var p int
	switch {
	case mp.manual:
		p = mp.pointer
	case mp.started:
		p = mp.clockPointer(v.m.now())
	default:
		p = mp.base
	}
	if v.d == Input && mp.buf != nil {
		mp.fill(p, v.m.MockAmplitude)
	}
	return p, nil
}

// MockIn is the ADC of a Mock
type MockIn struct {
	mockView
}

// Amplification returns the gain of a channel
func (v *MockIn) Amplification(channel int) (float64, error) {
	return v.gain(channel, zGetAmplifyADC)
}

// SetAmplification selects the supported gain nearest gain
func (v *MockIn) SetAmplification(channel int, gain float64) (float64, error) {
	return v.setGain(channel, nearest(mockGains, gain), zSetAmplifyADC)
}

// ListAmplifications returns the supported gains
func (v *MockIn) ListAmplifications() ([]float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	if err := v.m.fault(zGetListAmplifyADC); err != nil {
		return nil, err
	}
	return append([]float64(nil), mockGains...), nil
}

// MockOut is the DAC of a Mock
type MockOut struct {
	mockView
}

// Attenuation returns the attenuation of a channel
func (v *MockOut) Attenuation(channel int) (float64, error) {
	return v.gain(channel, zGetAttenDAC)
}

// SetAttenuation sets the attenuation of a channel
func (v *MockOut) SetAttenuation(channel int, atten float64) (float64, error) {
	return v.setGain(channel, atten, zSetAttenDAC)
}

var mockGains = []float64{1, 10, 100}

func (v mockView) gain(channel int, p proc) (float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	mp := v.m.path(v.d)
	if channel < 0 || channel >= len(mp.gain) {
		return 0, ErrChannelOutOfRange
	}
	return mp.gain[channel], v.m.fault(p)
}

func (v mockView) setGain(channel int, g float64, p proc) (float64, error) {
	v.m.Lock()
	defer v.m.Unlock()
	mp := v.m.path(v.d)
	if channel < 0 || channel >= len(mp.gain) {
		return 0, ErrChannelOutOfRange
	}
	if err := v.m.fault(p); err != nil {
		return 0, err
	}
	mp.gain[channel] = g
	return g, nil
}

func (mp *mockPath) enabledCount() int {
	n := 0
	for _, on := range mp.enabled {
		if on {
			n++
		}
	}
	return n
}

// clockPointer is the pointer after streaming whole frames since start
func (mp *mockPath) clockPointer(now time.Time) int {
	frame := mp.words * mp.enabledCount()
	if frame == 0 || mp.size == 0 {
		return mp.base
	}
	frames := int(now.Sub(mp.startedAt).Seconds() * mp.freq)
	p := (mp.base + frames*frame) % mp.size
	return p - p%frame
}

// fill writes the sine wave from the last filled offset up to p
func (mp *mockPath) fill(p int, amplitude float64) {
	frame := mp.words * mp.enabledCount()
	if frame == 0 || mp.size < frame {
		return
	}
	p %= mp.size
	p -= p % frame
	channels := make([]int, 0, len(mp.enabled))
	for i, on := range mp.enabled {
		if on {
			channels = append(channels, i)
		}
	}
	lo, hi := CodeRange(mp.words)
	for off := mp.filled; off != p; {
		if off+frame > mp.size {
			off = 0
			continue
		}
		t := float64(mp.frames) / mp.freq
		v := amplitude * math.Sin(2*math.Pi*MockTone*t)
		for i, ch := range channels {
			code := util.Clamp(v*mp.gain[ch]/mp.resolution, float64(lo), float64(hi))
			mp.buf.SetCode(off+i*mp.words, mp.words, int32(code))
		}
		mp.frames++
		off += frame
		if off >= mp.size {
			off = 0
		}
	}
	mp.filled = p
}

func nearest(list []float64, f float64) float64 {
	best := list[0]
	for _, v := range list[1:] {
		if math.Abs(v-f) < math.Abs(best-f) {
			best = v
		}
	}
	return best
}
