package zet

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Board is a session with one DSP of one device
type Board struct {
	sync.Mutex

	// Type is the device family
	Type DeviceType

	// DSP is the index of the signal processor on the device
	DSP int

	// OpenTimeout is how long Open keeps retrying ZOpen.  Zero disables retries
	OpenTimeout time.Duration

	lib   library
	opens int

	// io serializes entry into the vendor library, which is not reentrant
	io sync.Mutex
}

// NewBoard creates a new Board.  The vendor library is loaded on the first call,
// and this returns ErrUnsupportedPlatform on operating systems other than windows
func NewBoard(typ DeviceType, dsp int) (*Board, error) {
	lib, err := sharedLibrary()
	if err != nil {
		return nil, err
	}
	return newBoard(lib, typ, dsp), nil
}

func newBoard(lib library, typ DeviceType, dsp int) *Board {
	return &Board{Type: typ, DSP: dsp, lib: lib}
}

// call invokes a procedure with the device and DSP prepended to args
func (b *Board) call(p proc, args ...interface{}) error {
	full := make([]interface{}, 0, len(args)+2)
	full = append(full, int32(b.Type), int32(b.DSP))
	full = append(full, args...)
	b.io.Lock()
	code, err := b.lib.call(p, full...)
	b.io.Unlock()
	if err != nil {
		return err
	}
	return enrich(code, p)
}

// Open connects to the driver.  Open and Close are reference counted, the
// driver is only contacted on the first Open and the last Close
func (b *Board) Open() error {
	b.Lock()
	defer b.Unlock()
	if b.opens > 0 {
		b.opens++
		return nil
	}
	op := func() error {
		return b.call(zOpen)
	}
	var err error
	if b.OpenTimeout > 0 {
		err = backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      b.OpenTimeout,
			Clock:               backoff.SystemClock})
	} else {
		err = op()
	}
	if err != nil {
		return err
	}
	b.opens = 1
	return nil
}

// Close disconnects from the driver once every Open has been matched.
// Closing a board which is not open is a no-op
func (b *Board) Close() error {
	b.Lock()
	defer b.Unlock()
	if b.opens == 0 {
		return nil
	}
	b.opens--
	if b.opens > 0 {
		return nil
	}
	return b.call(zClose)
}

// IsOpen returns true if the board has an open session
func (b *Board) IsOpen() bool {
	b.Lock()
	defer b.Unlock()
	return b.opens > 0
}

// ADC returns the analog input of the board
func (b *Board) ADC() *AnalogIn {
	return &AnalogIn{path{b: b, p: adcProcs}}
}

// DAC returns the analog output of the board
func (b *Board) DAC() *AnalogOut {
	return &AnalogOut{path{b: b, p: dacProcs}}
}

func cstring(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// Info returns the identity of the board
func (b *Board) Info() (Info, error) {
	info := Info{Type: FormatDeviceType(b.Type)}
	name := make([]byte, 16)
	err := b.call(zGetNameDevice, name, int32(len(name)))
	if err != nil {
		return info, err
	}
	info.Name = cstring(name)

	var serial, conn int32
	err = b.call(zGetSerialNumberDSP, &serial)
	if err != nil {
		return info, err
	}
	info.Serial = int(serial)
	err = b.call(zGetTypeConnection, &conn)
	if err != nil {
		return info, err
	}
	info.Connection = int(conn)

	dsp, drv, lib := make([]byte, 100), make([]byte, 100), make([]byte, 100)
	err = b.call(zGetVersion, dsp, drv, lib)
	if err != nil {
		return info, err
	}
	info.Version = Version{DSP: cstring(dsp), Driver: cstring(drv), Library: cstring(lib)}
	return info, nil
}

// DigitalLines returns the number of lines on the digital port
func (b *Board) DigitalLines() (int, error) {
	var n int32
	err := b.call(zGetQuantityChannelDigPort, &n)
	return int(n), err
}

// DigitalInput returns the state of the digital input lines
func (b *Board) DigitalInput() (uint32, error) {
	var u uint32
	err := b.call(zGetDigInput, &u)
	return u, err
}

// DigitalOutput returns the state of the digital output lines
func (b *Board) DigitalOutput() (uint32, error) {
	var u uint32
	err := b.call(zGetDigOutput, &u)
	return u, err
}

// SetDigitalOutput sets the state of the digital output lines
func (b *Board) SetDigitalOutput(mask uint32) error {
	return b.call(zSetDigOutput, mask)
}

// DigitalOutputEnable returns the mask of lines configured as outputs
func (b *Board) DigitalOutputEnable() (uint32, error) {
	var u uint32
	err := b.call(zGetDigOutEnable, &u)
	return u, err
}

// SetDigitalOutputEnable configures which lines are outputs
func (b *Board) SetDigitalOutputEnable(mask uint32) error {
	return b.call(zSetDigOutEnable, mask)
}

// path implements the procedures common to the ADC and DAC
type path struct {
	b *Board
	p pathProcs
}

func (a path) Open() error  { return a.b.Open() }
func (a path) Close() error { return a.b.Close() }

func (a path) Frequency() (float64, error) {
	var f float64
	err := a.b.call(a.p.getFreq, &f)
	return f, err
}

func (a path) SetFrequency(f float64) (float64, error) {
	var actual float64
	err := a.b.call(a.p.setFreq, f, &actual)
	return actual, err
}

func (a path) ListFrequencies() ([]float64, error) {
	return listBounded(MaxListLength, func(i int) (float64, error) {
		var f float64
		err := a.b.call(a.p.listFreq, int32(i), &f)
		return f, err
	})
}

func (a path) getInt(p proc) (int, error) {
	var i int32
	err := a.b.call(p, &i)
	return int(i), err
}

func (a path) Words() (int, error)         { return a.getInt(a.p.words) }
func (a path) Channels() (int, error)      { return a.getInt(a.p.number) }
func (a path) ChannelCount() (int, error)  { return a.getInt(a.p.quantity) }
func (a path) InterruptSize() (int, error) { return a.getInt(a.p.interrupt) }
func (a path) Pointer() (int, error)       { return a.getInt(a.p.pointer) }

func (a path) ChannelEnabled(channel int) (bool, error) {
	var i int32
	err := a.b.call(a.p.getEnable, int32(channel), &i)
	return i != 0, err
}

func (a path) EnableChannel(channel int, enable bool) error {
	var i int32
	if enable {
		i = 1
	}
	return a.b.call(a.p.setEnable, int32(channel), i)
}

func (a path) EnabledChannels() ([]int, error) {
	n, err := a.ChannelCount()
	if err != nil {
		return nil, err
	}
	var out []int
	for ch := 0; ch < n; ch++ {
		on, err := a.ChannelEnabled(ch)
		if err != nil {
			return out, err
		}
		if on {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (a path) Resolution(channel int) (float64, error) {
	var f float64
	err := a.b.call(a.p.resolution, int32(channel), &f)
	return f, err
}

// Buffer requests the circular buffer from the driver.  The memory belongs to
// the driver and is valid until ReleaseBuffer
func (a path) Buffer() (*Buffer, error) {
	var (
		ptr  uintptr
		size int32
	)
	err := a.b.call(a.p.getBuffer, &ptr, &size)
	if err != nil {
		return nil, err
	}
	if ptr == 0 || size <= 0 {
		return nil, fmt.Errorf("%s returned an empty buffer (size %d)", a.p.getBuffer, size)
	}
	return &Buffer{Words: wordsAt(ptr, int(size)), handle: ptr}, nil
}

func (a path) ReleaseBuffer(buf *Buffer) error {
	if buf == nil || buf.handle == 0 {
		return nil
	}
	ptr := buf.handle
	err := a.b.call(a.p.remBuffer, &ptr)
	if err != nil {
		return err
	}
	buf.handle = 0
	buf.Words = nil
	return nil
}

func (a path) Start() error { return a.b.call(a.p.start) }
func (a path) Stop() error  { return a.b.call(a.p.stop) }

// AnalogIn is the ADC of a Board
type AnalogIn struct {
	path
}

// Amplification returns the gain of an input channel
func (a *AnalogIn) Amplification(channel int) (float64, error) {
	var f float64
	err := a.b.call(zGetAmplifyADC, int32(channel), &f)
	return f, err
}

// SetAmplification requests a gain and returns the gain actually set
func (a *AnalogIn) SetAmplification(channel int, gain float64) (float64, error) {
	var actual float64
	err := a.b.call(zSetAmplifyADC, int32(channel), gain, &actual)
	if err == nil && actual != gain {
		log.Printf("ZET %s ADC channel %d: requested gain %g, set %g", a.b.Type, channel, gain, actual)
	}
	return actual, err
}

// ListAmplifications returns the supported gains
func (a *AnalogIn) ListAmplifications() ([]float64, error) {
	return listBounded(MaxListLength, func(i int) (float64, error) {
		var f float64
		err := a.b.call(zGetListAmplifyADC, int32(i), &f)
		return f, err
	})
}

// AnalogOut is the DAC of a Board
type AnalogOut struct {
	path
}

// Attenuation returns the attenuation of an output channel
func (a *AnalogOut) Attenuation(channel int) (float64, error) {
	var f float64
	err := a.b.call(zGetAttenDAC, int32(channel), &f)
	return f, err
}

// SetAttenuation requests an attenuation and returns the one actually set
func (a *AnalogOut) SetAttenuation(channel int, atten float64) (float64, error) {
	var actual float64
	err := a.b.call(zSetAttenDAC, int32(channel), atten, &actual)
	return actual, err
}
