// Package zet provides an interface to ZetLab data acquisition boards via the
// vendor's Zadc library.
//
// A Board is one open session with one signal processor (DSP) of one device.
// Its analog input and analog output are exposed as separate views, AnalogIn
// and AnalogOut, which share the session and reference-count it, so an ADC
// stream and a DAC stream may run against the same board at the same time.
//
// The streaming engine in package stream consumes the ADC and DAC interfaces
// defined here; Mock implements the same interfaces without hardware.
package zet

import (
	"errors"
	"fmt"
	"strings"
)

// MaxListLength is the maximum number of entries read from the driver when
// enumerating supported frequencies or amplifications
const MaxListLength = 64

// DeviceType enumerates the board families understood by the driver
type DeviceType int

const (
	// ADC16200 is an ADC 16/200
	ADC16200 DeviceType = iota
	// APC216 is an APC 216
	APC216
	// ADC16500 is an ADC 16/500
	ADC16500
	// ADC16500P is an ADC 16/500P
	ADC16500P
	// ADC816 is an ADC 816
	ADC816
	// ADC1002 is an ADC 1002
	ADC1002
	// ADC216USB is an ADC 216 USB
	ADC216USB
	// ADC24 is an ADC 24
	ADC24
	// ADC1432 is an ADC 1432
	ADC1432
	// ACPBUSB is an ACPB USB
	ACPBUSB
	// ZET210 is a ZET 210
	ZET210
	// PD14USB is a PD14 USB
	PD14USB
	// ZET110 is a ZET 110
	ZET110
	// ZET302 is a ZET 302
	ZET302
	// ZET017 is a ZET 017
	ZET017
	// ZET017U2 is a ZET 017-U2 or ZET 019-U2
	ZET017U2
	// ZET220 is a ZET 220
	ZET220
	// ZET230 is a ZET 230
	ZET230
	// ZET240 is a ZET 240
	ZET240
	// ZET048 is a ZET 048
	ZET048
)

var deviceNames = [...]string{
	"adc-16-200",
	"apc-216",
	"adc-16-500",
	"adc-16-500p",
	"adc-816",
	"adc-1002",
	"adc-216-usb",
	"adc-24",
	"adc-1432",
	"acpb-usb",
	"zet210",
	"pd14-usb",
	"zet110",
	"zet302",
	"zet017",
	"zet017-u2",
	"zet220",
	"zet230",
	"zet240",
	"zet048",
}

var (
	// ErrBadDeviceType is generated when a device type string is not understood
	ErrBadDeviceType = errors.New("device type not understood")
)

// ValidateDeviceType converts a device name, e.g. "zet230" or "ZET-230",
// to the enum value understood by the driver
func ValidateDeviceType(s string) (DeviceType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range deviceNames {
		if s == name || s == strings.Replace(name, "zet", "zet-", 1) {
			return DeviceType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadDeviceType, s)
}

// FormatDeviceType converts a device type to its canonical name
func FormatDeviceType(d DeviceType) string {
	if d < 0 || int(d) >= len(deviceNames) {
		return fmt.Sprintf("device(%d)", int(d))
	}
	return deviceNames[d]
}

// String implements fmt.Stringer
func (d DeviceType) String() string {
	return FormatDeviceType(d)
}

// Direction is the analog path of a board
type Direction int

const (
	// Input is the ADC path
	Input Direction = iota
	// Output is the DAC path
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "DAC"
	}
	return "ADC"
}

// Version holds the version strings reported by the driver
type Version struct {
	DSP     string `json:"dsp"`
	Driver  string `json:"driver"`
	Library string `json:"library"`
}

// Info describes the identity of an open board
type Info struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Serial     int     `json:"serial"`
	Connection int     `json:"connection"`
	Version    Version `json:"version"`
}

// Stream is the part of an analog path used while streaming through the
// driver's circular buffer.  Offsets and sizes are in 16-bit words.
type Stream interface {
	// Open connects to the driver.  Every successful Open must be paired with a Close
	Open() error

	// Close disconnects from the driver
	Close() error

	// Frequency returns the sampling frequency in Hz
	Frequency() (float64, error)

	// Words returns the number of 16-bit words per sample
	Words() (int, error)

	// Channels returns the number of enabled channels
	Channels() (int, error)

	// EnabledChannels returns the indices of the enabled channels in the
	// order they are interleaved in the buffer
	EnabledChannels() ([]int, error)

	// InterruptSize returns the size of the interrupt buffer, in words
	InterruptSize() (int, error)

	// Buffer allocates the circular buffer shared with the device
	Buffer() (*Buffer, error)

	// ReleaseBuffer frees a buffer returned by Buffer
	ReleaseBuffer(*Buffer) error

	// Pointer returns the hardware pointer, in words
	Pointer() (int, error)

	// Start begins the transfer
	Start() error

	// Stop ends the transfer
	Stop() error
}

// ADC is an analog input path
type ADC interface {
	Stream

	// Resolution returns volts per code of a channel
	Resolution(channel int) (float64, error)

	// Amplification returns the gain of a channel
	Amplification(channel int) (float64, error)
}

// DAC is an analog output path
type DAC interface {
	Stream

	// Resolution returns volts per code of a channel
	Resolution(channel int) (float64, error)

	// Attenuation returns the output attenuation of a channel
	Attenuation(channel int) (float64, error)
}

// Configurable is an analog path whose rate and channel set can be changed
type Configurable interface {
	// SetFrequency requests a sampling frequency and returns the one actually set
	SetFrequency(float64) (float64, error)

	// ListFrequencies returns the supported sampling frequencies
	ListFrequencies() ([]float64, error)

	// ChannelCount returns the number of physical channels
	ChannelCount() (int, error)

	// ChannelEnabled returns true if a channel is enabled
	ChannelEnabled(channel int) (bool, error)

	// EnableChannel enables or disables a channel
	EnableChannel(channel int, enable bool) error
}

// Amplifier is an ADC with selectable gain
type Amplifier interface {
	// SetAmplification requests a gain and returns the one actually set
	SetAmplification(channel int, gain float64) (float64, error)

	// ListAmplifications returns the supported gains
	ListAmplifications() ([]float64, error)
}

// Attenuator is a DAC with selectable attenuation
type Attenuator interface {
	// SetAttenuation requests an attenuation and returns the one actually set
	SetAttenuation(channel int, atten float64) (float64, error)
}

// Identifier reports the identity of a board
type Identifier interface {
	Info() (Info, error)
}

// Digital is the digital port of a board.  Bit i of each mask is line i
type Digital interface {
	DigitalLines() (int, error)
	DigitalInput() (uint32, error)
	DigitalOutput() (uint32, error)
	SetDigitalOutput(uint32) error
	DigitalOutputEnable() (uint32, error)
	SetDigitalOutputEnable(uint32) error
}

// listBounded calls get with increasing indices until it fails or max entries
// have been read.  Failure after the first entry ends the list; failure on the
// first entry is returned
func listBounded(max int, get func(int) (float64, error)) ([]float64, error) {
	var out []float64
	for i := 0; i < max; i++ {
		f, err := get(i)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		out = append(out, f)
	}
	return out, nil
}
