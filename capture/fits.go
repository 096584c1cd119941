// Package capture persists ADC data.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"

	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/util"
)

var (
	// ErrFull is returned by Write once MaxFrames have been captured.  It stops
	// the stream feeding the sink
	ErrFull = errors.New("capture is full")

	// ErrEmpty is generated when a capture is closed with no data
	ErrEmpty = errors.New("capture holds no frames")

	crcTable = crc.NewTable(crc.CRC32)
)

// FITS is a stream.Sink which accumulates decoded blocks and writes them as
// a single FITS image when closed.
//
// The image is NAXIS1 frames by NAXIS2 channels of volts (BITPIX -64).  The
// DATACRC card holds the CRC-32 of the raw codes, each as a little endian
// int32, channel by channel
type FITS struct {
	// Header is appended to the image header
	Header []fitsio.Card

	// MaxFrames bounds the capture, unbounded if zero
	MaxFrames int

	mu       sync.Mutex
	w        io.Writer
	channels []int
	samples  [][]float64
	codes    [][]int32
	frames   int
}

// NewFITS returns a capture which writes to w on Close
func NewFITS(w io.Writer, maxFrames int, header ...fitsio.Card) *FITS {
	return &FITS{w: w, MaxFrames: maxFrames, Header: header}
}

// Write implements stream.Sink
func (f *FITS) Write(b stream.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels == nil {
		f.channels = append([]int(nil), b.Channels...)
		f.samples = make([][]float64, len(b.Channels))
		f.codes = make([][]int32, len(b.Channels))
	}
	if len(b.Channels) != len(f.channels) {
		return fmt.Errorf("block has %d channels, capture has %d", len(b.Channels), len(f.channels))
	}
	n := b.Frames()
	full := false
	if f.MaxFrames > 0 && f.frames+n >= f.MaxFrames {
		n = f.MaxFrames - f.frames
		full = true
	}
	for i := range f.channels {
		f.samples[i] = append(f.samples[i], b.Samples[i][:n]...)
		f.codes[i] = append(f.codes[i], b.Codes[i][:n]...)
	}
	f.frames += n
	if full {
		return ErrFull
	}
	return nil
}

// Frames returns the number of frames captured
func (f *FITS) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Checksum returns the CRC-32 of the raw codes captured so far
func (f *FITS) Checksum() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checksum()
}

func (f *FITS) checksum() uint32 {
	sum := crcTable.InitCrc()
	word := make([]byte, 4)
	for _, ch := range f.codes {
		for _, c := range ch {
			binary.LittleEndian.PutUint32(word, uint32(c))
			sum = crcTable.UpdateCrc(sum, word)
		}
	}
	return crcTable.CRC32(sum)
}

// Close writes the FITS file.  It does not close the underlying writer
func (f *FITS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames == 0 {
		return ErrEmpty
	}
	fits, err := fitsio.Create(f.w)
	if err != nil {
		return err
	}
	defer fits.Close()

	im := fitsio.NewImage(-64, []int{f.frames, len(f.channels)})
	defer im.Close()
	cards := append([]fitsio.Card{}, f.Header...)
	cards = append(cards,
		fitsio.Card{Name: "CHANNELS", Value: util.IntSliceToCSV(f.channels), Comment: "enabled channels, one per row"},
		fitsio.Card{Name: "BUNIT", Value: "V"},
		fitsio.Card{Name: "DATACRC", Value: fmt.Sprintf("%08X", f.checksum()), Comment: "CRC-32 of raw int32 codes"},
	)
	if err = im.Header().Append(cards...); err != nil {
		return err
	}

	data := make([]float64, 0, f.frames*len(f.channels))
	for _, ch := range f.samples {
		data = append(data, ch...)
	}
	if err = im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}

// Metadata returns the cards describing an ADC stream
func Metadata(st stream.Status, cal stream.Calibration) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "FREQ", Value: st.Frequency, Comment: "sampling frequency, Hz"},
		{Name: "BUFSIZE", Value: st.Size, Comment: "circular buffer, words"},
	}
	for i, ch := range st.Channels {
		if i >= len(cal.Resolution) {
			break
		}
		cards = append(cards,
			fitsio.Card{Name: fmt.Sprintf("RES%d", ch), Value: cal.Resolution[i], Comment: "volts per code"},
			fitsio.Card{Name: fmt.Sprintf("GAIN%d", ch), Value: cal.Gain[i], Comment: "amplification"})
	}
	return cards
}
