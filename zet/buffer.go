package zet

import "math"

// Buffer is a circular buffer shared with the device.
//
// A sample is one word (a signed 16-bit code) or two words (a signed 32-bit
// code, low word first).  Offsets are in words and must be a multiple of the
// sample width
type Buffer struct {
	// Words is the buffer memory
	Words []int16

	handle uintptr
}

// Size returns the length of the buffer, in words
func (b *Buffer) Size() int {
	return len(b.Words)
}

// Code returns the sample of the given width at offset
func (b *Buffer) Code(offset, width int) int32 {
	if width == 2 {
		lo := uint32(uint16(b.Words[offset]))
		hi := uint32(uint16(b.Words[offset+1]))
		return int32(hi<<16 | lo)
	}
	return int32(b.Words[offset])
}

// SetCode stores a sample of the given width at offset
func (b *Buffer) SetCode(offset, width int, code int32) {
	if width == 2 {
		u := uint32(code)
		b.Words[offset] = int16(uint16(u))
		b.Words[offset+1] = int16(uint16(u >> 16))
		return
	}
	b.Words[offset] = int16(code)
}

// CodeRange returns the smallest and largest code of a sample width
func CodeRange(width int) (int32, int32) {
	if width == 2 {
		return math.MinInt32, math.MaxInt32
	}
	return math.MinInt16, math.MaxInt16
}
