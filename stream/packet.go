// Package stream keeps a circular buffer in step with the hardware pointer of
// a ZetLab ADC or DAC.
//
// The hardware advances its pointer autonomously and the pointer is only
// observed by polling, so every decision here is made from two pointer values:
// the hardware's and our own.  A Generator refills the DAC buffer one packet
// ahead of the hardware, an Acquirer decodes what the ADC has written since
// the last poll.
package stream

import "math"

// PacketSize computes the number of words moved per refill or drain step.
//
// The raw size is the number of words produced in latencyMs at frequency, which
// is clamped to at least two interrupt buffers and at most half of the
// circular buffer, in that order
func PacketSize(frequency, latencyMs float64, interruptSize, bufferSize, wordsPerSample int) int {
	raw := int(math.Floor(frequency * latencyMs / 1000 * float64(wordsPerSample)))
	if lo := 2 * interruptSize; raw < lo {
		raw = lo
	}
	if hi := bufferSize / 2; raw > hi {
		raw = hi
	}
	return raw
}

// AlignPacket rounds a packet down to a whole number of frames, or up if that
// would drop it below lo
func AlignPacket(packet, frame, lo int) int {
	if frame <= 1 {
		return packet
	}
	p := packet - packet%frame
	if p < lo {
		p = (lo + frame - 1) / frame * frame
	}
	if p == 0 {
		p = frame
	}
	return p
}
