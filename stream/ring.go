package stream

// Decision is the outcome of comparing the hardware pointer to the cursor
type Decision int

const (
	// Skip means the hardware has not consumed enough to make room for a packet
	Skip Decision = iota

	// Proceed means a packet may be written at the cursor
	Proceed
)

func (d Decision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "skip"
}

// Span is a contiguous range of the circular buffer, in words
type Span struct {
	Start int
	Len   int
}

// Advance moves a cursor n words forward around a buffer of size words
func Advance(cursor, n, size int) int {
	return (cursor + n) % size
}

// Consumed is the number of words the hardware pointer advanced from prev to
// hw, at most one lap of a buffer of size words
func Consumed(prev, hw, size int) int {
	return ((hw-prev)%size + size) % size
}

// AvailableToWrite decides whether a packet may be written, given the words
// queued ahead of the hardware pointer.  The write is deferred while more than
// one packet is still queued.
//
// The queue is counted rather than derived from the cursor and pointer
// positions, which coincide both when the buffer is empty and when it is full
func AvailableToWrite(queued, packet int) Decision {
	if queued > packet {
		return Skip
	}
	return Proceed
}

// SplitWrite returns the spans covering n words starting at cursor, split at
// the end of the buffer so that no span runs past it
func SplitWrite(cursor, n, size int) []Span {
	if cursor+n <= size {
		return []Span{{Start: cursor, Len: n}}
	}
	first := size - cursor
	return []Span{{Start: cursor, Len: first}, {Start: 0, Len: n - first}}
}

// AvailableToRead returns the offset of the newest complete frame the hardware
// has written, or false if the pointer has not moved since lastSeen
func AvailableToRead(hw, lastSeen, wordsPerSample, channels, size int) (int, bool) {
	if hw == lastSeen {
		return 0, false
	}
	off := hw - wordsPerSample*channels
	if off < 0 {
		off += size
	}
	return off, true
}

// Pending returns the spans written by the hardware between lastSeen and hw,
// each a whole number of frames
func Pending(hw, lastSeen, frame, size int) []Span {
	switch {
	case hw == lastSeen:
		return nil
	case hw > lastSeen:
		n := hw - lastSeen
		return []Span{{Start: lastSeen, Len: n - n%frame}}
	}
	tail := size - lastSeen
	tail -= tail % frame
	var out []Span
	if tail > 0 {
		out = append(out, Span{Start: lastSeen, Len: tail})
	}
	if head := hw - hw%frame; head > 0 {
		out = append(out, Span{Start: 0, Len: head})
	}
	return out
}

// Ring is the software cursor of a DAC stream
type Ring struct {
	// Size is the length of the buffer, in words
	Size int

	// Packet is the number of words written per step
	Packet int

	// Cursor is the offset of the next word to write
	Cursor int

	// Queued is the number of words written but not yet consumed
	Queued int

	// Pointer is the hardware pointer Queued was last measured at
	Pointer int
}

// Prime records a lead-in of n words written from offset 0, before the
// hardware has started at offset 0
func (r *Ring) Prime(n int) {
	r.Cursor = Advance(0, n, r.Size)
	r.Queued = n
	r.Pointer = 0
}

// Observe charges the words consumed since the last pointer read against the
// queue.  It returns false if the hardware overran the cursor, in which case
// the queue is empty
func (r *Ring) Observe(hw int) bool {
	r.Queued -= Consumed(r.Pointer, hw, r.Size)
	r.Pointer = hw
	if r.Queued < 0 {
		r.Queued = 0
		return false
	}
	return true
}

// Decide evaluates AvailableToWrite against the current queue
func (r *Ring) Decide() Decision {
	return AvailableToWrite(r.Queued, r.Packet)
}

// Spans returns the ranges the next packet occupies
func (r *Ring) Spans() []Span {
	return SplitWrite(r.Cursor, r.Packet, r.Size)
}

// Commit advances the cursor past one packet
func (r *Ring) Commit() {
	r.Cursor = Advance(r.Cursor, r.Packet, r.Size)
	r.Queued += r.Packet
}
