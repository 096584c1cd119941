package stream

// Decode converts a raw ADC code to volts at the input
func Decode(raw int32, resolution, amplification float64) float64 {
	return resolution * float64(raw) / amplification
}

// Calibration holds the conversion constants of the enabled channels, in the
// order they are interleaved in the buffer
type Calibration struct {
	// Resolution is volts per code
	Resolution []float64

	// Gain is the amplification (ADC) or attenuation (DAC)
	Gain []float64
}

// Block is the data decoded from the ADC in one poll
type Block struct {
	// Channels are the enabled channel indices
	Channels []int

	// Samples holds volts, indexed [channel][frame]
	Samples [][]float64

	// Codes holds the raw codes Samples was decoded from
	Codes [][]int32

	// Latest is the newest frame, in volts
	Latest []float64

	// Pointer is the hardware pointer the block ends at
	Pointer int
}

// Frames returns the number of frames in the block
func (b Block) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Sink consumes decoded ADC data.  A Sink error stops the stream
type Sink interface {
	Write(Block) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(Block) error

// Write implements Sink
func (f SinkFunc) Write(b Block) error {
	return f(b)
}
