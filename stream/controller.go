package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/zetstream/zet"
)

// DefaultPollInterval is how often the hardware pointer is read
const DefaultPollInterval = 20 * time.Millisecond

var (
	// ErrNotIdle is generated when Arm is called more than once
	ErrNotIdle = errors.New("stream has already been armed")

	// ErrNotArmed is generated when Run is called before a successful Arm
	ErrNotArmed = errors.New("stream is not armed")
)

// ConfigError is an invalid stream parameter, detected before streaming
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid stream configuration: %s %s", e.Field, e.Reason)
}

// State is the lifecycle stage of a stream
type State int

const (
	// Idle streams have not touched the device
	Idle State = iota
	// Armed streams hold an open device and a buffer
	Armed
	// Streaming streams are running the poll loop
	Streaming
	// Stopped streams have released the device
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state as its name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state from its name
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Stopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stream state %q", b)
}

// Status is a snapshot of a stream
type Status struct {
	State State `json:"state"`

	// Frequency is the sampling frequency, in Hz
	Frequency float64 `json:"frequency"`

	// Channels are the enabled channel indices
	Channels []int `json:"channels"`

	// Size is the length of the circular buffer, in words
	Size int `json:"size"`

	// Packet is the words moved per step (DAC)
	Packet int `json:"packet,omitempty"`

	// Pointer is the last hardware pointer read
	Pointer int `json:"pointer"`

	// Cursor is the software cursor (DAC) or last seen pointer (ADC)
	Cursor int `json:"cursor"`

	// Queued is the words written but not yet played (DAC)
	Queued int `json:"queued,omitempty"`

	// Polls counts pointer reads
	Polls uint64 `json:"polls"`

	// Unchanged counts polls which found the pointer where it was
	Unchanged uint64 `json:"unchanged"`

	// Skips counts polls deferred because the hardware lagged (DAC)
	Skips uint64 `json:"skips"`

	// Underruns counts polls which found the hardware past everything written (DAC)
	Underruns uint64 `json:"underruns,omitempty"`

	// Steps counts packets written (DAC) or blocks decoded (ADC)
	Steps uint64 `json:"steps"`

	// Frames counts frames written or decoded
	Frames uint64 `json:"frames"`

	// Err is the error that stopped the stream
	Err string `json:"error,omitempty"`
}

// Scheduler paces the poll loop
type Scheduler interface {
	// Wait blocks until the next poll is due or ctx is done
	Wait(ctx context.Context) error
}

// Interval is a Scheduler polling at a fixed rate
type Interval struct {
	lim *rate.Limiter
}

// NewInterval returns a Scheduler which allows one poll every d.
// The first Wait returns immediately
func NewInterval(d time.Duration) *Interval {
	if d <= 0 {
		d = DefaultPollInterval
	}
	return &Interval{lim: rate.NewLimiter(rate.Every(d), 1)}
}

// Wait implements Scheduler
func (i *Interval) Wait(ctx context.Context) error {
	return i.lim.Wait(ctx)
}

// session is the device lifecycle shared by the ADC and DAC controllers
type session struct {
	dev    zet.Stream
	sched  Scheduler
	logger *log.Logger
	name   string

	mu     sync.Mutex
	status Status

	buf      *zet.Buffer
	opened   bool
	started  bool
	polled   bool
	words    int
	frame    int
	channels []int
	freq     float64
}

func (s *session) log() *log.Logger {
	if s.logger == nil {
		return log.Default()
	}
	return s.logger
}

func (s *session) update(f func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.status)
}

func (s *session) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State
}

func (s *session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Channels = append([]int(nil), s.status.Channels...)
	return st
}

// arm opens the device, reads the parameters common to both directions and
// allocates the buffer before calling configure.  On error everything acquired
// is released and the session is stopped
func (s *session) arm(configure func() error) error {
	if s.state() != Idle {
		return ErrNotIdle
	}
	err := s.armDevice(configure)
	if err != nil {
		return s.shutdown(err)
	}
	s.update(func(st *Status) {
		st.State = Armed
		st.Frequency = s.freq
		st.Channels = append([]int(nil), s.channels...)
		st.Size = s.buf.Size()
	})
	return nil
}

func (s *session) armDevice(configure func() error) error {
	if err := s.dev.Open(); err != nil {
		return err
	}
	s.opened = true

	var err error
	s.freq, err = s.dev.Frequency()
	if err != nil {
		return err
	}
	if !(s.freq > 0) {
		return &ConfigError{Field: "frequency", Reason: fmt.Sprintf("%g Hz must be positive", s.freq)}
	}
	s.words, err = s.dev.Words()
	if err != nil {
		return err
	}
	if s.words != 1 && s.words != 2 {
		return &ConfigError{Field: "words per sample", Reason: fmt.Sprintf("%d must be 1 or 2", s.words)}
	}
	s.channels, err = s.dev.EnabledChannels()
	if err != nil {
		return err
	}
	if len(s.channels) == 0 {
		return &ConfigError{Field: "channels", Reason: "none are enabled"}
	}
	s.frame = s.words * len(s.channels)

	s.buf, err = s.dev.Buffer()
	if err != nil {
		return err
	}
	size := s.buf.Size()
	if size <= 0 {
		return &ConfigError{Field: "buffer size", Reason: fmt.Sprintf("%d words must be positive", size)}
	}
	if size%s.frame != 0 {
		return &ConfigError{Field: "buffer size", Reason: fmt.Sprintf("%d words is not a whole number of %d-word frames", size, s.frame)}
	}
	return configure()
}

// start issues the device start and enters Streaming
func (s *session) start() error {
	if err := s.dev.Start(); err != nil {
		return err
	}
	s.started = true
	s.update(func(st *Status) { st.State = Streaming })
	s.log().Printf("%s streaming: %g Hz, channels %v, buffer %d words", s.name, s.freq, s.channels, s.buf.Size())
	return nil
}

// poll reads the hardware pointer, aligned down to a frame.  fresh is false
// when it has not moved since the previous poll
func (s *session) poll() (hw int, fresh bool, err error) {
	hw, err = s.dev.Pointer()
	if err != nil {
		return 0, false, fmt.Errorf("polling %s pointer: %w", s.name, err)
	}
	size := s.buf.Size()
	if hw < 0 || hw >= size {
		return 0, false, fmt.Errorf("%s pointer %d outside buffer of %d words", s.name, hw, size)
	}
	hw -= hw % s.frame
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Polls++
	fresh = !s.polled || hw != s.status.Pointer
	if !fresh {
		s.status.Unchanged++
	}
	s.polled = true
	s.status.Pointer = hw
	return hw, fresh, nil
}

// loop runs step once per scheduled poll until ctx is done or step fails
func (s *session) loop(ctx context.Context, step func() error) error {
	for {
		if err := s.sched.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := step(); err != nil {
			return err
		}
	}
}

// shutdown stops the device if started, releases the buffer, and closes the
// device, always attempting every step.  The returned error joins primary
// with any cleanup failure
func (s *session) shutdown(primary error) error {
	errs := []error{primary}
	if s.started {
		if err := s.dev.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.started = false
	}
	if s.buf != nil {
		if err := s.dev.ReleaseBuffer(s.buf); err != nil {
			errs = append(errs, err)
		}
		s.buf = nil
	}
	if s.opened {
		if err := s.dev.Close(); err != nil {
			errs = append(errs, err)
		}
		s.opened = false
	}
	err := errors.Join(errs...)
	s.update(func(st *Status) {
		st.State = Stopped
		if err != nil {
			st.Err = err.Error()
		}
	})
	if err != nil {
		s.log().Printf("%s stopped: %v", s.name, err)
	} else {
		s.log().Printf("%s stopped", s.name)
	}
	return err
}
