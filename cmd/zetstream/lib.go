package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/nasa-jpl/zetstream/generichttp"
	"github.com/nasa-jpl/zetstream/generichttp/daq"
	"github.com/nasa-jpl/zetstream/server"
	"github.com/nasa-jpl/zetstream/server/middleware/locker"
	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/util"
	"github.com/nasa-jpl/zetstream/zet"
)

// PathSetup holds the configuration applied to one direction before streaming.
// Zero values leave the board as it is
type PathSetup struct {
	Frequency float64
	Channels  []int

	// Gain is the amplification (ADC) or attenuation (DAC) of every enabled channel
	Gain float64
}

// Path returns the setup of the output path
func (d DACSetup) Path() PathSetup {
	return PathSetup{Frequency: d.Frequency, Channels: d.Channels, Gain: d.Attenuation}
}

// Path returns the setup of the input path
func (a ADCSetup) Path() PathSetup {
	return PathSetup{Frequency: a.Frequency, Channels: a.Channels, Gain: a.Amplification}
}

// DACSetup is the configuration of the output path
type DACSetup struct {
	// Frequency is the requested sampling frequency, in Hz
	Frequency float64 `koanf:"frequency" yaml:"frequency"`

	// Channels are the channels to enable, all others are disabled
	Channels []int `koanf:"channels" yaml:"channels"`

	// Attenuation is applied to every enabled channel
	Attenuation float64 `koanf:"attenuation" yaml:"attenuation"`

	// Tone is the frequency of the sine played by generate, in Hz
	Tone float64 `koanf:"tone" yaml:"tone"`

	// Amplitude is the peak of the sine played by generate, in volts
	Amplitude float64 `koanf:"amplitude" yaml:"amplitude"`

	// Waveform is a CSV file of per-channel waveforms.  When set it is played
	// instead of the sine
	Waveform string `koanf:"waveform" yaml:"waveform"`
}

// ADCSetup is the configuration of the input path
type ADCSetup struct {
	// Frequency is the requested sampling frequency, in Hz
	Frequency float64 `koanf:"frequency" yaml:"frequency"`

	// Channels are the channels to enable, all others are disabled
	Channels []int `koanf:"channels" yaml:"channels"`

	// Amplification is applied to every enabled channel
	Amplification float64 `koanf:"amplification" yaml:"amplification"`

	// Capture is a FITS file acquire writes decoded data to
	Capture string `koanf:"capture" yaml:"capture"`

	// Duration bounds acquire, in seconds.  Zero runs until interrupted
	Duration float64 `koanf:"duration" yaml:"duration"`
}

// Config is a struct that holds the initialization parameters for the board
// and its streams.  It is to be populated by a koanf unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// Endpoint is the URL stem the board's routes are served under
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`

	// Mock replaces the board with a simulation
	Mock bool `koanf:"mock" yaml:"mock"`

	// Device is the device type, e.g. "zet230"
	Device string `koanf:"device" yaml:"device"`

	// DSP is the signal processor index
	DSP int `koanf:"dsp" yaml:"dsp"`

	// OpenTimeout is how long opening the board is retried, in seconds
	OpenTimeout float64 `koanf:"opentimeout" yaml:"opentimeout"`

	// PollMs is the interval between pointer reads, in milliseconds
	PollMs float64 `koanf:"pollms" yaml:"pollms"`

	// LatencyMs is the time one DAC packet plays for, in milliseconds
	LatencyMs float64 `koanf:"latencyms" yaml:"latencyms"`

	DAC DACSetup `koanf:"dac" yaml:"dac"`

	ADC ADCSetup `koanf:"adc" yaml:"adc"`
}

// DefaultConfig is the configuration before any file or environment is loaded
func DefaultConfig() Config {
	return Config{
		Addr:        ":8000",
		Endpoint:    "zet",
		Device:      "zet230",
		OpenTimeout: 5,
		PollMs:      float64(stream.DefaultPollInterval / time.Millisecond),
		LatencyMs:   stream.DefaultLatency,
		DAC:         DACSetup{Tone: 100, Amplitude: 1},
		ADC:         ADCSetup{},
	}
}

// Poll returns the poll interval as a duration
func (c Config) Poll() time.Duration {
	return util.SecsToDuration(c.PollMs / 1000)
}

// Device is an opened-on-demand board and its two paths
type Device struct {
	Board interface{}
	ADC   zet.ADC
	DAC   zet.DAC
}

// NewDevice builds the board the configuration describes
func NewDevice(c Config) (Device, error) {
	if c.Mock {
		m := zet.NewMock()
		return Device{Board: m, ADC: m.ADC(), DAC: m.DAC()}, nil
	}
	typ, err := zet.ValidateDeviceType(c.Device)
	if err != nil {
		return Device{}, err
	}
	b, err := zet.NewBoard(typ, c.DSP)
	if err != nil {
		return Device{}, err
	}
	b.OpenTimeout = util.SecsToDuration(c.OpenTimeout)
	return Device{Board: b, ADC: b.ADC(), DAC: b.DAC()}, nil
}

// SetupPath applies a PathSetup to one direction of a board, holding it open
// for the duration.  setGain may be nil if the path has no selectable gain
func SetupPath(s zet.Stream, p PathSetup, setGain func(int, float64) (float64, error)) error {
	if err := s.Open(); err != nil {
		return err
	}
	err := setupPath(s, p, setGain)
	return errors.Join(err, s.Close())
}

func setupPath(s zet.Stream, p PathSetup, setGain func(int, float64) (float64, error)) error {
	c, configurable := s.(zet.Configurable)
	if p.Frequency != 0 {
		if !configurable {
			return errors.New("the sampling frequency of this path cannot be set")
		}
		f, err := c.SetFrequency(p.Frequency)
		if err != nil {
			return err
		}
		if f != p.Frequency {
			log.Printf("requested %g Hz, set %g Hz", p.Frequency, f)
		}
	}
	if len(p.Channels) != 0 {
		if !configurable {
			return errors.New("the channels of this path cannot be set")
		}
		if err := daq.SetEnabledChannels(c, p.Channels); err != nil {
			return err
		}
	}
	if p.Gain != 0 && setGain != nil {
		chans, err := s.EnabledChannels()
		if err != nil {
			return err
		}
		for _, ch := range chans {
			if _, err := setGain(ch, p.Gain); err != nil {
				return err
			}
		}
	}
	return nil
}

// Setup applies the configuration to both paths of a device
func Setup(c Config, d Device) error {
	var amp func(int, float64) (float64, error)
	if a, ok := d.ADC.(zet.Amplifier); ok {
		amp = a.SetAmplification
	}
	if err := SetupPath(d.ADC, c.ADC.Path(), amp); err != nil {
		return fmt.Errorf("configuring ADC: %w", err)
	}
	var atten func(int, float64) (float64, error)
	if a, ok := d.DAC.(zet.Attenuator); ok {
		atten = a.SetAttenuation
	}
	if err := SetupPath(d.DAC, c.DAC.Path(), atten); err != nil {
		return fmt.Errorf("configuring DAC: %w", err)
	}
	return nil
}

// Waveforms returns what generate plays: the configured CSV file if there is
// one, else a sine sampled at the DAC frequency
func Waveforms(c Config, d Device) ([]stream.Waveform, error) {
	var (
		freq  float64
		chans []int
	)
	err := d.DAC.Open()
	if err != nil {
		return nil, err
	}
	freq, err = d.DAC.Frequency()
	if err == nil {
		chans, err = d.DAC.EnabledChannels()
	}
	if err = errors.Join(err, d.DAC.Close()); err != nil {
		return nil, err
	}
	if c.DAC.Waveform == "" {
		return []stream.Waveform{stream.NewSine(c.DAC.Amplitude, c.DAC.Tone, freq)}, nil
	}
	f, err := os.Open(c.DAC.Waveform)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := stream.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.DAC.Waveform, err)
	}
	return daq.Tables(data, chans)
}

// BuildMux makes a chi router serving the device under c.Endpoint.
// The mux serves a special route, /endpoints, which returns the routes of
// every mounted node as JSON.
func BuildMux(c Config, d Device, run *server.Runner, logger *log.Logger) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	httper := daq.NewHTTPBoard(d.Board, d.ADC, d.DAC, run, daq.StreamConfig{
		Poll:      c.Poll(),
		LatencyMs: c.LatencyMs,
		Logger:    logger,
	})
	hndlS := generichttp.SubMuxSanitize(c.Endpoint)

	// add a lock interface for this node
	lock := locker.New()
	locker.Inject(httper, lock)

	// add the endpoints to the graph
	supergraph[hndlS] = httper.RT().Endpoints()

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
