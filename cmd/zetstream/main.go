package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/zetstream/capture"
	"github.com/nasa-jpl/zetstream/server"
	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/util"
	"github.com/nasa-jpl/zetstream/zet"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "zetstream.yml"

	// EnvPrefix prefixes environment variables which override the file,
	// e.g. ZETSTREAM_DAC_TONE=250
	EnvPrefix = "ZETSTREAM_"

	k = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	err := k.Load(file.Provider(ConfigFileName), yaml.Parser())
	if err != nil && !errors.Is(err, os.ErrNotExist) { // file missing, who cares
		log.Fatalf("error loading config: %v", err)
	}
	err = k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil)
	if err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

// envValue maps ZETSTREAM_ADC_CHANNELS=0,2 to adc.channels: [0 2]
func envValue(key, value string) (string, interface{}) {
	key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", ".", -1)
	if strings.HasSuffix(key, ".channels") {
		chans, err := util.CSVToIntSlice(value)
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		return key, chans
	}
	return key, value
}

func loadconfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `zetstream streams data to and from ZetLab ADC/DAC boards.  It plays waveforms
on the DAC, acquires from the ADC, and exposes both over HTTP.

Usage:
	zetstream <command>

Commands:
	run
	generate
	acquire
	list
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `zetstream is amenable to configuration via its .yml file, and any key may be
overriden by an environment variable prefixed with ZETSTREAM_, for example
ZETSTREAM_DAC_TONE=250.  For a primer on YAML, see https://yaml.org/start.html

"zetstream mkconf" writes the defaults to zetstream.yml.

run serves the board over HTTP at addr, under the endpoint URL stem.  GET
/endpoints lists every route.

generate plays the dac waveform CSV if one is configured, otherwise a sine of
the dac tone and amplitude, until interrupted.

acquire reads the adc until interrupted or for adc duration seconds, and writes
a FITS file to adc capture if it is set.

list prints the supported device types and, with a board attached, its identity.

The vendor driver (Zadc.dll) is only available on windows.  Set mock: true to
use a simulated ZET 230 on any platform.

Device types, case insensitive:
` + deviceList()
	fmt.Println(str)
}

func deviceList() string {
	var b strings.Builder
	for t := zet.DeviceType(0); t <= zet.ZET048; t++ {
		fmt.Fprintf(&b, "\t> %s\n", zet.FormatDeviceType(t))
	}
	return b.String()
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("zetstream version %v\n", Version)
}

func device(c Config) Device {
	d, err := NewDevice(c)
	if err != nil {
		log.Fatal(err)
	}
	if err = Setup(c, d); err != nil {
		log.Fatal(err)
	}
	return d
}

func interrupted() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func run() {
	c := loadconfig()
	d := device(c)
	runner := server.NewRunner()
	mux := BuildMux(c, d, runner, log.Default())
	srv := &http.Server{Addr: c.Addr, Handler: mux}

	ctx, stop := interrupted()
	defer stop()
	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Println("now listening for requests at ", c.Addr)
	err := srv.ListenAndServe()
	if err := runner.StopAll(); err != nil {
		log.Println(err)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func spinner(msg string) *yacspin.Spinner {
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + msg,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	return spin
}

// watch shows the status of a stream on a spinner until done is closed
func watch(spin *yacspin.Spinner, done <-chan struct{}, status func() string) {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.C:
			spin.Message(status())
		}
	}
}

// finish stops the spinner, reporting err
func finish(spin *yacspin.Spinner, err error) {
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.Stop()
}

func generate() {
	c := loadconfig()
	d := device(c)
	waves, err := Waveforms(c, d)
	if err != nil {
		log.Fatal(err)
	}
	g := stream.NewGenerator(d.DAC, stream.GeneratorConfig{
		LatencyMs: c.LatencyMs,
		Waveforms: waves,
		Scheduler: stream.NewInterval(c.Poll()),
		Logger:    log.New(io.Discard, "", 0),
	})
	if err = g.Arm(); err != nil {
		log.Fatal(err)
	}
	st := g.Status()
	spin := spinner(fmt.Sprintf("DAC %g Hz, channels %s, packet %d words", st.Frequency, util.IntSliceToCSV(st.Channels), st.Packet))
	ctx, stop := interrupted()
	defer stop()

	done := make(chan struct{})
	spin.Start()
	go watch(spin, done, func() string {
		st := g.Status()
		return fmt.Sprintf("%d frames written, %d packets, pointer %d", st.Frames, st.Steps, st.Pointer)
	})
	err = g.Run(ctx)
	close(done)
	finish(spin, err)
}

func acquire() {
	c := loadconfig()
	d := device(c)
	ctx, stop := interrupted()
	defer stop()
	if c.ADC.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, util.SecsToDuration(c.ADC.Duration))
		defer cancel()
	}

	var (
		sink stream.Sink
		fits *capture.FITS
		out  *os.File
	)
	if c.ADC.Capture != "" {
		var err error
		out, err = os.Create(c.ADC.Capture)
		if err != nil {
			log.Fatal(err)
		}
		defer out.Close()
		fits = capture.NewFITS(out, 0)
		sink = fits
	}
	a := stream.NewAcquirer(d.ADC, stream.AcquirerConfig{
		Sink:      sink,
		Scheduler: stream.NewInterval(c.Poll()),
		Logger:    log.New(io.Discard, "", 0),
	})
	if err := a.Arm(); err != nil {
		log.Fatal(err)
	}
	st := a.Status()
	if fits != nil {
		if c.ADC.Duration > 0 {
			fits.MaxFrames = int(c.ADC.Duration * st.Frequency)
		}
		fits.Header = append(capture.Metadata(st, a.Calibration()), fitsio.Card{Name: "DEVICE", Value: c.Device})
	}

	spin := spinner(fmt.Sprintf("ADC %g Hz, channels %s", st.Frequency, util.IntSliceToCSV(st.Channels)))
	done := make(chan struct{})
	spin.Start()
	go watch(spin, done, func() string {
		volts, ok := a.Latest()
		if !ok {
			return "waiting for data"
		}
		return fmt.Sprintf("%d frames, latest %v V", a.Status().Frames, volts)
	})
	err := a.Run(ctx)
	close(done)
	if errors.Is(err, capture.ErrFull) {
		err = nil
	}
	if err == nil && fits != nil {
		err = fits.Close()
		if err == nil {
			spin.StopMessage(fmt.Sprintf("wrote %d frames to %s, CRC %08X", fits.Frames(), c.ADC.Capture, fits.Checksum()))
		}
	}
	finish(spin, err)
}

func list() {
	fmt.Print(deviceList())
	c := loadconfig()
	d, err := NewDevice(c)
	if err != nil {
		log.Println(err)
		return
	}
	id, ok := d.Board.(zet.Identifier)
	if !ok {
		return
	}
	if err = d.ADC.Open(); err != nil {
		log.Fatal(err)
	}
	defer d.ADC.Close()
	info, err := id.Info()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\n%s %s serial %d, DSP %s, driver %s, library %s\n",
		info.Type, info.Name, info.Serial, info.Version.DSP, info.Version.Driver, info.Version.Library)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "generate":
		generate()
		return
	case "acquire":
		acquire()
		return
	case "list":
		list()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
