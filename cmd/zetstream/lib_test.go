package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/knadh/koanf"

	"github.com/nasa-jpl/zetstream/server"
	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/zet"
)

func mockConfig() Config {
	c := DefaultConfig()
	c.Mock = true
	return c
}

func TestDefaultConfigPoll(t *testing.T) {
	c := DefaultConfig()
	if p := c.Poll(); p != stream.DefaultPollInterval {
		t.Errorf("expected %v got %v", stream.DefaultPollInterval, p)
	}
	if c.LatencyMs != stream.DefaultLatency {
		t.Errorf("expected default latency %g got %g", stream.DefaultLatency, c.LatencyMs)
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("ZETSTREAM_DAC_TONE", "250")
	t.Setenv("ZETSTREAM_ADDR", ":9000")
	t.Setenv("ZETSTREAM_ADC_CHANNELS", "0, 2")
	k = koanf.New(".")
	setupconfig()
	c := loadconfig()
	if c.DAC.Tone != 250 {
		t.Errorf("expected tone 250 from the environment, got %g", c.DAC.Tone)
	}
	if c.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %q", c.Addr)
	}
	if diff := cmp.Diff([]int{0, 2}, c.ADC.Channels); diff != "" {
		t.Errorf("ADC channels (-want +got):\n%s", diff)
	}
	if c.Device != "zet230" {
		t.Errorf("expected the default device to survive, got %q", c.Device)
	}
}

func TestNewDeviceRejectsUnknownType(t *testing.T) {
	c := DefaultConfig()
	c.Device = "zet999"
	if _, err := NewDevice(c); err == nil {
		t.Error("expected an unknown device type to be rejected")
	}
}

func TestSetupAppliesPaths(t *testing.T) {
	c := mockConfig()
	c.ADC.Frequency = 5100
	c.ADC.Channels = []int{1, 3}
	c.ADC.Amplification = 10
	c.DAC.Channels = []int{0, 1}
	c.DAC.Attenuation = 2
	d, err := NewDevice(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := Setup(c, d); err != nil {
		t.Fatal(err)
	}
	m := d.Board.(*zet.Mock)
	if n := m.Opens(); n != 0 {
		t.Errorf("setup left the board open %d times", n)
	}
	if f, _ := d.ADC.Frequency(); f != 5000 {
		t.Errorf("expected the ADC to snap to 5000 Hz, got %g", f)
	}
	chans, _ := d.ADC.EnabledChannels()
	if diff := cmp.Diff([]int{1, 3}, chans); diff != "" {
		t.Errorf("ADC channels (-want +got):\n%s", diff)
	}
	if g, _ := m.ADC().Amplification(3); g != 10 {
		t.Errorf("expected amplification 10 on channel 3, got %g", g)
	}
	if g, _ := m.ADC().Amplification(0); g != 1 {
		t.Errorf("disabled channel 0 should keep its gain, got %g", g)
	}
	if a, _ := m.DAC().Attenuation(1); a != 2 {
		t.Errorf("expected attenuation 2 on DAC channel 1, got %g", a)
	}
}

func TestSetupRejectsBadChannel(t *testing.T) {
	c := mockConfig()
	c.DAC.Channels = []int{7}
	d, _ := NewDevice(c)
	if err := Setup(c, d); err == nil {
		t.Error("expected a channel past the end of the DAC to be rejected")
	}
	if n := d.Board.(*zet.Mock).Opens(); n != 0 {
		t.Errorf("failed setup left the board open %d times", n)
	}
}

func TestWaveformsSine(t *testing.T) {
	c := mockConfig()
	d, _ := NewDevice(c)
	waves, err := Waveforms(c, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(waves) != 1 {
		t.Fatalf("expected one shared sine, got %d waveforms", len(waves))
	}
	sine, ok := waves[0].(*stream.Sine)
	if !ok {
		t.Fatalf("expected a sine, got %T", waves[0])
	}
	buf := make([]float64, 126)
	sine.Next(buf)
	// 100 Hz at 50 kHz peaks on sample 125
	if buf[125] < 0.9999 {
		t.Errorf("expected a unit peak a quarter period in, got %g", buf[125])
	}
}

func TestWaveformsCSV(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "wave.csv")
	err := os.WriteFile(fn, []byte("0,1\n0.5,-0.5\n1,-1\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	c := mockConfig()
	c.DAC.Waveform = fn
	c.DAC.Channels = []int{0, 1}
	d, _ := NewDevice(c)
	if err := Setup(c, d); err != nil {
		t.Fatal(err)
	}
	waves, err := Waveforms(c, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(waves) != 2 {
		t.Fatalf("expected a waveform per channel, got %d", len(waves))
	}
	got := make([]float64, 3)
	waves[1].Next(got)
	if diff := cmp.Diff([]float64{-0.5, -1, -0.5}, got); diff != "" {
		t.Errorf("channel 1 (-want +got):\n%s", diff)
	}

	c.DAC.Waveform = filepath.Join(dir, "missing.csv")
	if _, err := Waveforms(c, d); err == nil {
		t.Error("expected a missing file to be an error")
	}
}

func TestBuildMux(t *testing.T) {
	c := mockConfig()
	d, _ := NewDevice(c)
	run := server.NewRunner()
	quiet := log.New(io.Discard, "", 0)
	run.Logger = quiet
	mux := BuildMux(c, d, run, quiet)
	defer run.StopAll()

	req := httptest.NewRequest(http.MethodGet, "/endpoints", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	graph := map[string][]string{}
	if err := json.NewDecoder(rec.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	routes := graph["/zet"]
	found := map[string]bool{}
	for _, r := range routes {
		found[r] = true
	}
	for _, r := range []string{"GET /info", "GET /lock", "POST /dac/stream/start"} {
		if !found[r] {
			t.Errorf("expected %q among %v", r, routes)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/zet/info", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var info zet.Info
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil || info.Type != "zet230" {
		t.Errorf("expected the mock's identity, got %+v %v", info, err)
	}
}

func TestBuildMuxLock(t *testing.T) {
	c := mockConfig()
	d, _ := NewDevice(c)
	run := server.NewRunner()
	quiet := log.New(io.Discard, "", 0)
	run.Logger = quiet
	mux := BuildMux(c, d, run, quiet)
	defer run.StopAll()

	do := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do(http.MethodPost, "/zet/lock", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("locking returned %d", code)
	}
	if code := do(http.MethodPost, "/zet/adc/frequency", `{"f64":5000}`); code != http.StatusLocked {
		t.Errorf("expected a locked node to refuse changes, got %d", code)
	}
	if code := do(http.MethodGet, "/zet/adc/frequency", ""); code != http.StatusOK {
		t.Errorf("expected reads through the lock, got %d", code)
	}
}
