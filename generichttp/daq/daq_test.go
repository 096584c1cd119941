package daq

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/zetstream/server"
	"github.com/nasa-jpl/zetstream/zet"
)

type harness struct {
	mock *zet.Mock
	run  *server.Runner
	h    http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := zet.NewMock()
	run := server.NewRunner()
	quiet := log.New(io.Discard, "", 0)
	run.Logger = quiet
	b := NewHTTPBoard(m, m.ADC(), m.DAC(), run, StreamConfig{Poll: time.Millisecond, LatencyMs: 50, Logger: quiet})
	r := chi.NewRouter()
	b.RT().Bind(r)
	t.Cleanup(func() { run.StopAll() })
	return &harness{mock: m, run: run, h: r}
}

func (hn *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	hn.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestInfo(t *testing.T) {
	hn := newHarness(t)
	var info zet.Info
	decode(t, hn.do(http.MethodGet, "/info", ""), &info)
	if info.Type != "zet230" {
		t.Errorf("expected zet230, got %+v", info)
	}
}

func TestFrequency(t *testing.T) {
	hn := newHarness(t)
	var f struct {
		F64 float64 `json:"f64"`
	}
	decode(t, hn.do(http.MethodGet, "/dac/frequency", ""), &f)
	if f.F64 != 50000 {
		t.Errorf("expected 50 kHz, got %g", f.F64)
	}
	decode(t, hn.do(http.MethodPost, "/adc/frequency", `{"f64": 26000}`), &f)
	if f.F64 != 25000 {
		t.Errorf("expected the nearest supported frequency, got %g", f.F64)
	}
	var fs []float64
	decode(t, hn.do(http.MethodGet, "/adc/frequencies", ""), &fs)
	if len(fs) == 0 {
		t.Error("expected a frequency list")
	}
	if n := hn.mock.Opens(); n != 0 {
		t.Errorf("configuration left the board open %d times", n)
	}
}

func TestChannels(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodPost, "/adc/channels", `{"channels": [2, 0, 2]}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cl channelList
	decode(t, hn.do(http.MethodGet, "/adc/channels", ""), &cl)
	if diff := cmp.Diff(channelList{Channels: []int{0, 2}, Count: 4}, cl); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if rec := hn.do(http.MethodPost, "/adc/channels", `{"channels": [9]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an out of range channel, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/adc/channels", `{"channels": []}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for no channels, got %d", rec.Code)
	}
}

func TestAmplification(t *testing.T) {
	hn := newHarness(t)
	var f struct {
		F64 float64 `json:"f64"`
	}
	decode(t, hn.do(http.MethodPost, "/adc/amplification", `{"channel": 1, "value": 12}`), &f)
	if f.F64 != 10 {
		t.Errorf("expected gain of 10, got %g", f.F64)
	}
	decode(t, hn.do(http.MethodGet, "/adc/amplification?channel=1", ""), &f)
	if f.F64 != 10 {
		t.Errorf("expected gain of 10 to read back, got %g", f.F64)
	}
	if rec := hn.do(http.MethodGet, "/adc/amplification?channel=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDigitalLine(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodPost, "/digital/output-enable", `{"uint": 255}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/digital/line", `{"line": 3, "on": true}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var b struct {
		Bool bool `json:"bool"`
	}
	decode(t, hn.do(http.MethodGet, "/digital/line?line=3", ""), &b)
	if !b.Bool {
		t.Error("expected line 3 to read high")
	}
	var u struct {
		Uint uint32 `json:"uint"`
	}
	decode(t, hn.do(http.MethodGet, "/digital/output", ""), &u)
	if u.Uint != 8 {
		t.Errorf("expected output mask 8, got %d", u.Uint)
	}
	if rec := hn.do(http.MethodPost, "/digital/line", `{"line": 8, "on": true}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a line past the port, got %d", rec.Code)
	}
}

func TestDACStreamLifecycle(t *testing.T) {
	hn := newHarness(t)
	var st started
	decode(t, hn.do(http.MethodPost, "/dac/stream/start", `{"tone": 100, "amplitude": 1}`), &st)
	if st.Stream.Packet == 0 {
		t.Errorf("expected an armed stream, got %+v", st.Stream)
	}
	if rec := hn.do(http.MethodPost, "/dac/frequency", `{"f64": 5000}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while streaming, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/dac/stream/start", `{"tone": 100, "amplitude": 1}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second stream, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodGet, "/dac/stream/status", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/dac/stream/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ss server.SessionStatus
	decode(t, hn.do(http.MethodGet, "/sessions/"+st.ID.String(), ""), &ss)
	if ss.Running || ss.Direction != "DAC" {
		t.Errorf("unexpected session %+v", ss)
	}
	if n := hn.mock.Opens(); n != 0 {
		t.Errorf("stream left the board open %d times", n)
	}
}

func TestDACRejectsTonePastNyquist(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodPost, "/dac/stream/start", `{"tone": 1e6, "amplitude": 1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDACTableUpload(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodPost, "/dac/stream/upload/float/csv", "0\n1\n-1\n"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := hn.do(http.MethodPost, "/dac/stream/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/dac/stream/upload/float/csv", "1\n1\n"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing enabled channel, got %d", rec.Code)
	}
}

func TestDACTableUploadBadLatency(t *testing.T) {
	hn := newHarness(t)
	rec := hn.do(http.MethodPost, "/dac/stream/upload/float/csv?latencyMs=fast", "0\n1\n-1\n")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed latency, got %d", rec.Code)
	}
	if hn.run.Busy(zet.Output) {
		t.Error("a stream was started despite the bad latency")
	}
	rec = hn.do(http.MethodPost, "/dac/stream/upload/float/csv?latencyMs=100", "0\n1\n-1\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st started
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Stream.Packet != 5000 {
		t.Errorf("expected a 100 ms packet of 5000 words at 50 kHz, got %d", st.Stream.Packet)
	}
}

func TestADCLatest(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodGet, "/adc/latest", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before a stream, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodPost, "/adc/stream/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(5 * time.Second)
	var lf latestFrame
	for {
		rec := hn.do(http.MethodGet, "/adc/latest", "")
		if rec.Code == http.StatusOK {
			decode(t, rec, &lf)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no frame decoded, last response %d", rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(lf.Volts) != 1 || lf.Volts[0] < -1.01 || lf.Volts[0] > 1.01 {
		t.Errorf("expected one sample within the mock amplitude, got %+v", lf)
	}
	if rec := hn.do(http.MethodPost, "/adc/stream/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSessionBadID(t *testing.T) {
	hn := newHarness(t)
	if rec := hn.do(http.MethodGet, "/sessions/nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := hn.do(http.MethodGet, "/sessions/00000000-0000-0000-0000-000000000001", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTables(t *testing.T) {
	data := map[int][]float64{0: {1}, 1: {2, 3}}
	waves, err := Tables(data, []int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(waves) != 2 {
		t.Fatalf("expected two waveforms, got %d", len(waves))
	}
	dst := make([]float64, 3)
	waves[0].Next(dst)
	if diff := cmp.Diff([]float64{2, 3, 2}, dst); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := Tables(data, []int{4}); err == nil {
		t.Error("expected a missing channel to be rejected")
	}
}
