// Package daq provides a generic HTTP interface to ZetLab ADC and DAC boards
// and the streams that run on them.
//
// This is not the last word in speed, due to HTTP having reasonable latency in
// most client languages, but it is the last word in ease of use.  Samples move
// between the board and the host in the stream package, HTTP only configures
// and observes them.
package daq

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/nasa-jpl/zetstream/generichttp"
	"github.com/nasa-jpl/zetstream/server"
	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/util"
	"github.com/nasa-jpl/zetstream/zet"
)

// StreamConfig holds the parameters of streams started over HTTP
type StreamConfig struct {
	// Poll is the interval between hardware pointer reads
	Poll time.Duration

	// LatencyMs is the default DAC packet latency
	LatencyMs float64

	// Logger is passed to every stream
	Logger *log.Logger
}

func (c StreamConfig) scheduler() stream.Scheduler {
	return stream.NewInterval(c.Poll)
}

type channelValue struct {
	Channel int `json:"channel"`

	Value float64 `json:"value"`
}

type channelList struct {
	Channels []int `json:"channels"`

	// Count is the number of physical channels
	Count int `json:"count,omitempty"`
}

type sineRequest struct {
	// Tone is the sine frequency, in Hz
	Tone float64 `json:"tone"`

	// Amplitude is the peak, in volts
	Amplitude float64 `json:"amplitude"`

	// LatencyMs overrides the configured latency if nonzero
	LatencyMs float64 `json:"latencyMs"`
}

type started struct {
	ID uuid.UUID `json:"id"`

	Stream stream.Status `json:"stream"`
}

type latestFrame struct {
	Channels []int     `json:"channels"`
	Volts    []float64 `json:"volts"`
}

type digitalLine struct {
	Line uint `json:"line"`
	On   bool `json:"on"`
}

// withOpen holds the board open around f, for configuration outside a stream
func withOpen(s zet.Stream, f func() error) error {
	if err := s.Open(); err != nil {
		return err
	}
	err := f()
	return errors.Join(err, s.Close())
}

func channelParam(r *http.Request) (int, error) {
	str := r.URL.Query().Get("channel")
	if str == "" {
		return 0, nil
	}
	return strconv.Atoi(str)
}

// statusFor maps an error to an HTTP status code
func statusFor(err error) int {
	var cfgErr *stream.ConfigError
	switch {
	case errors.Is(err, server.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, server.ErrNoSession):
		return http.StatusNotFound
	case errors.As(err, &cfgErr), errors.Is(err, zet.ErrChannelOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPBoard wraps the paths of a board in an HTTP interface
type HTTPBoard struct {
	adc zet.ADC
	dac zet.DAC
	run *server.Runner
	cfg StreamConfig

	// RouteTable maps method-path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPBoard sets up an HTTP interface to a board.  board may satisfy any of
// zet.Identifier and zet.Digital, adc and dac any of zet.Configurable,
// zet.Amplifier and zet.Attenuator, and the matching routes are added.  Either
// path may be nil
func NewHTTPBoard(board interface{}, adc zet.ADC, dac zet.DAC, run *server.Runner, cfg StreamConfig) *HTTPBoard {
	h := &HTTPBoard{adc: adc, dac: dac, run: run, cfg: cfg}
	rt := generichttp.RouteTable{}
	if id, ok := board.(zet.Identifier); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/info"}] = GetInfo(id)
	}
	if d, ok := board.(zet.Digital); ok {
		HTTPDigital(d, rt)
	}
	if adc != nil {
		h.httpPath("/adc", adc, zet.Input, rt)
		if a, ok := adc.(zet.Amplifier); ok {
			h.httpAmplifier(a, rt)
		}
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/adc/amplification"}] = h.getGain(adc, adc.Amplification)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/adc/stream/start"}] = h.StartAcquirer
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/adc/latest"}] = h.Latest
	}
	if dac != nil {
		h.httpPath("/dac", dac, zet.Output, rt)
		if a, ok := dac.(zet.Attenuator); ok {
			rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/dac/attenuation"}] = h.setGain(zet.Output, a.SetAttenuation)
		}
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/dac/attenuation"}] = h.getGain(dac, dac.Attenuation)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/dac/stream/start"}] = h.StartSine
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/dac/stream/upload/float/csv"}] = h.StartTable
	}
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/sessions"}] = h.Sessions
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/sessions/{id}"}] = h.Session
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/sessions/{id}/stop"}] = h.StopSession
	h.RouteTable = rt
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPBoard) RT() generichttp.RouteTable {
	return h.RouteTable
}

// httpPath adds the routes shared by both directions under prefix
func (h *HTTPBoard) httpPath(prefix string, s zet.Stream, dir zet.Direction, rt generichttp.RouteTable) {
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: prefix + "/frequency"}] = h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		f, err := s.Frequency()
		if err != nil {
			return err
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: prefix + "/channels"}] = h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		chans, err := s.EnabledChannels()
		if err != nil {
			return err
		}
		out := channelList{Channels: chans}
		if c, ok := s.(zet.Configurable); ok {
			if out.Count, err = c.ChannelCount(); err != nil {
				return err
			}
		}
		generichttp.ReplyJSON(w, out)
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: prefix + "/stream/status"}] = h.ActiveStatus(dir)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: prefix + "/stream/stop"}] = h.StopDirection(dir)

	c, ok := s.(zet.Configurable)
	if !ok {
		return
	}
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: prefix + "/frequency"}] = h.idle(dir, h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		in := generichttp.FloatT{}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil
		}
		f, err := c.SetFrequency(in.F64)
		if err != nil {
			return err
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
		return nil
	}))
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: prefix + "/frequencies"}] = h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		fs, err := c.ListFrequencies()
		if err != nil {
			return err
		}
		generichttp.ReplyJSON(w, fs)
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: prefix + "/channels"}] = h.idle(dir, h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		in := channelList{}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil
		}
		return SetEnabledChannels(c, in.Channels)
	}))
}

// SetEnabledChannels enables exactly the listed channels
func SetEnabledChannels(c zet.Configurable, channels []int) error {
	n, err := c.ChannelCount()
	if err != nil {
		return err
	}
	want := map[int]bool{}
	for _, ch := range util.UniqueInts(channels) {
		if ch < 0 || ch >= n {
			return fmt.Errorf("channel %d of %d: %w", ch, n, zet.ErrChannelOutOfRange)
		}
		want[ch] = true
	}
	if len(want) == 0 {
		return &stream.ConfigError{Field: "channels", Reason: "at least one must be enabled"}
	}
	for ch := 0; ch < n; ch++ {
		if err := c.EnableChannel(ch, want[ch]); err != nil {
			return err
		}
	}
	return nil
}

func (h *HTTPBoard) httpAmplifier(a zet.Amplifier, rt generichttp.RouteTable) {
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/adc/amplification"}] = h.setGain(zet.Input, a.SetAmplification)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/adc/amplifications"}] = h.opened(h.adc, func(w http.ResponseWriter, r *http.Request) error {
		gs, err := a.ListAmplifications()
		if err != nil {
			return err
		}
		generichttp.ReplyJSON(w, gs)
		return nil
	})
}

func (h *HTTPBoard) path(dir zet.Direction) zet.Stream {
	if dir == zet.Output {
		return h.dac
	}
	return h.adc
}

func (h *HTTPBoard) getGain(s zet.Stream, get func(int) (float64, error)) http.HandlerFunc {
	return h.opened(s, func(w http.ResponseWriter, r *http.Request) error {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil
		}
		g, err := get(ch)
		if err != nil {
			return err
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: g}
		hp.EncodeAndRespond(w, r)
		return nil
	})
}

func (h *HTTPBoard) setGain(dir zet.Direction, set func(int, float64) (float64, error)) http.HandlerFunc {
	return h.idle(dir, h.opened(h.path(dir), func(w http.ResponseWriter, r *http.Request) error {
		var in channelValue
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil
		}
		g, err := set(in.Channel, in.Value)
		if err != nil {
			return err
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: g}
		hp.EncodeAndRespond(w, r)
		return nil
	}))
}

// opened runs f with s held open, replying with any error it returns
func (h *HTTPBoard) opened(s zet.Stream, f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		err := withOpen(s, func() error { return f(w, r) })
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
		}
	}
}

// idle rejects requests which would reconfigure a path while it streams
func (h *HTTPBoard) idle(dir zet.Direction, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.run.Busy(dir) {
			http.Error(w, fmt.Sprintf("%s is streaming", dir), http.StatusConflict)
			return
		}
		next(w, r)
	}
}

// GetInfo returns the identity of the board as JSON
func GetInfo(id zet.Identifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := id.Info()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		generichttp.ReplyJSON(w, info)
	}
}

func (h *HTTPBoard) start(w http.ResponseWriter, dir zet.Direction, c server.Controller) {
	id, err := h.run.Start(dir, c)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	generichttp.ReplyJSON(w, started{ID: id, Stream: c.Status()})
}

// StartSine starts the DAC playing a sine on every enabled channel
func (h *HTTPBoard) StartSine(w http.ResponseWriter, r *http.Request) {
	in := sineRequest{}
	err := json.NewDecoder(r.Body).Decode(&in)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var freq float64
	err = withOpen(h.dac, func() error {
		var err error
		freq, err = h.dac.Frequency()
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !(freq > 0) || in.Tone < 0 || in.Tone > freq/2 {
		http.Error(w, fmt.Sprintf("tone %g Hz cannot be played at %g Hz", in.Tone, freq), http.StatusBadRequest)
		return
	}
	h.startGenerator(w, in.LatencyMs, []stream.Waveform{stream.NewSine(in.Amplitude, in.Tone, freq)})
}

// StartTable starts the DAC playing the per-channel waveforms in a CSV body.
// The first row holds channel numbers, and every enabled channel must have a
// column
func (h *HTTPBoard) StartTable(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var latency float64
	if q := r.URL.Query().Get("latencyMs"); q != "" {
		var err error
		latency, err = strconv.ParseFloat(q, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("latencyMs: %v", err), http.StatusBadRequest)
			return
		}
	}
	data, err := stream.ReadCSV(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var chans []int
	err = withOpen(h.dac, func() error {
		var err error
		chans, err = h.dac.EnabledChannels()
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	waves, err := Tables(data, chans)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.startGenerator(w, latency, waves)
}

// Tables builds one looping waveform per enabled channel from parsed CSV data
func Tables(data map[int][]float64, channels []int) ([]stream.Waveform, error) {
	out := make([]stream.Waveform, len(channels))
	for i, ch := range channels {
		samples, ok := data[ch]
		if !ok {
			return nil, fmt.Errorf("no waveform for enabled channel %d", ch)
		}
		t, err := stream.NewTable(samples)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		out[i] = t
	}
	return out, nil
}

func (h *HTTPBoard) startGenerator(w http.ResponseWriter, latency float64, waves []stream.Waveform) {
	if latency == 0 {
		latency = h.cfg.LatencyMs
	}
	g := stream.NewGenerator(h.dac, stream.GeneratorConfig{
		LatencyMs: latency,
		Waveforms: waves,
		Scheduler: h.cfg.scheduler(),
		Logger:    h.cfg.Logger,
	})
	h.start(w, zet.Output, g)
}

// StartAcquirer starts the ADC, keeping the newest frame for Latest
func (h *HTTPBoard) StartAcquirer(w http.ResponseWriter, r *http.Request) {
	a := stream.NewAcquirer(h.adc, stream.AcquirerConfig{
		Scheduler: h.cfg.scheduler(),
		Logger:    h.cfg.Logger,
	})
	h.start(w, zet.Input, a)
}

// Latest returns the newest frame of the running ADC stream
func (h *HTTPBoard) Latest(w http.ResponseWriter, r *http.Request) {
	c, ok := h.run.Controller(zet.Input)
	a, isAcq := c.(*stream.Acquirer)
	if !ok || !isAcq {
		http.Error(w, "no ADC stream has been started", http.StatusNotFound)
		return
	}
	volts, ok := a.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	generichttp.ReplyJSON(w, latestFrame{Channels: a.Status().Channels, Volts: volts})
}

// ActiveStatus returns the status of the latest session in one direction
func (h *HTTPBoard) ActiveStatus(dir zet.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := h.run.Active(dir)
		if !ok {
			http.Error(w, fmt.Sprintf("no %s stream has been started", dir), http.StatusNotFound)
			return
		}
		generichttp.ReplyJSON(w, st)
	}
}

// StopDirection stops the running session in one direction
func (h *HTTPBoard) StopDirection(dir zet.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.run.StopDirection(dir); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Sessions lists every retained session
func (h *HTTPBoard) Sessions(w http.ResponseWriter, r *http.Request) {
	generichttp.ReplyJSON(w, h.run.List())
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// Session returns the status of one session
func (h *HTTPBoard) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.run.Status(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	generichttp.ReplyJSON(w, st)
}

// StopSession stops one session
func (h *HTTPBoard) StopSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.run.Stop(id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
