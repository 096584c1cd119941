package server

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/zet"
)

type fakeController struct {
	armErr error
	runErr error
	armed  int

	// hold, if set, blocks Arm until it is closed
	hold   chan struct{}
	arming chan struct{}
}

func (f *fakeController) Arm() error {
	f.armed++
	if f.hold != nil {
		close(f.arming)
		<-f.hold
	}
	return f.armErr
}

func (f *fakeController) Run(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeController) Close() error { return nil }

func (f *fakeController) Status() stream.Status {
	return stream.Status{State: stream.Streaming}
}

func newTestRunner() *Runner {
	r := NewRunner()
	r.Logger = log.New(io.Discard, "", 0)
	return r
}

func TestRunnerStartStop(t *testing.T) {
	r := newTestRunner()
	id, err := r.Start(zet.Output, &fakeController{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Busy(zet.Output) {
		t.Error("expected the DAC direction to be busy")
	}
	if r.Busy(zet.Input) {
		t.Error("expected the ADC direction to be free")
	}
	if _, err := r.Start(zet.Output, &fakeController{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if err := r.Stop(id); err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
	st, err := r.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.Direction != "DAC" {
		t.Errorf("unexpected status %+v", st)
	}
	if _, err := r.Start(zet.Output, &fakeController{}); err != nil {
		t.Errorf("expected a new session after stop, got %v", err)
	}
	if err := r.StopAll(); err != nil {
		t.Error(err)
	}
}

func TestRunnerArmErrorCreatesNoSession(t *testing.T) {
	r := newTestRunner()
	errArm := errors.New("no device")
	if _, err := r.Start(zet.Input, &fakeController{armErr: errArm}); !errors.Is(err, errArm) {
		t.Errorf("expected arm error, got %v", err)
	}
	if n := len(r.List()); n != 0 {
		t.Errorf("expected no sessions, got %d", n)
	}
}

func TestRunnerReportsRunError(t *testing.T) {
	r := newTestRunner()
	errRun := errors.New("pointer failed")
	id, err := r.Start(zet.Input, &fakeController{runErr: errRun})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(id); !errors.Is(err, errRun) {
		t.Errorf("expected run error, got %v", err)
	}
}

func TestRunnerUnknownSession(t *testing.T) {
	r := newTestRunner()
	if err := r.Stop(uuid.New()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if _, err := r.Status(uuid.New()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestRunnerPrunesHistory(t *testing.T) {
	r := newTestRunner()
	r.MaxHistory = 2
	for i := 0; i < 4; i++ {
		id, err := r.Start(zet.Output, &fakeController{})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Stop(id); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(r.List()); n > 3 {
		t.Errorf("expected history to be bounded, got %d sessions", n)
	}
}

func TestRunnerRespondsWhileArming(t *testing.T) {
	r := newTestRunner()
	slow := &fakeController{hold: make(chan struct{}), arming: make(chan struct{})}
	type result struct {
		id  uuid.UUID
		err error
	}
	res := make(chan result)
	go func() {
		id, err := r.Start(zet.Output, slow)
		res <- result{id, err}
	}()
	<-slow.arming

	queried := make(chan bool)
	go func() {
		r.List()
		queried <- r.Busy(zet.Output)
	}()
	select {
	case busy := <-queried:
		if !busy {
			t.Error("expected the DAC direction to be reserved while arming")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("the runner blocked while a controller was arming")
	}
	if _, err := r.Start(zet.Output, &fakeController{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while arming, got %v", err)
	}
	if _, err := r.Start(zet.Input, &fakeController{}); err != nil {
		t.Errorf("expected the ADC direction to start independently, got %v", err)
	}

	close(slow.hold)
	out := <-res
	if out.err != nil {
		t.Fatal(out.err)
	}
	if err := r.Stop(out.id); err != nil {
		t.Error(err)
	}
	if err := r.StopAll(); err != nil {
		t.Error(err)
	}
}

func TestRunnerArmErrorReleasesDirection(t *testing.T) {
	r := newTestRunner()
	armErr := errors.New("no board")
	if _, err := r.Start(zet.Output, &fakeController{armErr: armErr}); !errors.Is(err, armErr) {
		t.Fatalf("expected the arm error, got %v", err)
	}
	if r.Busy(zet.Output) {
		t.Error("a failed arm left the direction reserved")
	}
}
