// Package server runs device streams on behalf of HTTP clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/zetstream/stream"
	"github.com/nasa-jpl/zetstream/zet"
)

var (
	// ErrBusy is generated when a stream is started in a direction which
	// already has one running
	ErrBusy = errors.New("a stream is already running in that direction")

	// ErrNoSession is generated when a session ID is not known
	ErrNoSession = errors.New("no such session")
)

// Controller is a stream.Generator or stream.Acquirer
type Controller interface {
	Arm() error
	Run(ctx context.Context) error
	Close() error
	Status() stream.Status
}

// SessionStatus describes one run of a Controller
type SessionStatus struct {
	ID        uuid.UUID     `json:"id"`
	Direction string        `json:"direction"`
	Started   time.Time     `json:"started"`
	Running   bool          `json:"running"`
	Stream    stream.Status `json:"stream"`
}

type session struct {
	id      uuid.UUID
	dir     zet.Direction
	started time.Time
	ctrl    Controller
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func (s *session) running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *session) status() SessionStatus {
	return SessionStatus{
		ID:        s.id,
		Direction: s.dir.String(),
		Started:   s.started,
		Running:   s.running(),
		Stream:    s.ctrl.Status(),
	}
}

// Runner owns the streams started over HTTP, at most one per direction.
// Finished sessions are kept so their status can still be queried, up to
// MaxHistory of them
type Runner struct {
	// MaxHistory bounds the number of finished sessions retained
	MaxHistory int

	// Logger receives session starts and ends, log.Default() if nil
	Logger *log.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	order    []uuid.UUID
	active   map[zet.Direction]*session
	arming   map[zet.Direction]bool
}

// NewRunner returns a Runner with no sessions
func NewRunner() *Runner {
	return &Runner{
		MaxHistory: 16,
		sessions:   map[uuid.UUID]*session{},
		active:     map[zet.Direction]*session{},
		arming:     map[zet.Direction]bool{},
	}
}

func (r *Runner) log() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

// Start arms c and runs it in the background.  Arm errors are returned
// directly and no session is created.  The direction is reserved while c
// arms, so the runner stays responsive during slow driver calls
func (r *Runner) Start(dir zet.Direction, c Controller) (uuid.UUID, error) {
	r.mu.Lock()
	if r.busy(dir) {
		r.mu.Unlock()
		return uuid.Nil, ErrBusy
	}
	r.arming[dir] = true
	r.mu.Unlock()

	err := c.Arm()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.arming, dir)
	if err != nil {
		return uuid.Nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      uuid.New(),
		dir:     dir,
		started: time.Now(),
		ctrl:    c,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sessions[s.id] = s
	r.order = append(r.order, s.id)
	r.active[dir] = s
	r.prune()
	go func() {
		err := c.Run(ctx)
		r.mu.Lock()
		s.err = err
		r.mu.Unlock()
		close(s.done)
		if err != nil {
			r.log().Printf("session %s (%s) ended: %v", s.id, dir, err)
		} else {
			r.log().Printf("session %s (%s) ended", s.id, dir)
		}
	}()
	r.log().Printf("session %s (%s) started", s.id, dir)
	return s.id, nil
}

// prune drops the oldest finished sessions beyond MaxHistory.  r.mu is held
func (r *Runner) prune() {
	if r.MaxHistory <= 0 {
		return
	}
	kept := r.order[:0]
	excess := len(r.order) - r.MaxHistory
	for _, id := range r.order {
		s := r.sessions[id]
		if excess > 0 && !s.running() {
			delete(r.sessions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// Stop cancels a session and waits for its device to be released.  The
// error is the one the stream ended with
func (r *Runner) Stop(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	s.cancel()
	<-s.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.err
}

// StopDirection stops the active session in one direction, if any
func (r *Runner) StopDirection(dir zet.Direction) error {
	r.mu.Lock()
	s, ok := r.active[dir]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Stop(s.id)
}

// StopAll stops every running session, joining their errors
func (r *Runner) StopAll() error {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.active))
	for _, s := range r.active {
		ids = append(ids, s.id)
	}
	r.mu.Unlock()
	var errs []error
	for _, id := range ids {
		errs = append(errs, r.Stop(id))
	}
	return errors.Join(errs...)
}

// Busy returns true if a session is arming or running in dir
func (r *Runner) Busy(dir zet.Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy(dir)
}

// busy is Busy with r.mu held
func (r *Runner) busy(dir zet.Direction) bool {
	if r.arming[dir] {
		return true
	}
	s, ok := r.active[dir]
	return ok && s.running()
}

// Status returns the status of a session
func (r *Runner) Status(id uuid.UUID) (SessionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return SessionStatus{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return s.status(), nil
}

// Active returns the status of the latest session in dir
func (r *Runner) Active(dir zet.Direction) (SessionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[dir]
	if !ok {
		return SessionStatus{}, false
	}
	return s.status(), true
}

// Controller returns the controller of the latest session in dir
func (r *Runner) Controller(dir zet.Direction) (Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[dir]
	if !ok {
		return nil, false
	}
	return s.ctrl, true
}

// List returns every retained session, oldest first
func (r *Runner) List() []SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].status())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
