// Package locker provides an HTTP middleware which lets an operator claim a
// board, refusing changes from everyone else with 423 (locked)
package locker

import (
	"encoding/json"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/nasa-jpl/zetstream/generichttp"
)

// Inject adds the lock routes to a generichttp.HTTPer
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Claim is the state of a Locker as reported over HTTP
type Claim struct {
	// Bool is true while the board is locked
	Bool bool `json:"bool"`

	// Holder names whoever took the lock, if they said
	Holder string `json:"str,omitempty"`

	// Since is when the lock was taken
	Since *time.Time `json:"since,omitempty"`
}

// Locker holds a board's lock.  Reads always pass; writes pass only while it
// is unlocked or when their final path element is in DoNotProtect
type Locker struct {
	mu    sync.RWMutex
	claim Claim

	// DoNotProtect lists final path elements which are never refused
	DoNotProtect []string

	now func() time.Time
}

// New returns a Locker which never refuses the lock route itself or the
// stream stop routes, so a locked board can always be silenced
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock", "stop"}, now: time.Now}
}

// Lock claims the locker for holder
func (l *Locker) Lock(holder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.claim = Claim{Bool: true, Holder: holder, Since: &now}
}

// Unlock releases the locker
func (l *Locker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claim = Claim{}
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.claim.Bool
}

// Claim returns the current state of the locker
func (l *Locker) Claim() Claim {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.claim
}

func (l *Locker) exempt(urlPath string) bool {
	last := path.Base(urlPath)
	for _, s := range l.DoNotProtect {
		if s == last {
			return true
		}
	}
	return false
}

// Check is an HTTP middleware refusing writes to a locked board
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && l.Locked() && !l.exempt(r.URL.Path) {
			c := l.Claim()
			if c.Holder != "" {
				w.Header().Set("X-Locked-By", c.Holder)
			}
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks the board if the body is {"bool":true}, optionally naming the
// holder as {"str":"..."}, and unlocks it if bool is false
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	c := Claim{}
	err := json.NewDecoder(r.Body).Decode(&c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.Bool {
		l.Lock(c.Holder)
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns the Claim as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	generichttp.ReplyJSON(w, l.Claim())
}
