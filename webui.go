package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

const sessionCookie = "grid_session"

// htmlView keeps the cells a browser session last rendered so the handlers
// can turn them into fragments.
type htmlView struct {
	lock  deadlock.Mutex
	cells []Cell
}

var _ View = (*htmlView)(nil)

func (v *htmlView) Render(cells []Cell) {
	v.lock.Lock()
	v.cells = cells
	v.lock.Unlock()
}

func (v *htmlView) SetSelected(id int, selected bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if id >= 0 && id < len(v.cells) {
		v.cells[id].Selected = selected
	}
}

func (v *htmlView) snapshot() []Cell {
	v.lock.Lock()
	defer v.lock.Unlock()

	cp := make([]Cell, len(v.cells))
	copy(cp, v.cells)
	return cp
}

func (v *htmlView) cell(id int) (Cell, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if id < 0 || id >= len(v.cells) {
		return Cell{}, false
	}
	return v.cells[id], true
}

// session is one page load: a fresh controller with an empty pending set.
type session struct {
	id       string
	ctrl     *Controller
	view     *htmlView
	lastSeen atomic.Int64
}

func (s *session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

type sessionStore struct {
	lock     deadlock.Mutex
	sessions map[string]*session
	newAPI   func() GridAPI
	ttl      time.Duration
}

func newSessionStore(newAPI func() GridAPI, ttl time.Duration) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		newAPI:   newAPI,
		ttl:      ttl,
	}
}

func (ss *sessionStore) create() *session {
	view := &htmlView{}
	s := &session{
		id:   uuid.NewString(),
		ctrl: NewController(ss.newAPI(), view),
		view: view,
	}
	s.touch(time.Now())

	ss.lock.Lock()
	ss.sessions[s.id] = s
	ss.lock.Unlock()

	return s
}

func (ss *sessionStore) get(id string) (*session, bool) {
	ss.lock.Lock()
	s, ok := ss.sessions[id]
	ss.lock.Unlock()

	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

func (ss *sessionStore) count() int {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return len(ss.sessions)
}

// reap drops sessions idle for longer than the ttl and returns how many.
func (ss *sessionStore) reap(now time.Time) int {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	n := 0
	for id, s := range ss.sessions {
		seen := time.Unix(0, s.lastSeen.Load())
		if now.Sub(seen) > ss.ttl {
			log.Printf("dropping session %s, last seen %s", id, humanize.RelTime(seen, now, "ago", "from now"))
			delete(ss.sessions, id)
			n++
		}
	}
	return n
}

func (ss *sessionStore) run(ctx context.Context) {
	t := time.NewTicker(ss.ttl / 2)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			ss.reap(now)
		case <-ctx.Done():
			return
		}
	}
}

// GET /: new page session.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.create()
	log.Printf("/: new session (session=%s, active=%d)", sess.id, s.sessions.count())

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "page", nil); err != nil {
		log.Printf("/: error rendering page: %s (session=%s)", err.Error(), sess.id)
	}
}

// sessionFor finds the caller's session. Unknown sessions make htmx reload
// the page, which starts a new one.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err == nil {
		if sess, ok := s.sessions.get(c.Value); ok {
			return sess, true
		}
	}

	w.Header().Set("HX-Refresh", "true")
	http.Error(w, "session expired", http.StatusGone)
	return nil, false
}

// GET /ui/field: load the game into the session and render it.
func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	s.runAndRenderField(w, r, sess, "load", sess.ctrl.Load)
}

// POST /ui/save
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	pending := len(sess.ctrl.Pending())
	s.runAndRenderField(w, r, sess, "save "+strconv.Itoa(pending)+" toggles", sess.ctrl.Save)
}

// POST /ui/reset
func (s *Server) handleUIReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	s.runAndRenderField(w, r, sess, "reset", sess.ctrl.Reset)
}

// runAndRenderField runs a controller operation and answers with the field
// as the session sees it afterwards. A failed operation leaves the previous
// field in place.
func (s *Server) runAndRenderField(w http.ResponseWriter, r *http.Request, sess *session, what string, op func(context.Context) error) {
	start := time.Now()
	if err := op(r.Context()); err != nil {
		log.Printf("%s: %s failed: %s (session=%s)", r.URL.Path, what, err.Error(), sess.id)
		w.Header().Set("HX-Trigger", "grid-error")
	} else {
		log.Printf("%s: %s done in %s (session=%s)", r.URL.Path, what, time.Since(start).Round(time.Millisecond), sess.id)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.templates.ExecuteTemplate(w, "field", newFieldData(sess.view.snapshot(), 0))
	if err != nil {
		log.Printf("%s: error rendering field: %s (session=%s)", r.URL.Path, err.Error(), sess.id)
	}
}

// POST /ui/cell/{id}: toggle the pending mark of one cell.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	ids := r.PathValue("id")
	id, err := strconv.Atoi(ids)
	if err != nil {
		log.Printf("/ui/cell: error id is not integer: %s (session=%s)", ids, sess.id)
		http.Error(w, "invalid cell id", http.StatusBadRequest)
		return
	}

	if _, err := sess.ctrl.Click(id); err != nil {
		if errors.Is(err, ErrCellOutOfRange) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cell, _ := sess.view.cell(id)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "cell", cell); err != nil {
		log.Printf("/ui/cell: error rendering cell %d: %s (session=%s)", id, err.Error(), sess.id)
	}
}
