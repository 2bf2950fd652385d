package main

import (
	"compress/zlib"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
)

const maxPatchSize = 64 << 10

// Server serves the grid API, its event stream and the browser host.
type Server struct {
	mux        *http.ServeMux
	game       *Game
	queue      *Queue
	templates  *template.Template
	sessions   *sessionStore
	corsOrigin string
	clientID   atomic.Int32
}

func NewServer(game *Game, queue *Queue, templates *template.Template, sessions *sessionStore, corsOrigin string) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		game:       game,
		queue:      queue,
		templates:  templates,
		sessions:   sessions,
		corsOrigin: corsOrigin,
	}
	s.routes()
	return s
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Parse(templatesSource)
}

func (s *Server) routes() {
	// grid API
	s.mux.HandleFunc("GET /game", s.handleGetGame)
	s.mux.HandleFunc("PATCH /game", s.handlePatchGame)
	s.mux.HandleFunc("UPDATE /game", s.handlePatchGame) // first client version
	s.mux.HandleFunc("POST /game", s.handlePatchGame)   // clients limited to GET and POST
	s.mux.HandleFunc("DELETE /reset", s.handleReset)
	s.mux.HandleFunc("OPTIONS /game", s.handlePreflight)
	s.mux.HandleFunc("OPTIONS /reset", s.handlePreflight)
	s.mux.HandleFunc("GET /game/events", s.handleEvents)

	// browser host
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /ui/field", s.handleField)
	s.mux.HandleFunc("POST /ui/cell/{id}", s.handleCell)
	s.mux.HandleFunc("POST /ui/save", s.handleSave)
	s.mux.HandleFunc("POST /ui/reset", s.handleUIReset)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if s.corsOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Add("Vary", "Origin")
	}
	s.mux.ServeHTTP(w, r)
}

// GET /game: current grid.
func (s *Server) handleGetGame(w http.ResponseWriter, _ *http.Request) {
	grid, _ := s.game.Snapshot()
	writeJSON(w, http.StatusOK, grid)
}

// PATCH /game: body is a JSON array of flattened cell indices to flip.
func (s *Server) handlePatchGame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPatchSize)

	var ids []int
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		log.Printf("/game: error decoding patch: %s\n", err.Error())
		jsonError(w, "body must be a JSON array of cell indices", http.StatusBadRequest)
		return
	}

	grid, err := s.game.Toggle(r.Context(), ids)
	if errors.Is(err, ErrCellOutOfRange) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("/game: error toggling %d cells: %s\n", len(ids), err.Error())
		jsonError(w, "could not update grid", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, grid)
}

// DELETE /reset: replace the grid with a fresh one.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	grid, err := s.game.Reset(r.Context())
	if err != nil {
		log.Printf("/reset: error: %s\n", err.Error())
		jsonError(w, "could not reset grid", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, PATCH, UPDATE, POST, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

// GET /game/events: server-sent events, one "grid" event per step.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	myClientID := s.clientID.Add(1)
	log.Printf("/game/events request received (clientID=%d)\n", myClientID)
	defer log.Printf("/game/events request ended (clientID=%d)\n", myClientID)

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")

	var out io.Writer = w
	flush := flusher.Flush
	if strings.Contains(r.Header.Get("Accept-Encoding"), "deflate") {
		w.Header().Set("Content-Encoding", "deflate")
		zw := zlib.NewWriter(w)
		defer zw.Close()
		out = zw
		flush = func() {
			zw.Flush()
			flusher.Flush()
		}
	}
	w.WriteHeader(http.StatusOK)

	grid, currentStep := s.game.Snapshot()
	err := writeEvent(out, "grid", func(w io.Writer) error {
		return s.templates.ExecuteTemplate(w, "preview", newFieldData(layoutCells(grid), currentStep))
	})
	flush()
	if err != nil {
		log.Printf("/game/events error: %s (clientID=%d)\n", err.Error(), myClientID)
		return
	}

	for event := range s.queue.Steps(r.Context(), currentStep) {
		if _, err := out.Write(event); err != nil {
			return
		}
		flush()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error writing json response: %s\n", err.Error())
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
