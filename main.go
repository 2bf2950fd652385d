package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
)

type stepEvent struct {
	step  int64
	event []byte
}

// stepSink receives rendered step events in step order.
type stepSink interface {
	PushStep(step int64, event []byte) error
}

// stepBacklog hands rendered steps from the game to the pushing goroutine.
// Adding never blocks, so a slow history does not hold up the game lock.
type stepBacklog struct {
	lock   deadlock.Mutex
	events []stepEvent
	wake   chan struct{}
}

func (b *stepBacklog) add(ev stepEvent) {
	b.lock.Lock()
	b.events = append(b.events, ev)
	b.lock.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *stepBacklog) take() []stepEvent {
	b.lock.Lock()
	defer b.lock.Unlock()

	events := b.events
	b.events = nil
	return events
}

// publishSteps renders every game step into a "grid" event and appends it to
// the step history. The returned function detaches it from the game and
// waits until every rendered step was pushed.
func publishSteps(game *Game, sink stepSink, templates *template.Template) func() {
	backlog := &stepBacklog{wake: make(chan struct{}, 1)}

	unregister := game.OnStep(func(grid Grid, step int64) {
		var eventBuilder bytes.Buffer
		err := writeEvent(&eventBuilder, "grid", func(w io.Writer) error {
			return templates.ExecuteTemplate(w, "preview", newFieldData(layoutCells(grid), step))
		})
		if err != nil {
			log.Printf("error rendering step %d: %s\n", step, err.Error())
			return
		}

		ev := eventBuilder.Bytes()
		log.Printf("pushing step %d (%s, %d enabled)\n", step, humanize.Bytes(uint64(len(ev))), grid.Enabled())
		backlog.add(stepEvent{step: step, event: ev})
	})

	push := func() {
		for _, ev := range backlog.take() {
			if err := sink.PushStep(ev.step, ev.event); err != nil {
				log.Printf("error when pushing step %d: %s\n", ev.step, err.Error())
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range backlog.wake {
			push()
		}
		push()
	}()

	return func() {
		// no callback runs once unregister returned
		unregister()
		close(backlog.wake)
		<-done
	}
}

// initQueue opens the step history and lines it up with the game's step.
// A history that does not end at step (another store kind, a deleted grid)
// would replay events of a different game, so it is dropped.
func initQueue(cfg Config, step int64) (*Queue, func(), error) {
	if cfg.Store != "memory" {
		q, err := newQueue(filepath.Join(cfg.DataDir, "steps.db"))
		if err != nil {
			return nil, nil, err
		}
		if maxStep := q.MaxStep(); maxStep != step {
			log.Printf("step history ends at step %d but the game is at step %d, dropping history\n", maxStep, step)
			if err := q.Rewind(step); err != nil {
				q.Close()
				return nil, nil, err
			}
		}
		return q, func() { q.Close() }, nil
	}

	// an in-memory game starts at step 0, so its history must not outlive it
	dir, err := os.MkdirTemp("", "queue")
	if err != nil {
		return nil, nil, err
	}
	q, err := newQueue(filepath.Join(dir, "steps.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return q, func() {
		q.DeleteAllSteps()
		os.RemoveAll(dir)
	}, nil
}

func serve(ctx context.Context, cfg Config) error {
	store, err := openStore(cfg.Store, cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	game, err := NewGame(ctx, cfg.Cols, cfg.Rows, store)
	if err != nil {
		return err
	}

	_, step := game.Snapshot()
	q, closeQueue, err := initQueue(cfg, step)
	if err != nil {
		return fmt.Errorf("error creating queue: %w", err)
	}
	defer closeQueue()

	templates, err := parseTemplates()
	if err != nil {
		return fmt.Errorf("cannot parse templates: %w", err)
	}

	stopPublishing := publishSteps(game, q, templates)
	defer stopPublishing()

	newAPI := func() GridAPI { return NewLocalAPI(game) }
	if cfg.APIURL != "" {
		if _, err := NewClient(cfg.APIURL, cfg.RequestTimeout); err != nil {
			return err
		}
		newAPI = func() GridAPI {
			c, _ := NewClient(cfg.APIURL, cfg.RequestTimeout)
			return c
		}
	}
	sessions := newSessionStore(newAPI, cfg.SessionTTL)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(game, q, templates, sessions, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("Ready. Listening on %s.\n", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("Stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// event streams never finish on their own
		if err := server.Shutdown(shutdownCtx); err != nil {
			return server.Close()
		}
		return nil
	})

	return g.Wait()
}

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		log.Fatalln("error: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	if cfg.Connect != "" {
		err = runTUI(ctx, cfg)
	} else {
		err = serve(ctx, cfg)
	}
	if err != nil {
		log.Fatalln("error: ", err)
	}
}
