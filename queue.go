package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	bolt "go.etcd.io/bbolt"
)

// Queue is the step history. Each step holds the rendered event that
// announces it; subscribers replay everything after the step they already
// have and then wait for new ones.
type Queue struct {
	path    string
	db      *bolt.DB
	cond    *sync.Cond
	maxStep int64
}

const (
	bucketName = "steps"
	keepSteps  = 1000
)

var errStepMissing = errors.New("step no longer in history")

func newQueue(path string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open step history %s: %w", path, err)
	}

	var maxStep int64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); k != nil {
			maxStep = int64(binary.BigEndian.Uint64(k))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init step history: %w", err)
	}

	lock := new(deadlock.Mutex)
	cond := sync.NewCond(lock)

	return &Queue{
		path:    path,
		db:      db,
		cond:    cond,
		maxStep: maxStep,
	}, nil
}

func stepID(step int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(step))
}

func (q *Queue) putStep(step int64, event []byte) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if err := b.Put(stepID(step), event); err != nil {
			return err
		}

		// deleting while iterating skips keys in bolt, collect first
		oldest := step - keepSteps
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && int64(binary.BigEndian.Uint64(k)) <= oldest; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	q.cond.L.Lock()
	if step > q.maxStep {
		q.maxStep = step
	}
	q.cond.L.Unlock()

	return nil
}

func (q *Queue) getStep(step int64) ([]byte, error) {
	var event []byte
	err := q.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get(stepID(step))
		if v == nil {
			return errStepMissing
		}
		event = append([]byte(nil), v...)
		return nil
	})
	return event, err
}

func (q *Queue) PushStep(step int64, event []byte) error {
	if err := q.putStep(step, event); err != nil {
		return err
	}

	q.cond.Broadcast()

	return nil
}

// MaxStep returns the newest step in the history.
func (q *Queue) MaxStep() int64 {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return q.maxStep
}

// Steps streams every event after currentStep until ctx is done. The channel
// is closed when the subscriber falls behind the retained history.
func (q *Queue) Steps(ctx context.Context, currentStep int64) <-chan []byte {
	ch := make(chan []byte)
	stop := context.AfterFunc(ctx, func() {
		q.cond.L.Lock()
		q.cond.Broadcast()
		q.cond.L.Unlock()
	})

	go func() {
		defer close(ch)
		defer stop()
		nextStep := currentStep + 1
		for {
			for {
				q.cond.L.Lock()
				maxStep := q.maxStep
				q.cond.L.Unlock()

				if maxStep < nextStep {
					break
				}

				event, err := q.getStep(nextStep)
				if err != nil {
					log.Printf("error in getStep(%d): %s (subscriber exited)\n", nextStep, err.Error())
					return
				}
				nextStep++

				select {
				case <-ctx.Done():
					return
				case ch <- event:
				}
			}

			q.cond.L.Lock()
			for q.maxStep < nextStep {
				if ctx.Err() != nil {
					q.cond.L.Unlock()
					return
				}
				q.cond.Wait()
			}
			q.cond.L.Unlock()
		}
	}()

	return ch
}

// Rewind drops the whole history and makes step the newest one, so
// subscribers starting at step only see steps pushed afterwards.
func (q *Queue) Rewind(step int64) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return fmt.Errorf("rewind step history: %w", err)
	}

	q.cond.L.Lock()
	q.maxStep = step
	q.cond.L.Unlock()
	q.cond.Broadcast()

	return nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// DeleteAllSteps closes the history and removes its file.
func (q *Queue) DeleteAllSteps() error {
	if err := q.db.Close(); err != nil {
		return err
	}
	return os.Remove(q.path)
}
