/*
Package cron runs periodic background tasks of the custody daemon, such as
expiring stale proposals and reconciling executions with an unknown outcome.

The next run of every task is kept in a time ordered queue in a KV store.
With a persistent store a restarted daemon continues the schedule where the
previous process left it.
*/
package cron

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
)

// Task is a unit of background work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (fn TaskFunc) Run(ctx context.Context) error { return fn(ctx) }

const granularity = time.Second

var queuePrefix = []byte("_cron:runat:")

// Scheduler runs registered tasks when they are due.
type Scheduler struct {
	mu    sync.Mutex
	db    store.KVStore
	tasks map[string]registered
}

type registered struct {
	task  Task
	every time.Duration
}

// NewScheduler returns a scheduler keeping its queue in given store.
func NewScheduler(db store.KVStore) *Scheduler {
	return &Scheduler{
		db:    db,
		tasks: make(map[string]registered),
	}
}

// Register adds a task run every interval. If the queue already holds a run
// of a task with this name, it is kept. Otherwise the first run is due
// immediately.
func (s *Scheduler) Register(ctx context.Context, name string, every time.Duration, t Task) error {
	if name == "" {
		return errors.Wrap(errors.ErrEmpty, "task name")
	}
	if every < granularity {
		return errors.Wrapf(errors.ErrValidation, "interval of %q must be at least %s", name, granularity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "task %q", name)
	}
	s.tasks[name] = registered{task: t, every: every}

	queued, err := s.queued(name)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}
	return put(s.db, superpool.Now(ctx), name)
}

// queued returns true if a run of the named task is in the queue.
func (s *Scheduler) queued(name string) (bool, error) {
	it, err := s.db.Iterator(queuePrefix, queueKey(time.Unix(0, 1<<63-1)))
	if err != nil {
		return false, errors.Wrap(err, "queue iterator")
	}
	defer it.Release()
	for {
		_, value, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			return false, nil
		} else if err != nil {
			return false, errors.Wrap(err, "queue")
		}
		if string(value) == name {
			return true, nil
		}
	}
}

// Tick runs every task that is due, in the order they were due, and queues
// its next run. A failing task is logged and rescheduled as usual. An error
// is returned only when the queue cannot be accessed. Tick returns the
// number of task runs.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := superpool.GetLogger(ctx).With("module", "cron")
	var runs int
	for {
		now := superpool.Now(ctx)
		name, err := pop(s.db, now)
		switch {
		case errors.ErrEmpty.Is(err):
			return runs, nil
		case err != nil:
			return runs, errors.Wrap(err, "cannot pop queue")
		}

		r, ok := s.tasks[name]
		if !ok {
			l.Info("dropping run of unknown task", "task", name)
			continue
		}
		started := time.Now()
		if err := r.task.Run(ctx); err != nil {
			l.Error("task failed", "task", name, "err", err)
		} else {
			l.Debug("task done", "task", name, "took", time.Since(started))
		}
		runs++
		if err := put(s.db, now.Add(r.every), name); err != nil {
			return runs, errors.Wrapf(err, "reschedule %q", name)
		}
	}
}

// Run calls Tick every resolution until the context is done.
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) error {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// put queues a run of the named task at given time. Due to the
// implementation details, the task is guaranteed to run after given time,
// but not exactly at given time.
//
// If another run is already scheduled for the exact same time, this run is
// delayed until the next free slot.
func put(db store.KVStore, runAt time.Time, name string) error {
	runAt = runAt.Round(granularity)
	for {
		key := queueKey(runAt)
		if ok, err := db.Has(key); err != nil {
			return errors.Wrap(err, "cannot check key existence")
		} else if ok {
			runAt = runAt.Add(granularity)
			continue
		}
		if err := db.Set(key, []byte(name)); err != nil {
			return errors.Wrap(err, "cannot update queue")
		}
		return nil
	}
}

// pop removes from the queue the earliest run that reached its execution
// time and returns the task name. It returns ErrEmpty if no run is due.
func pop(db store.KVStore, now time.Time) (string, error) {
	it, err := db.Iterator(queuePrefix, queueKey(now.Add(time.Nanosecond)))
	if err != nil {
		return "", errors.Wrap(err, "queue iterator")
	}
	key, value, err := it.Next()
	it.Release()
	if errors.ErrIteratorDone.Is(err) {
		return "", errors.Wrap(errors.ErrEmpty, "nothing due")
	} else if err != nil {
		return "", err
	}
	if err := db.Delete(key); err != nil {
		return "", errors.Wrap(err, "cannot remove from queue")
	}
	return string(value), nil
}

func queueKey(t time.Time) []byte {
	rawTime := make([]byte, 8)
	binary.BigEndian.PutUint64(rawTime, uint64(t.UnixNano()))
	return append(append([]byte(nil), queuePrefix...), rawTime...)
}
