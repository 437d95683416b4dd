package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var ErrWorkerClosed = errors.New("db worker closed")

// TxFn runs inside one write transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker is the single writer: every write transaction runs on its
// goroutine, in submission order.
type Worker struct {
	db    *sql.DB
	queue chan writeJob
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// queueDepth bounds writes waiting behind the current transaction.
const queueDepth = 64

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:    db,
		queue: make(chan writeJob, queueDepth),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Close lets queued writes finish, then stops the worker. Later calls
// only wait.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

// Do submits fn and waits for its outcome. If ctx ends first Do returns
// ctx.Err(); the write may still complete afterwards.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	j := writeJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	if err := w.submit(j); err != nil {
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) submit(j writeJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerClosed
	}
	select {
	case w.queue <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for j := range w.queue {
		j.result <- w.exec(j)
	}
}

// exec runs one job. A panicking TxFn is rolled back and reported as an
// error so the writer keeps serving.
func (w *Worker) exec(j writeJob) (err error) {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("db worker: write panicked: %v", r)
		}
	}()

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
