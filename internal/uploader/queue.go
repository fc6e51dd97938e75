// Package uploader delivers encoder output files to remote object storage.
//
// Delivery order matters: a playlist may reference segments that must already
// be visible to a reader by the time the playlist itself becomes visible.
// The queue therefore runs exactly one worker and executes tasks strictly
// FIFO across both renditions.
package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/metrics"
)

// Task is one file to deliver to remote storage.
type Task struct {
	LocalPath    string
	RemoteKey    string
	ContentType  string
	CacheControl string
}

// ObjectPutter stores a single object. Implementations must be safe for use
// from the single worker goroutine.
type ObjectPutter interface {
	Put(ctx context.Context, task Task, body io.Reader) error
}

const (
	defaultQueueSize    = 256
	retryInitialBackoff = 500 * time.Millisecond
	retryMaxTries       = 4 // first attempt + 3 retries
)

// Queue is a bounded FIFO upload queue with a single consumer.
type Queue struct {
	putter ObjectPutter
	tasks  chan Task
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger

	retryInitial time.Duration
	retryTries   uint
}

// NewQueue starts the worker goroutine. size <= 0 selects the default.
func NewQueue(putter ObjectPutter, size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &Queue{
		putter:       putter,
		tasks:        make(chan Task, size),
		done:         make(chan struct{}),
		log:          xlog.WithComponent("uploader"),
		retryInitial: retryInitialBackoff,
		retryTries:   retryMaxTries,
	}
	go q.run()
	return q
}

// Enqueue appends a task. It never blocks the caller: when the buffer is
// full the task is dropped and logged, so a slow remote cannot stall the
// watcher or the encoder.
func (q *Queue) Enqueue(t Task) bool {
	select {
	case q.tasks <- t:
		metrics.UploadQueueDepth.Set(float64(len(q.tasks)))
		return true
	default:
		q.log.Error().
			Str(xlog.FieldRemoteKey, t.RemoteKey).
			Msg("upload queue full, dropping task")
		metrics.IncUpload(false)
		return false
	}
}

// Close stops accepting tasks, drains the queue and waits for the worker.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.tasks)
	})
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for t := range q.tasks {
		metrics.UploadQueueDepth.Set(float64(len(q.tasks)))
		if err := q.process(t); err != nil {
			// A failed task is dropped; it must not poison later tasks.
			q.log.Error().Err(err).
				Str(xlog.FieldPath, t.LocalPath).
				Str(xlog.FieldRemoteKey, t.RemoteKey).
				Msg("upload failed, task dropped")
			metrics.IncUpload(false)
			continue
		}
		metrics.IncUpload(true)
		q.log.Info().
			Str(xlog.FieldRemoteKey, t.RemoteKey).
			Msg("uploaded")
	}
}

// process uploads one task with bounded exponential backoff. Retries happen
// inside the single worker so later tasks never overtake a retrying one.
func (q *Queue) process(t Task) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.retryInitial

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, q.attempt(t)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(q.retryTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.UploadRetriesTotal.Inc()
			q.log.Warn().Err(err).
				Str(xlog.FieldRemoteKey, t.RemoteKey).
				Dur("retry_in", next).
				Msg("upload attempt failed, retrying")
		}),
	)
	return err
}

func (q *Queue) attempt(t Task) error {
	f, err := os.Open(t.LocalPath) // #nosec G304 -- paths come from our own watcher
	if err != nil {
		// The file can legitimately vanish (sliding-window segment pruning);
		// retrying will not bring it back.
		return backoff.Permanent(fmt.Errorf("open %s: %w", t.LocalPath, err))
	}
	defer func() { _ = f.Close() }()

	return q.putter.Put(context.Background(), t, f)
}
