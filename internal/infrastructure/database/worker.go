package database

import (
	"context"
	"runtime"
)

// message is the task envelope carried by a worker queue: either a closure to
// execute against the worker's connection, or a request to stop.
type message struct {
	execute func(conn *Conn)
	close   bool
}

// closeMessage asks the worker that receives it to close its connection and exit.
var closeMessage = message{close: true}

// opener opens the connection a worker owns. It runs on the worker's own
// goroutine after the goroutine has been locked to its OS thread.
type opener func(workerCtx context.Context) (*Conn, error)

// worker owns one connection and serves envelopes from a queue until it
// receives a close message.
type worker struct {
	name  string
	queue <-chan message

	// done is closed when the worker has exited. closeErr is written before
	// done is closed and must only be read after.
	done     chan struct{}
	closeErr error
}

// newWorker creates a worker bound to queue. It does not start it.
func newWorker(name string, queue <-chan message) *worker {
	return &worker{
		name:  name,
		queue: queue,
		done:  make(chan struct{}),
	}
}

// start launches the worker goroutine. The returned channel receives exactly
// one value: nil once the connection is live, or the setup error. A worker
// whose setup fails has already exited when the error is delivered.
func (w *worker) start(open opener) <-chan error {
	ready := make(chan error, 1)
	go w.run(open, ready)
	return ready
}

// finished reports whether the worker has exited.
func (w *worker) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// run is the worker loop. The goroutine stays locked to one OS thread for the
// lifetime of its connection.
func (w *worker) run(open opener, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := open(workerCtx)
	if err != nil {
		ready <- err
		return
	}
	ready <- nil

	for msg := range w.queue {
		if msg.close {
			w.closeErr = conn.close()
			return
		}
		msg.execute(conn)
	}

	// Queues are never closed by the handle; this only runs if one is.
	w.closeErr = conn.close()
}
