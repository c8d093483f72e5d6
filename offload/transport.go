package offload

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleSession is returned by a worker that receives a request without
	// a snapshot for a volume generation it does not hold.  The coordinator
	// treats it like any other transport failure and extracts locally.
	ErrStaleSession = errors.New("worker does not hold this volume generation; snapshot required")

	// ErrNoWorker is returned when a request reaches a process that has no
	// worker serving.
	ErrNoWorker = errors.New("no extraction worker is running")

	// ErrWorkerRunning guards against a second worker in the same process.
	ErrWorkerRunning = errors.New("an extraction worker is already running in this process")
)

// Transport carries one serialized extraction request to a worker and returns
// the serialized reply.  Ownership of the payload moves to the transport.
type Transport interface {
	Submit(payload []byte) ([]byte, error)
	Close() error
}

// TransportFactory dials one worker.  The coordinator calls it lazily, once
// per pool slot, and again after the pool has been retired.
type TransportFactory func(addr string) (Transport, error)

// TransportError marks a failure of the offload path itself, as opposed to a
// failure of the extraction.  Coordinators absorb these by falling back to
// local extraction, so they surface only in logs.
type TransportError struct {
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("offload transport %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
