/*
	This file implements the worker wire protocol using gorpc.
*/

package offload

import (
	"fmt"
	"sync/atomic"

	"github.com/janelia-flyem/isovol/surface"
	"github.com/valyala/gorpc"
)

const (
	// DefaultAddress is where a worker listens when no address is configured.
	DefaultAddress = "localhost:8002"

	// methodExtract routes extraction requests on the shared dispatcher.
	methodExtract = "volume.Extract"
)

var (
	// dispatcher provides wrapper to route calls.  Client and worker sides
	// share it so func clients validate against the same method set.
	dispatcher *gorpc.Dispatcher

	// running is the worker serving in this process, if any.
	running atomic.Pointer[Worker]
)

func init() {
	d := gorpc.NewDispatcher()
	d.AddFunc(methodExtract, func(payload []byte) ([]byte, error) {
		w := running.Load()
		if w == nil {
			return nil, ErrNoWorker
		}
		return w.Handle(payload)
	})
	dispatcher = d
}

// ExtractRequest is the enveloped wire form of one extraction call.
// Snapshot is present only when the coordinator believes the worker has not
// seen this (VolumeID, Generation) pair.
type ExtractRequest struct {
	VolumeID   string
	Generation uint64
	Snapshot   []byte
	Request    surface.Request
}

// ExtractReply carries the extracted surface in its own envelope.
type ExtractReply struct {
	Surface []byte
}

// NewGorpcTransport dials a worker over TCP.  gorpc maintains the connection
// in the background, so dial failures surface on Submit rather than here.
func NewGorpcTransport(addr string) (Transport, error) {
	c := gorpc.NewTCPClient(addr)
	c.Start()
	dc := dispatcher.NewFuncClient(c)
	if dc == nil {
		c.Stop()
		return nil, fmt.Errorf("can't create dispatcher client for %s", addr)
	}
	return &gorpcTransport{addr: addr, c: c, dc: dc}, nil
}

type gorpcTransport struct {
	addr string
	c    *gorpc.Client
	dc   *gorpc.DispatcherClient
}

func (t *gorpcTransport) Submit(payload []byte) ([]byte, error) {
	resp, err := t.dc.Call(methodExtract, payload)
	if err != nil {
		return nil, err
	}
	reply, ok := resp.([]byte)
	if !ok {
		return nil, fmt.Errorf("worker %s returned %T instead of bytes", t.addr, resp)
	}
	return reply, nil
}

func (t *gorpcTransport) Close() error {
	t.c.Stop()
	return nil
}
