/*
	Package offload ships extraction work to worker processes over RPC.

	A Coordinator binds one volume and keeps a small transport pool to the
	configured workers.  The first dispatch of a volume generation carries a
	serialized snapshot; later dispatches send only the request.  Offload is
	strictly an optimization: any failure in the path, from dialing to a stale
	worker session, is logged and absorbed by extracting locally, so callers
	see extraction errors and nothing else.
*/
package offload

import (
	"sync"
	"sync/atomic"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/surface"
	"github.com/janelia-flyem/isovol/volume"
)

// PoolSize is the number of transports a coordinator keeps.  Configured
// worker addresses are assigned to slots round-robin, so a single worker
// gets this many connections.
const PoolSize = 2

// Result is the one message delivered per ExtractAsync call.
type Result struct {
	Surface *surface.Surface
	Err     error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the worker addresses to offload to.  Without any, the
// coordinator always extracts locally.
func WithWorkers(addrs ...string) Option {
	return func(c *Coordinator) { c.addrs = addrs }
}

// WithTransportFactory overrides how workers are dialed.  Tests inject
// in-process and failing transports through this.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Coordinator) { c.factory = f }
}

// workerSlot is one pooled transport plus what its worker is known to hold.
type workerSlot struct {
	addr string
	t    Transport

	mu   sync.Mutex
	seen map[string]uint64
}

// Coordinator runs extractions for one volume, remotely when it can and
// locally when it must.
type Coordinator struct {
	ext     *surface.Extractor
	addrs   []string
	factory TransportFactory

	next atomic.Uint64

	mu        sync.Mutex
	pool      []*workerSlot
	snapGen   uint64
	snapBytes []byte
}

// NewCoordinator binds a coordinator to the volume.  A release hook retires
// the pool whenever the volume's data is replaced or disposed, so a worker
// never answers from retired samples.
func NewCoordinator(v *volume.Volume, opts ...Option) *Coordinator {
	c := &Coordinator{
		ext:     surface.NewExtractor(v),
		factory: NewGorpcTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	v.RegisterOnRelease(c.releasePool)
	return c
}

// Extractor exposes the bound local extractor.
func (c *Coordinator) Extractor() *surface.Extractor { return c.ext }

// ExtractAsync runs one extraction and delivers exactly one Result on the
// returned channel.  The channel is buffered, so the caller may collect it
// whenever convenient.  Calls in flight at the same time complete in any
// order.
func (c *Coordinator) ExtractAsync(r surface.Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		s, err := c.dispatch(r)
		ch <- Result{Surface: s, Err: err}
	}()
	return ch
}

// Close retires the transport pool.  The coordinator remains usable; a later
// call rebuilds the pool.
func (c *Coordinator) Close() error {
	c.releasePool()
	return nil
}

func (c *Coordinator) dispatch(r surface.Request) (*surface.Surface, error) {
	if c.factory == nil || len(c.addrs) == 0 || InsideWorker() {
		return c.ext.Extract(r)
	}
	slot := c.slot()
	if slot == nil {
		return c.ext.Extract(r)
	}
	s, err := c.submit(slot, r)
	if err != nil {
		isovol.Warningf("Offload failed, extracting locally: %v\n", err)
		return c.ext.Extract(r)
	}
	return s, nil
}

// slot returns the next pooled transport, building the pool on first use.
// A nil return means no transport could be built; the caller falls back.
func (c *Coordinator) slot() *workerSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		pool := make([]*workerSlot, 0, PoolSize)
		for i := 0; i < PoolSize; i++ {
			addr := c.addrs[i%len(c.addrs)]
			t, err := c.factory(addr)
			if err != nil {
				isovol.Warningf("Offload pool unavailable: %v\n",
					&TransportError{Addr: addr, Err: err})
				for _, s := range pool {
					s.t.Close()
				}
				return nil
			}
			pool = append(pool, &workerSlot{addr: addr, t: t, seen: make(map[string]uint64)})
		}
		c.pool = pool
	}
	i := c.next.Add(1)
	return c.pool[int((i-1)%uint64(len(c.pool)))]
}

// submit runs one request over one slot.  Every failure comes back as a
// TransportError for the caller to absorb.
func (c *Coordinator) submit(slot *workerSlot, r surface.Request) (*surface.Surface, error) {
	v := c.ext.Volume()
	id, gen := v.UUID(), v.Generation()
	req := &ExtractRequest{VolumeID: id, Generation: gen, Request: r}

	slot.mu.Lock()
	if slot.seen[id] != gen {
		snap, err := c.snapshotBytes(gen)
		if err != nil {
			slot.mu.Unlock()
			return nil, &TransportError{Addr: slot.addr, Err: err}
		}
		req.Snapshot = snap
	}
	payload, err := isovol.Serialize(req, isovol.Uncompressed, isovol.NoChecksum)
	if err != nil {
		slot.mu.Unlock()
		return nil, &TransportError{Addr: slot.addr, Err: err}
	}
	reply, err := slot.t.Submit(payload)
	if err != nil {
		// The worker behind a failed call may have restarted and lost its
		// sessions, so the next dispatch on this slot resends snapshots.
		slot.seen = make(map[string]uint64)
		slot.mu.Unlock()
		return nil, &TransportError{Addr: slot.addr, Err: err}
	}
	slot.seen[id] = gen
	slot.mu.Unlock()

	var rep ExtractReply
	if err := isovol.Deserialize(reply, &rep); err != nil {
		return nil, &TransportError{Addr: slot.addr, Err: err}
	}
	s, err := surface.DeserializeSurface(rep.Surface)
	if err != nil {
		return nil, &TransportError{Addr: slot.addr, Err: err}
	}
	return s, nil
}

// snapshotBytes serializes the volume once per generation and reuses the
// bytes for every slot's first dispatch.
func (c *Coordinator) snapshotBytes(gen uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapBytes != nil && c.snapGen == gen {
		return c.snapBytes, nil
	}
	b, err := c.ext.Volume().Snapshot().Serialize(isovol.Snappy, isovol.CRC32)
	if err != nil {
		return nil, err
	}
	c.snapBytes, c.snapGen = b, gen
	return b, nil
}

func (c *Coordinator) releasePool() {
	c.mu.Lock()
	pool := c.pool
	c.pool = nil
	c.snapBytes = nil
	c.mu.Unlock()
	for _, s := range pool {
		if err := s.t.Close(); err != nil {
			isovol.Errorf("Closing offload transport %s: %v\n", s.addr, err)
		}
	}
}
