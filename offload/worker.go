package offload

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/valyala/gorpc"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/surface"
	"github.com/janelia-flyem/isovol/volume"
)

// insideWorker is set while a worker serves in this process, so a nested
// coordinator extracts synchronously instead of offloading to itself.
var insideWorker atomic.Bool

// InsideWorker reports whether this process is serving as an extraction
// worker.
func InsideWorker() bool { return insideWorker.Load() }

func markInsideWorker(v bool) { insideWorker.Store(v) }

// session is the worker-side state for one volume: an extractor over the
// reconstructed samples.  Replaced sessions are dropped, not disposed, so
// extractions already running on them finish against their own samples.
type session struct {
	ext        *surface.Extractor
	generation uint64
}

// Worker answers extraction requests for coordinator processes.  It holds one
// session per volume, replaced whenever the volume's generation advances, and
// an optional reply cache so identical requests are answered without
// re-extracting.
type Worker struct {
	mu       sync.RWMutex
	sessions map[string]*session
	server   *gorpc.Server

	cache    *freecache.Cache
	attempts uint64
	hits     uint64
}

// NewWorker returns a worker with a reply cache of the given byte capacity.
// A non-positive capacity disables caching.
func NewWorker(cacheBytes int) *Worker {
	w := &Worker{sessions: make(map[string]*session)}
	if cacheBytes > 0 {
		w.cache = freecache.NewCache(cacheBytes)
		isovol.Infof("Created reply cache of ~ %d MB for extraction worker.\n", cacheBytes>>20)
	}
	return w
}

// Serve runs the worker on the given TCP address until Stop.  Only one worker
// may serve per process.
func (w *Worker) Serve(addr string) error {
	if addr == "" {
		addr = DefaultAddress
	}
	if !running.CompareAndSwap(nil, w) {
		return ErrWorkerRunning
	}
	markInsideWorker(true)
	gorpc.SetErrorLogger(isovol.Errorf)

	s := gorpc.NewTCPServer(addr, dispatcher.NewHandlerFunc())
	w.mu.Lock()
	w.server = s
	w.mu.Unlock()

	isovol.Infof("Extraction worker listening on %s\n", addr)
	return s.Serve()
}

// Stop halts the worker and logs its cache performance.
func (w *Worker) Stop() {
	w.mu.Lock()
	s := w.server
	w.server = nil
	w.mu.Unlock()
	if s != nil {
		s.Stop()
	}
	if running.CompareAndSwap(w, nil) {
		markInsideWorker(false)
	}

	attempts := atomic.LoadUint64(&w.attempts)
	hits := atomic.LoadUint64(&w.hits)
	var hitrate float64
	if attempts > 0 {
		hitrate = (float64(hits) / float64(attempts)) * 100.0
	}
	isovol.Infof("Worker reply cache: got %d hits on %d attempts (%5.2f)\n", hits, attempts, hitrate)
}

// Handle answers one enveloped ExtractRequest with an enveloped ExtractReply.
// It is the dispatcher endpoint, exported so in-process transports can bypass
// the network.
func (w *Worker) Handle(payload []byte) ([]byte, error) {
	var req ExtractRequest
	if err := isovol.Deserialize(payload, &req); err != nil {
		return nil, fmt.Errorf("undecodable extraction request: %v", err)
	}

	atomic.AddUint64(&w.attempts, 1)
	key := replyKey(&req)
	if w.cache != nil {
		b, err := w.cache.Get(key)
		if err == nil {
			atomic.AddUint64(&w.hits, 1)
			return b, nil
		}
		if err != freecache.ErrNotFound {
			isovol.Errorf("reply cache get: %v\n", err)
		}
	}

	s, err := w.session(&req)
	if err != nil {
		return nil, err
	}
	surf, err := s.ext.Extract(req.Request)
	if err != nil {
		return nil, err
	}
	sb, err := surf.Serialize(isovol.Snappy, isovol.CRC32)
	if err != nil {
		return nil, err
	}
	reply, err := isovol.Serialize(&ExtractReply{Surface: sb}, isovol.Uncompressed, isovol.NoChecksum)
	if err != nil {
		return nil, err
	}
	if w.cache != nil {
		if err := w.cache.Set(key, reply, 0); err != nil {
			isovol.Errorf("reply cache set: %v\n", err)
		}
	}
	return reply, nil
}

// session returns the live session for the request's volume, building one
// from the carried snapshot when the worker has not seen this generation.
func (w *Worker) session(req *ExtractRequest) (*session, error) {
	w.mu.RLock()
	s := w.sessions[req.VolumeID]
	w.mu.RUnlock()
	if s != nil && s.generation == req.Generation {
		return s, nil
	}
	if req.Snapshot == nil {
		return nil, ErrStaleSession
	}

	snap, err := volume.DeserializeSnapshot(req.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("bad volume snapshot: %v", err)
	}
	vol, err := volume.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	ns := &session{ext: surface.NewExtractor(vol), generation: req.Generation}

	w.mu.Lock()
	switch cur := w.sessions[req.VolumeID]; {
	case cur != nil && cur.generation == req.Generation:
		// Lost a race with an identical request.
		ns = cur
	case cur != nil && cur.generation > req.Generation:
		w.mu.Unlock()
		return nil, ErrStaleSession
	default:
		w.sessions[req.VolumeID] = ns
	}
	w.mu.Unlock()

	isovol.Debugf("Worker session for volume %q at generation %d\n", snap.Name, req.Generation)
	return ns, nil
}

// numSessions is a test hook.
func (w *Worker) numSessions() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// replyKey digests the request identity the reply depends on.
func replyKey(req *ExtractRequest) []byte {
	r := req.Request
	b := make([]byte, 0, len(req.VolumeID)+56)
	b = append(b, req.VolumeID...)
	b = appendUint64(b, req.Generation)
	b = appendUint64(b, math.Float64bits(r.Isolevel))
	b = appendUint64(b, uint64(int64(r.Smooth)))
	b = appendUint64(b, math.Float64bits(r.Center.X))
	b = appendUint64(b, math.Float64bits(r.Center.Y))
	b = appendUint64(b, math.Float64bits(r.Center.Z))
	b = appendUint64(b, math.Float64bits(r.Size))
	return b
}

func appendUint64(b []byte, v uint64) []byte {
	var x [8]byte
	binary.LittleEndian.PutUint64(x[:], v)
	return append(b, x[:]...)
}
