package offload

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/surface"
	"github.com/janelia-flyem/isovol/volume"
)

func slab(t *testing.T, name string, nx, ny int32) *volume.Volume {
	t.Helper()
	v := volume.New(name, "")
	n := int(nx * ny)
	data := make([]float32, 2*n)
	for i := n; i < 2*n; i++ {
		data[i] = 1
	}
	if err := v.SetData(data, nx, ny, 2, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	return v
}

// loopback hands payloads straight to a worker, recording whether each
// request carried a snapshot.
type loopback struct {
	w         *Worker
	snapshots []bool
	closed    bool
}

func (l *loopback) Submit(payload []byte) ([]byte, error) {
	var req ExtractRequest
	if err := isovol.Deserialize(payload, &req); err != nil {
		return nil, err
	}
	l.snapshots = append(l.snapshots, req.Snapshot != nil)
	return l.w.Handle(payload)
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

type failing struct{ closed bool }

func (f *failing) Submit([]byte) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (f *failing) Close() error {
	f.closed = true
	return nil
}

// snapshotStripper forwards requests with their snapshot removed, forcing the
// worker's stale-session path.
type snapshotStripper struct{ w *Worker }

func (s *snapshotStripper) Submit(payload []byte) ([]byte, error) {
	var req ExtractRequest
	if err := isovol.Deserialize(payload, &req); err != nil {
		return nil, err
	}
	req.Snapshot = nil
	stripped, err := isovol.Serialize(&req, isovol.Uncompressed, isovol.NoChecksum)
	if err != nil {
		return nil, err
	}
	return s.w.Handle(stripped)
}

func (s *snapshotStripper) Close() error { return nil }

func TestOffloadRoundTrip(t *testing.T) {
	v := slab(t, "remote", 2, 2)
	w := NewWorker(1 << 20)
	var made []*loopback
	c := NewCoordinator(v, WithWorkers("w1:8002", "w2:8002"), WithTransportFactory(
		func(addr string) (Transport, error) {
			l := &loopback{w: w}
			made = append(made, l)
			return l, nil
		}))
	defer c.Close()

	local, err := surface.NewExtractor(v).Extract(surface.Request{Isolevel: 0.5})
	if err != nil {
		t.Fatalf("local extract: %v", err)
	}

	for call := 0; call < 4; call++ {
		res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
		if res.Err != nil {
			t.Fatalf("call %d: %v", call, res.Err)
		}
		s := res.Surface
		if s.Name != "remote" || s.Isolevel != 0.5 {
			t.Fatalf("call %d came back as %q at %g", call, s.Name, s.Isolevel)
		}
		if len(s.Position) != len(local.Position) {
			t.Fatalf("call %d: %d position floats, local has %d",
				call, len(s.Position), len(local.Position))
		}
		for i := range local.Position {
			if s.Position[i] != local.Position[i] {
				t.Fatalf("call %d: position %d differs from local extraction", call, i)
			}
		}
		for i := range local.Index {
			if s.Index[i] != local.Index[i] {
				t.Fatalf("call %d: index %d differs from local extraction", call, i)
			}
		}
		for i := range local.Normal {
			if s.Normal[i] != local.Normal[i] {
				t.Fatalf("call %d: normal %d differs from local extraction", call, i)
			}
		}
	}

	if len(made) != PoolSize {
		t.Fatalf("%d transports dialed, expected %d", len(made), PoolSize)
	}
	// Each slot's first dispatch carries the snapshot, later ones do not.
	for i, l := range made {
		if len(l.snapshots) != 2 || !l.snapshots[0] || l.snapshots[1] {
			t.Errorf("slot %d snapshot pattern %v", i, l.snapshots)
		}
	}
	if n := w.numSessions(); n != 1 {
		t.Errorf("worker holds %d sessions, expected 1", n)
	}
	// Identical requests after the first are answered from the reply cache.
	if a, h := atomic.LoadUint64(&w.attempts), atomic.LoadUint64(&w.hits); a != 4 || h != 3 {
		t.Errorf("cache saw %d attempts, %d hits", a, h)
	}
}

func TestOffloadFallback(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	v := slab(t, "local", 2, 2)
	c := NewCoordinator(v, WithWorkers("dead:1"), WithTransportFactory(
		func(string) (Transport, error) { return &failing{}, nil }))
	res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil {
		t.Fatalf("fallback surfaced a transport error: %v", res.Err)
	}
	if res.Surface.VertexCount() != 4 || res.Surface.TriangleCount() != 2 {
		t.Fatalf("fallback produced %d vertices, %d triangles",
			res.Surface.VertexCount(), res.Surface.TriangleCount())
	}
	out := buf.String()
	if !strings.Contains(out, " WARNING ") || !strings.Contains(out, "connection refused") {
		t.Errorf("transport failure not warned about: %q", out)
	}
}

func TestOffloadNoWorkers(t *testing.T) {
	c := NewCoordinator(slab(t, "solo", 2, 2))
	res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil {
		t.Fatalf("local-only coordinator: %v", res.Err)
	}
	if res.Surface.VertexCount() != 4 {
		t.Fatalf("%d vertices", res.Surface.VertexCount())
	}
}

func TestInsideWorkerExtractsLocally(t *testing.T) {
	markInsideWorker(true)
	defer markInsideWorker(false)

	dials := 0
	c := NewCoordinator(slab(t, "nested", 2, 2), WithWorkers("w:1"), WithTransportFactory(
		func(string) (Transport, error) {
			dials++
			return nil, errors.New("unreachable")
		}))
	res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil {
		t.Fatalf("nested extraction: %v", res.Err)
	}
	if dials != 0 {
		t.Errorf("a worker process dialed %d transports", dials)
	}
}

func TestStaleSessionAbsorbed(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	w := NewWorker(0)
	v := slab(t, "stale", 2, 2)
	c := NewCoordinator(v, WithWorkers("w:1"), WithTransportFactory(
		func(string) (Transport, error) { return &snapshotStripper{w: w}, nil }))
	res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil {
		t.Fatalf("stale session surfaced: %v", res.Err)
	}
	if res.Surface.VertexCount() != 4 {
		t.Fatalf("fallback produced %d vertices", res.Surface.VertexCount())
	}
	if !strings.Contains(buf.String(), "snapshot required") {
		t.Errorf("stale session not warned about: %q", buf.String())
	}
	if n := w.numSessions(); n != 0 {
		t.Errorf("worker built %d sessions from snapshotless requests", n)
	}
}

func TestSessionReplacedOnNewGeneration(t *testing.T) {
	v := slab(t, "evolving", 2, 2)
	w := NewWorker(0)
	var made []*loopback
	c := NewCoordinator(v, WithWorkers("w:1"), WithTransportFactory(
		func(string) (Transport, error) {
			l := &loopback{w: w}
			made = append(made, l)
			return l, nil
		}))

	res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil || res.Surface.VertexCount() != 4 {
		t.Fatalf("first generation: %v, %d vertices", res.Err, res.Surface.VertexCount())
	}
	if n := w.numSessions(); n != 1 {
		t.Fatalf("worker holds %d sessions", n)
	}

	// Replacing the samples retires the pool and advances the generation.
	data := make([]float32, 18)
	for i := 9; i < 18; i++ {
		data[i] = 1
	}
	if err := v.SetData(data, 3, 3, 2, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if !made[0].closed || !made[1].closed {
		t.Fatalf("data replacement left stale transports open")
	}

	res = <-c.ExtractAsync(surface.Request{Isolevel: 0.5})
	if res.Err != nil {
		t.Fatalf("second generation: %v", res.Err)
	}
	if res.Surface.VertexCount() != 9 || res.Surface.TriangleCount() != 8 {
		t.Fatalf("second generation gave %d vertices, %d triangles",
			res.Surface.VertexCount(), res.Surface.TriangleCount())
	}
	if n := w.numSessions(); n != 1 {
		t.Errorf("worker holds %d sessions after replacement", n)
	}
	if len(made) != 4 {
		t.Errorf("%d transports dialed across two pools", len(made))
	}
	if len(made[2].snapshots) == 0 || !made[2].snapshots[0] {
		t.Errorf("new pool's first dispatch carried no snapshot")
	}
}

func TestCoordinatorClose(t *testing.T) {
	v := slab(t, "closing", 2, 2)
	w := NewWorker(0)
	var made []*loopback
	c := NewCoordinator(v, WithWorkers("w:1"), WithTransportFactory(
		func(string) (Transport, error) {
			l := &loopback{w: w}
			made = append(made, l)
			return l, nil
		}))

	if res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5}); res.Err != nil {
		t.Fatalf("extract: %v", res.Err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, l := range made {
		if !l.closed {
			t.Errorf("transport %d left open after Close", i)
		}
	}
	// The coordinator stays usable; a later call rebuilds the pool.
	if res := <-c.ExtractAsync(surface.Request{Isolevel: 0.5}); res.Err != nil {
		t.Fatalf("extract after Close: %v", res.Err)
	}
	if len(made) != 4 {
		t.Errorf("%d transports dialed, expected a rebuilt pool of %d", len(made), PoolSize)
	}
}

func TestReplyKey(t *testing.T) {
	base := ExtractRequest{VolumeID: "v", Generation: 3,
		Request: surface.Request{Isolevel: 0.5}}
	same := base
	if !bytes.Equal(replyKey(&base), replyKey(&same)) {
		t.Fatalf("identical requests digest differently")
	}
	variants := []ExtractRequest{
		{VolumeID: "w", Generation: 3, Request: base.Request},
		{VolumeID: "v", Generation: 4, Request: base.Request},
		{VolumeID: "v", Generation: 3, Request: surface.Request{Isolevel: 0.25}},
		{VolumeID: "v", Generation: 3, Request: surface.Request{Isolevel: 0.5, Smooth: 2}},
		{VolumeID: "v", Generation: 3, Request: surface.Request{Isolevel: 0.5, Center: r3.Vec{X: 1}}},
		{VolumeID: "v", Generation: 3, Request: surface.Request{Isolevel: 0.5, Size: 2}},
	}
	for i, req := range variants {
		if bytes.Equal(replyKey(&base), replyKey(&req)) {
			t.Errorf("variant %d digests like the base request", i)
		}
	}
}
