/*
	Package volume manages regular 3D scalar fields: raw samples plus the
	grid-to-world coordinate frame, lazily computed statistics, value-range
	filtering, and the serialized form used for offload and persistence.
*/
package volume

import (
	"sync"
	"sync/atomic"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/twinj/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Header carries format-specific metadata attached to a volume, such as the
// density statistics recorded in a CCP4/MRC map header.  It travels with the
// volume through serialization, so concrete types must be gob-registered.
type Header interface {
	// DefaultFilterMin returns a format-specific default for the lower filter
	// bound, and whether one is available.
	DefaultFilterMin() (float64, bool)
}

// Volume owns one ScalarField and one CoordinateFrame, created together and
// mutated only through SetData and SetTransform.  Mutation is single-writer:
// callers must not replace data concurrently with reads on the same Volume.
type Volume struct {
	name string
	path string
	uid  string

	field ScalarField
	frame CoordinateFrame

	header     Header
	registry   Registry
	registered bool

	// dataGeneration advances on every SetData; generation advances on every
	// SetData and SetTransform.  Caches key off whichever they depend on.
	dataGeneration atomic.Uint64
	generation     atomic.Uint64

	posMu     sync.Mutex
	positions []float32
	posGen    uint64

	hookMu    sync.Mutex
	onRelease []func()
}

// New returns an empty volume with an identity transform.  The volume is
// assigned a fresh UUID used to key worker-side offload sessions.
func New(name, path string) *Volume {
	v := &Volume{
		name: name,
		path: path,
		uid:  uuid.NewV4().String(),
	}
	// Identity transform always succeeds.
	v.frame.setTransform(isovol.Identity4(), 1, 1, 1)
	return v
}

// Name returns the volume's display name.
func (v *Volume) Name() string { return v.name }

// Path returns the source path or URL the volume was loaded from.
func (v *Volume) Path() string { return v.path }

// UUID returns the volume's process-unique identity.
func (v *Volume) UUID() string { return v.uid }

// Field exposes the scalar field component.
func (v *Volume) Field() *ScalarField { return &v.field }

// Frame exposes the coordinate frame component.
func (v *Volume) Frame() *CoordinateFrame { return &v.frame }

// Header returns the attached format metadata or nil.
func (v *Volume) Header() Header { return v.header }

// SetHeader attaches format metadata, e.g. a parsed map header.
func (v *Volume) SetHeader(h Header) { v.header = h }

// Generation returns a counter that advances on every data or transform
// replacement.  Grid positions, filtered views, and offload sessions key off it.
func (v *Volume) Generation() uint64 { return v.generation.Load() }

// DataGeneration returns a counter that advances only when samples are
// replaced.  Statistics and triangulation instances key off it.
func (v *Volume) DataGeneration() uint64 { return v.dataGeneration.Load() }

// SetData replaces the raw samples and grid extents, optionally with parallel
// owner labels.  All cached derived state is invalidated, release hooks fire
// so stale worker sessions are retired, and the registry is notified.
// Returns ErrInvalidDimensions when extents disagree with len(data).
func (v *Volume) SetData(data []float32, nx, ny, nz int32, owners []uint64) error {
	if err := v.field.setSamples(data, nx, ny, nz, owners); err != nil {
		return err
	}
	v.frame.updateBounds(nx, ny, nz)
	v.dataGeneration.Add(1)
	v.generation.Add(1)
	v.fireReleaseHooks()
	v.notifyRegistry()
	return nil
}

// SetTransform replaces the grid-to-world transform, rebuilding the normal
// transform, inverse transform, bounding box, and center.  A singular matrix
// is rejected without modifying the frame.
func (v *Volume) SetTransform(m isovol.Matrix4) error {
	if err := v.frame.setTransform(m, v.field.nx, v.field.ny, v.field.nz); err != nil {
		return err
	}
	v.generation.Add(1)
	return nil
}

// ValueForSigma maps a sigma multiple into a sample value; see ScalarField.
func (v *Volume) ValueForSigma(k float64) float64 {
	return v.field.ValueForSigma(k)
}

// BoundingBox returns the world-space bounds of the grid; see CoordinateFrame.
func (v *Volume) BoundingBox() r3.Box {
	return v.frame.BoundingBox()
}

// RegisterOnRelease adds a hook called whenever the volume's data is replaced
// or the volume is disposed.  Offload coordinators use this to retire worker
// pools holding stale samples.
func (v *Volume) RegisterOnRelease(f func()) {
	v.hookMu.Lock()
	v.onRelease = append(v.onRelease, f)
	v.hookMu.Unlock()
}

func (v *Volume) fireReleaseHooks() {
	v.hookMu.Lock()
	hooks := make([]func(), len(v.onRelease))
	copy(hooks, v.onRelease)
	v.hookMu.Unlock()
	for _, f := range hooks {
		f()
	}
}

// Dispose releases the volume: hooks fire, any registry entry is removed, and
// buffers are dropped.  Safe to call more than once.
func (v *Volume) Dispose() {
	v.fireReleaseHooks()
	if v.registered {
		v.registry.Unregister(v)
		v.registered = false
	}
	v.field = ScalarField{}
	v.posMu.Lock()
	v.positions = nil
	v.posMu.Unlock()
}
