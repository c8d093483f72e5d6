/*
	This file runs the extraction pipeline: resolve request defaults, obtain
	the triangulator instance for the current data, triangulate, smooth, and
	map the mesh into world space.
*/

package surface

import (
	"math"
	"sync"

	"github.com/chewxy/math32"
	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/march"
	"github.com/janelia-flyem/isovol/volume"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSigma is the sigma multiple that picks the isolevel when a request
// leaves it unset.
const DefaultSigma = 2

// Triangulator produces a grid-space mesh for one isolevel.  Implementations
// may reuse internal buffers across calls and need not be safe for concurrent
// use; the extractor serializes calls on its instance.
type Triangulator interface {
	Triangulate(isolevel float64, noNormals bool, box *isovol.GridBox) (march.Mesh, error)
}

// TriangulatorFactory builds a Triangulator over a volume's raw samples.
// Factories run once per data generation.
type TriangulatorFactory func(data []float32, nx, ny, nz int32, owners []uint64) Triangulator

// Request holds the parameters of one extraction.  A NaN Isolevel selects the
// volume's ValueForSigma(DefaultSigma).  Size > 0 restricts extraction to the
// world-space cube of half-width Size around Center.
type Request struct {
	Isolevel float64
	Smooth   int
	Center   r3.Vec
	Size     float64
}

// DefaultRequest returns a request for an unsmoothed surface at the default
// isolevel over the whole grid.
func DefaultRequest() Request {
	return Request{Isolevel: math.NaN()}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTriangulator overrides the default marching cubes triangulator factory.
func WithTriangulator(f TriangulatorFactory) Option {
	return func(e *Extractor) { e.factory = f }
}

// Extractor derives surfaces from one volume.  The triangulator instance is
// built lazily and reused until the volume's samples are replaced.
type Extractor struct {
	vol     *volume.Volume
	factory TriangulatorFactory

	mu     sync.Mutex
	tri    Triangulator
	triGen uint64
}

// NewExtractor returns an extractor bound to v.
func NewExtractor(v *volume.Volume, opts ...Option) *Extractor {
	e := &Extractor{
		vol: v,
		factory: func(data []float32, nx, ny, nz int32, owners []uint64) Triangulator {
			return march.New(data, nx, ny, nz, owners)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Volume returns the volume this extractor reads.
func (e *Extractor) Volume() *volume.Volume { return e.vol }

// Extract triangulates one surface per the request.  A request whose region
// misses the grid yields an empty surface, not an error; triangulation errors
// propagate unmodified.
func (e *Extractor) Extract(r Request) (*Surface, error) {
	timedLog := isovol.NewTimeLog()
	v := e.vol
	f := v.Field()

	isolevel := r.Isolevel
	if math.IsNaN(isolevel) {
		isolevel = v.ValueForSigma(DefaultSigma)
	}
	smooth := r.Smooth
	if smooth < 0 {
		smooth = 0
	}

	var box *isovol.GridBox
	if r.Size > 0 {
		b := v.Frame().GridBoxFromWorld(r.Center, r.Size).Clip(f.NX(), f.NY(), f.NZ())
		box = &b
	}

	mesh, err := e.triangulate(isolevel, smooth > 0, box)
	if err != nil {
		return nil, err
	}

	if smooth > 0 {
		LaplacianSmooth(mesh.Position, mesh.Index, smooth, true)
		mesh.Normal = ComputeVertexNormals(mesh.Position, mesh.Index)
	}

	e.toWorld(&mesh)

	s := &Surface{
		Name:     v.Name(),
		Position: mesh.Position,
		Index:    mesh.Index,
		Normal:   mesh.Normal,
		Owner:    mesh.Owner,
		Isolevel: isolevel,
		Smooth:   smooth,
	}
	timedLog.Debugf("extracted %q at isolevel %g: %d vertices, %d triangles",
		v.Name(), isolevel, s.VertexCount(), s.TriangleCount())
	return s, nil
}

// triangulate calls the per-generation instance under the extractor lock.
// The instance is rebuilt after any sample replacement; transform changes
// alone do not invalidate it.
func (e *Extractor) triangulate(isolevel float64, noNormals bool, box *isovol.GridBox) (march.Mesh, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen := e.vol.DataGeneration(); e.tri == nil || e.triGen != gen {
		f := e.vol.Field()
		e.tri = e.factory(f.Data(), f.NX(), f.NY(), f.NZ(), f.Owners())
		e.triGen = gen
	}
	return e.tri.Triangulate(isolevel, noNormals, box)
}

// toWorld maps mesh positions through the grid-to-world transform and normals
// through the normal transform, renormalizing, all in place.
func (e *Extractor) toWorld(m *march.Mesh) {
	frame := e.vol.Frame()
	t := frame.Transform()
	for i := 0; i+2 < len(m.Position); i += 3 {
		w := t.MulPosition(r3.Vec{
			X: float64(m.Position[i]),
			Y: float64(m.Position[i+1]),
			Z: float64(m.Position[i+2]),
		})
		m.Position[i] = float32(w.X)
		m.Position[i+1] = float32(w.Y)
		m.Position[i+2] = float32(w.Z)
	}
	if len(m.Normal) == 0 {
		return
	}
	nt := frame.NormalTransform()
	for i := 0; i+2 < len(m.Normal); i += 3 {
		w := nt.MulVec(r3.Vec{
			X: float64(m.Normal[i]),
			Y: float64(m.Normal[i+1]),
			Z: float64(m.Normal[i+2]),
		})
		nx, ny, nz := float32(w.X), float32(w.Y), float32(w.Z)
		if l := math32.Sqrt(nx*nx + ny*ny + nz*nz); l > 0 {
			nx /= l
			ny /= l
			nz /= l
		}
		m.Normal[i], m.Normal[i+1], m.Normal[i+2] = nx, ny, nz
	}
}
