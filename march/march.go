/*
	Package march triangulates an isosurface of a regular scalar grid with the
	marching cubes algorithm.  Output meshes are shared-vertex: crossings on
	grid edges shared between cubes are emitted once and referenced by index,
	which downstream smoothing depends on.
*/
package march

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/janelia-flyem/isovol/isovol"
)

// Mesh is a triangulation in grid coordinates: flat xyz positions, triangle
// vertex indices, optional unit normals, and optional per-vertex owner labels.
type Mesh struct {
	Position []float32
	Index    []uint32
	Normal   []float32
	Owner    []uint64
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int { return len(m.Position) / 3 }

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int { return len(m.Index) / 3 }

// MarchingCubes holds the sample grid and the per-edge vertex caches reused
// across calls.  Instances are not safe for concurrent Triangulate calls;
// give each extracting goroutine its own instance.
type MarchingCubes struct {
	data   []float32
	owners []uint64
	nx     int32
	ny     int32
	nz     int32
	n      int
	yd     int // linear index delta for +y
	zd     int // linear index delta for +z

	// Per-axis caches mapping a grid edge, identified by the linear index of
	// its lower corner, to the emitted vertex index plus one.  Zero means no
	// vertex yet.  Allocated on first use, cleared per call only over the
	// swept window.
	ex []int32
	ey []int32
	ez []int32

	// Output state for the call in progress.
	iso       float32
	noNormals bool
	pos       []float32
	idx       []uint32
	nrm       []float32
	own       []uint64
}

// New returns a triangulator over a z-major grid of nx*ny*nz samples with
// optional parallel owner labels.
func New(data []float32, nx, ny, nz int32, owners []uint64) *MarchingCubes {
	return &MarchingCubes{
		data:   data,
		owners: owners,
		nx:     nx,
		ny:     ny,
		nz:     nz,
		n:      len(data),
		yd:     int(nx),
		zd:     int(nx) * int(ny),
	}
}

// Triangulate sweeps the grid at the given isolevel and returns the mesh.
// noNormals skips gradient normals for callers that recompute normals after
// smoothing.  A non-nil box restricts the sweep to cubes whose base corner
// lies inside it, clipped to the grid; nil sweeps everything.  The returned
// buffers are freshly allocated and owned by the caller.
func (mc *MarchingCubes) Triangulate(isolevel float64, noNormals bool, box *isovol.GridBox) (Mesh, error) {
	if mc.nx < 1 || mc.ny < 1 || mc.nz < 1 || int(mc.nx)*int(mc.ny)*int(mc.nz) != mc.n {
		return Mesh{}, fmt.Errorf("cannot triangulate %d samples as a %d x %d x %d grid",
			mc.n, mc.nx, mc.ny, mc.nz)
	}
	if mc.owners != nil && len(mc.owners) != mc.n {
		return Mesh{}, fmt.Errorf("cannot triangulate: %d owner labels for %d samples",
			len(mc.owners), mc.n)
	}

	// Cube base corners; an a x b x c grid has (a-1)(b-1)(c-1) cubes.
	x0, y0, z0 := int32(0), int32(0), int32(0)
	x1, y1, z1 := mc.nx-2, mc.ny-2, mc.nz-2
	if box != nil {
		b := box.Clip(mc.nx, mc.ny, mc.nz)
		x0, y0, z0 = b.Min[0], b.Min[1], b.Min[2]
		x1 = min(x1, b.Max[0])
		y1 = min(y1, b.Max[1])
		z1 = min(z1, b.Max[2])
	}

	mc.iso = float32(isolevel)
	mc.noNormals = noNormals
	mc.pos, mc.idx, mc.nrm, mc.own = nil, nil, nil, nil

	if x1 >= x0 && y1 >= y0 && z1 >= z0 {
		mc.prepareCaches(z0, z1)
		for z := z0; z <= z1; z++ {
			for y := y0; y <= y1; y++ {
				i := (int(z)*int(mc.ny)+int(y))*int(mc.nx) + int(x0)
				for x := x0; x <= x1; x++ {
					mc.polygonize(x, y, z, i)
					i++
				}
			}
		}
	}

	m := Mesh{Position: mc.pos, Index: mc.idx, Normal: mc.nrm, Owner: mc.own}
	mc.pos, mc.idx, mc.nrm, mc.own = nil, nil, nil, nil
	return m, nil
}

// prepareCaches makes the edge caches available and empty for the z planes
// the sweep will touch.  Entries outside the window may hold stale indices
// from an earlier call; the sweep never reads them.
func (mc *MarchingCubes) prepareCaches(z0, z1 int32) {
	if mc.ex == nil {
		mc.ex = make([]int32, mc.n)
		mc.ey = make([]int32, mc.n)
		mc.ez = make([]int32, mc.n)
		return
	}
	lo := int(z0) * mc.zd
	hi := min((int(z1)+2)*mc.zd, mc.n)
	clear(mc.ex[lo:hi])
	clear(mc.ey[lo:hi])
	clear(mc.ez[lo:hi])
}

// polygonize emits the triangles for the cube whose base corner is (x,y,z)
// at linear index i.
func (mc *MarchingCubes) polygonize(x, y, z int32, i int) {
	yd, zd := mc.yd, mc.zd
	v0 := mc.data[i]
	v1 := mc.data[i+1]
	v2 := mc.data[i+1+yd]
	v3 := mc.data[i+yd]
	v4 := mc.data[i+zd]
	v5 := mc.data[i+1+zd]
	v6 := mc.data[i+1+yd+zd]
	v7 := mc.data[i+yd+zd]

	var ci int
	if v0 < mc.iso {
		ci |= 1
	}
	if v1 < mc.iso {
		ci |= 2
	}
	if v2 < mc.iso {
		ci |= 4
	}
	if v3 < mc.iso {
		ci |= 8
	}
	if v4 < mc.iso {
		ci |= 16
	}
	if v5 < mc.iso {
		ci |= 32
	}
	if v6 < mc.iso {
		ci |= 64
	}
	if v7 < mc.iso {
		ci |= 128
	}

	crossed := edgeTable[ci]
	if crossed == 0 {
		return
	}

	var elist [12]uint32
	if crossed&0x001 != 0 {
		elist[0] = mc.vertX(i, x, y, z)
	}
	if crossed&0x002 != 0 {
		elist[1] = mc.vertY(i+1, x+1, y, z)
	}
	if crossed&0x004 != 0 {
		elist[2] = mc.vertX(i+yd, x, y+1, z)
	}
	if crossed&0x008 != 0 {
		elist[3] = mc.vertY(i, x, y, z)
	}
	if crossed&0x010 != 0 {
		elist[4] = mc.vertX(i+zd, x, y, z+1)
	}
	if crossed&0x020 != 0 {
		elist[5] = mc.vertY(i+1+zd, x+1, y, z+1)
	}
	if crossed&0x040 != 0 {
		elist[6] = mc.vertX(i+yd+zd, x, y+1, z+1)
	}
	if crossed&0x080 != 0 {
		elist[7] = mc.vertY(i+zd, x, y, z+1)
	}
	if crossed&0x100 != 0 {
		elist[8] = mc.vertZ(i, x, y, z)
	}
	if crossed&0x200 != 0 {
		elist[9] = mc.vertZ(i+1, x+1, y, z)
	}
	if crossed&0x400 != 0 {
		elist[10] = mc.vertZ(i+1+yd, x+1, y+1, z)
	}
	if crossed&0x800 != 0 {
		elist[11] = mc.vertZ(i+yd, x, y+1, z)
	}

	tri := &triTable[ci]
	for t := 0; tri[t] != -1; t += 3 {
		mc.idx = append(mc.idx, elist[tri[t]], elist[tri[t+1]], elist[tri[t+2]])
	}
}

// vertX returns the vertex on the +x edge whose lower corner has linear
// index i, emitting it on first use.
func (mc *MarchingCubes) vertX(i int, x, y, z int32) uint32 {
	if c := mc.ex[i]; c != 0 {
		return uint32(c - 1)
	}
	id := mc.addVertex(i, i+1, x, y, z, x+1, y, z)
	mc.ex[i] = int32(id) + 1
	return id
}

func (mc *MarchingCubes) vertY(i int, x, y, z int32) uint32 {
	if c := mc.ey[i]; c != 0 {
		return uint32(c - 1)
	}
	id := mc.addVertex(i, i+mc.yd, x, y, z, x, y+1, z)
	mc.ey[i] = int32(id) + 1
	return id
}

func (mc *MarchingCubes) vertZ(i int, x, y, z int32) uint32 {
	if c := mc.ez[i]; c != 0 {
		return uint32(c - 1)
	}
	id := mc.addVertex(i, i+mc.zd, x, y, z, x, y, z+1)
	mc.ez[i] = int32(id) + 1
	return id
}

// addVertex interpolates the isolevel crossing between two edge endpoints
// and appends position, normal, and owner data for it.
func (mc *MarchingCubes) addVertex(i1, i2 int, x1, y1, z1, x2, y2, z2 int32) uint32 {
	d1, d2 := mc.data[i1], mc.data[i2]
	// Endpoints straddle the isolevel, so the denominator is nonzero.
	t := (mc.iso - d1) / (d2 - d1)

	id := uint32(len(mc.pos) / 3)
	mc.pos = append(mc.pos,
		float32(x1)+t*float32(x2-x1),
		float32(y1)+t*float32(y2-y1),
		float32(z1)+t*float32(z2-z1))

	if !mc.noNormals {
		g1x, g1y, g1z := mc.gradient(x1, y1, z1)
		g2x, g2y, g2z := mc.gradient(x2, y2, z2)
		// Negated gradient: normals point from high values toward low.
		nx := -(g1x + t*(g2x-g1x))
		ny := -(g1y + t*(g2y-g1y))
		nz := -(g1z + t*(g2z-g1z))
		if l := math32.Sqrt(nx*nx + ny*ny + nz*nz); l > 0 {
			nx /= l
			ny /= l
			nz /= l
		}
		mc.nrm = append(mc.nrm, nx, ny, nz)
	}

	if mc.owners != nil {
		if t < 0.5 {
			mc.own = append(mc.own, mc.owners[i1])
		} else {
			mc.own = append(mc.own, mc.owners[i2])
		}
	}
	return id
}

// gradient returns the central-difference field gradient at a grid corner,
// one-sided at the grid borders.
func (mc *MarchingCubes) gradient(x, y, z int32) (gx, gy, gz float32) {
	i := (int(z)*int(mc.ny)+int(y))*int(mc.nx) + int(x)
	xl, xh := i, i
	if x > 0 {
		xl = i - 1
	}
	if x < mc.nx-1 {
		xh = i + 1
	}
	yl, yh := i, i
	if y > 0 {
		yl = i - mc.yd
	}
	if y < mc.ny-1 {
		yh = i + mc.yd
	}
	zl, zh := i, i
	if z > 0 {
		zl = i - mc.zd
	}
	if z < mc.nz-1 {
		zh = i + mc.zd
	}
	gx = mc.data[xh] - mc.data[xl]
	gy = mc.data[yh] - mc.data[yl]
	gz = mc.data[zh] - mc.data[zl]
	return
}
