/*
	This file computes the world-space position of every grid sample.  The full
	sweep is expensive on large grids, so the result is cached per generation
	and the z slabs are transformed in parallel.
*/

package volume

import (
	"runtime"

	"github.com/janelia-flyem/isovol/isovol"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// GridPositions returns a flat xyz triple per sample giving its world-space
// position, in the same order as the sample array.  The sweep runs once per
// data/transform generation and is cached; callers must treat the returned
// slice as read-only.
func (v *Volume) GridPositions() []float32 {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	gen := v.generation.Load()
	if v.positions != nil && v.posGen == gen {
		return v.positions
	}

	timedLog := isovol.NewTimeLog()
	nx, ny, nz := v.field.nx, v.field.ny, v.field.nz
	pos := make([]float32, 3*v.field.NumSamples())
	m := v.frame.transform

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for z := int32(0); z < nz; z++ {
		z := z
		g.Go(func() error {
			i := int64(z) * int64(ny) * int64(nx) * 3
			fz := float64(z)
			for y := int32(0); y < ny; y++ {
				fy := float64(y)
				for x := int32(0); x < nx; x++ {
					w := m.MulPosition(r3.Vec{X: float64(x), Y: fy, Z: fz})
					pos[i] = float32(w.X)
					pos[i+1] = float32(w.Y)
					pos[i+2] = float32(w.Z)
					i += 3
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	v.positions = pos
	v.posGen = gen
	timedLog.Debugf("computed %d grid positions for volume %q", v.field.NumSamples(), v.name)
	return pos
}
