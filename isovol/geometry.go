/*
	This file holds the small grid-space geometry types shared across packages.
	World-space math uses gonum's spatial/r3 types; grid space stays integral.
*/

package isovol

import "fmt"

// Point3d is an ordered list of three 32-bit signed integers giving a grid coordinate.
type Point3d [3]int32

// Value returns the point's value for the specified dimension without checking dim bounds.
func (p Point3d) Value(dim uint8) int32 {
	return p[dim]
}

// Prod returns the product of the point's components.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// GridBox is an inclusive pair of grid coordinates bounding a sub-region of the
// sampled grid, used to restrict extraction.
type GridBox struct {
	Min, Max Point3d
}

// Empty returns true if the box contains no grid points.
func (b GridBox) Empty() bool {
	return b.Max[0] < b.Min[0] || b.Max[1] < b.Min[1] || b.Max[2] < b.Min[2]
}

// Clip returns the intersection of the box with the grid extents
// [0,nx-1] x [0,ny-1] x [0,nz-1].  A box that does not meet the grid
// comes back Empty.
func (b GridBox) Clip(nx, ny, nz int32) GridBox {
	for dim, hi := range [3]int32{nx - 1, ny - 1, nz - 1} {
		if b.Min[dim] < 0 {
			b.Min[dim] = 0
		}
		if b.Max[dim] > hi {
			b.Max[dim] = hi
		}
	}
	return b
}

// NumVoxels returns the number of grid points covered by the box.
func (b GridBox) NumVoxels() int64 {
	if b.Empty() {
		return 0
	}
	return int64(b.Max[0]-b.Min[0]+1) * int64(b.Max[1]-b.Min[1]+1) * int64(b.Max[2]-b.Min[2]+1)
}

func (b GridBox) String() string {
	return fmt.Sprintf("%s -> %s", b.Min, b.Max)
}
