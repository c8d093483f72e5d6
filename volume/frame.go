/*
	This file implements the coordinate frame: the grid-to-world transform with
	its derived normal transform, inverse transform, and world-space bounds.
	Derived values are rebuilt inside the mutators so no stale combination is
	ever observable.
*/

package volume

import (
	"math"

	"github.com/janelia-flyem/isovol/isovol"
	"gonum.org/v1/gonum/spatial/r3"
)

// CoordinateFrame maps grid index coordinates (x,y,z in [0,nx-1] x [0,ny-1] x
// [0,nz-1]) into world space and keeps every derived quantity in lockstep with
// the current transform.
type CoordinateFrame struct {
	transform        isovol.Matrix4
	normalTransform  isovol.Matrix3
	inverseTransform isovol.Matrix4
	boundingBox      r3.Box
	center           r3.Vec
}

// setTransform stores m and rebuilds the normal transform, inverse transform,
// and the world-space bounds of the given grid extents.  A singular transform
// is rejected and the previous frame is left untouched.
func (f *CoordinateFrame) setTransform(m isovol.Matrix4, nx, ny, nz int32) error {
	inv, err := m.Inverse()
	if err != nil {
		return err
	}
	normal, err := m.NormalMatrix()
	if err != nil {
		return err
	}
	f.transform = m
	f.inverseTransform = inv
	f.normalTransform = normal
	f.updateBounds(nx, ny, nz)
	return nil
}

// updateBounds recomputes the world-space bounding box and center from the 8
// transformed grid corners.
func (f *CoordinateFrame) updateBounds(nx, ny, nz int32) {
	corner := func(n int32) float64 {
		if n < 2 {
			return 0
		}
		return float64(n - 1)
	}
	xs := [2]float64{0, corner(nx)}
	ys := [2]float64{0, corner(ny)}
	zs := [2]float64{0, corner(nz)}

	first := true
	var box r3.Box
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				w := f.transform.MulPosition(r3.Vec{X: x, Y: y, Z: z})
				if first {
					box = r3.Box{Min: w, Max: w}
					first = false
					continue
				}
				box.Min.X = math.Min(box.Min.X, w.X)
				box.Min.Y = math.Min(box.Min.Y, w.Y)
				box.Min.Z = math.Min(box.Min.Z, w.Z)
				box.Max.X = math.Max(box.Max.X, w.X)
				box.Max.Y = math.Max(box.Max.Y, w.Y)
				box.Max.Z = math.Max(box.Max.Z, w.Z)
			}
		}
	}
	f.boundingBox = box
	f.center = r3.Scale(0.5, r3.Add(box.Min, box.Max))
}

// Transform returns the grid-to-world transform.
func (f *CoordinateFrame) Transform() isovol.Matrix4 {
	return f.transform
}

// NormalTransform returns the 3x3 matrix that carries surface normals from
// grid space into world space.
func (f *CoordinateFrame) NormalTransform() isovol.Matrix3 {
	return f.normalTransform
}

// InverseTransform returns the world-to-grid transform.
func (f *CoordinateFrame) InverseTransform() isovol.Matrix4 {
	return f.inverseTransform
}

// BoundingBox returns the world-space axis-aligned bounds of the grid corners.
func (f *CoordinateFrame) BoundingBox() r3.Box {
	return f.boundingBox
}

// Center returns the world-space center of the bounding box.
func (f *CoordinateFrame) Center() r3.Vec {
	return f.center
}

// GridBoxFromWorld maps a world-space region, given as a center point and a
// scalar half-extent, into an integer grid box: the +-size box around center
// is carried through the inverse transform, the grid-space hull of its corners
// is taken, and both corners are rounded to the nearest grid coordinate.
func (f *CoordinateFrame) GridBoxFromWorld(center r3.Vec, size float64) isovol.GridBox {
	xs := [2]float64{center.X - size, center.X + size}
	ys := [2]float64{center.Y - size, center.Y + size}
	zs := [2]float64{center.Z - size, center.Z + size}

	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				g := f.inverseTransform.MulPosition(r3.Vec{X: x, Y: y, Z: z})
				lo.X = math.Min(lo.X, g.X)
				lo.Y = math.Min(lo.Y, g.Y)
				lo.Z = math.Min(lo.Z, g.Z)
				hi.X = math.Max(hi.X, g.X)
				hi.Y = math.Max(hi.Y, g.Y)
				hi.Z = math.Max(hi.Z, g.Z)
			}
		}
	}
	round := func(v float64) int32 { return int32(math.Round(v)) }
	return isovol.GridBox{
		Min: isovol.Point3d{round(lo.X), round(lo.Y), round(lo.Z)},
		Max: isovol.Point3d{round(hi.X), round(hi.Y), round(hi.Z)},
	}
}
