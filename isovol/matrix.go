/*
	This file implements the 4x4 grid-to-world transform and its derived 3x3
	normal transform.  Matrices are stored flat in row-major order, which is
	also the order used by the volume serialization.
*/

package isovol

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Matrix4 is a 4x4 affine transform flattened in row-major order.  The last
// row is expected to be (0,0,0,1): grid-to-world transforms never carry a
// projective part.
type Matrix4 [16]float64

// Identity4 returns the 4x4 identity transform.
func Identity4() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a transform that translates by v.
func Translate(v r3.Vec) Matrix4 {
	return Matrix4{
		1, 0, 0, v.X,
		0, 1, 0, v.Y,
		0, 0, 1, v.Z,
		0, 0, 0, 1,
	}
}

// Scale returns a transform that scales each axis by the matching component of v.
func Scale(v r3.Vec) Matrix4 {
	return Matrix4{
		v.X, 0, 0, 0,
		0, v.Y, 0, 0,
		0, 0, v.Z, 0,
		0, 0, 0, 1,
	}
}

// Mul returns the composition a*b, i.e. the transform that applies b first and
// then a.
func (a Matrix4) Mul(b Matrix4) Matrix4 {
	var out Matrix4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[row*4+k] * b[k*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// MulPosition applies the affine transform to a world-space position.
func (a Matrix4) MulPosition(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0]*p.X + a[1]*p.Y + a[2]*p.Z + a[3],
		Y: a[4]*p.X + a[5]*p.Y + a[6]*p.Z + a[7],
		Z: a[8]*p.X + a[9]*p.Y + a[10]*p.Z + a[11],
	}
}

// Inverse returns the exact matrix inverse.  An error is returned for a
// singular transform; an ill-conditioned but invertible transform is accepted
// with a logged warning.
func (a Matrix4) Inverse() (Matrix4, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, a[:])); err != nil {
		if _, conditioned := err.(mat.Condition); !conditioned {
			return Matrix4{}, fmt.Errorf("cannot invert transform %v: %v", a, err)
		}
		Warningf("ill-conditioned transform: %v\n", err)
	}
	var out Matrix4
	copy(out[:], inv.RawMatrix().Data)
	return out, nil
}

// linearRow returns one row of the upper-left 3x3 linear part.
func (a Matrix4) linearRow(i int) r3.Vec {
	return r3.Vec{X: a[i*4], Y: a[i*4+1], Z: a[i*4+2]}
}

// NormalMatrix derives the 3x3 transform that maps surface normals into world
// space: the transpose of the adjugate of the linear part, assembled from row
// cross products and scaled by 1/det so that handedness-flipping transforms
// keep normals on the correct side.  Fails when the linear part is singular.
func (a Matrix4) NormalMatrix() (Matrix3, error) {
	r0 := a.linearRow(0)
	r1 := a.linearRow(1)
	r2 := a.linearRow(2)

	c0 := r3.Cross(r1, r2)
	c1 := r3.Cross(r2, r0)
	c2 := r3.Cross(r0, r1)

	det := r3.Dot(r0, c0)
	if det == 0 {
		return Matrix3{}, fmt.Errorf("transform %v has singular linear part", a)
	}
	s := 1 / det
	return Matrix3{
		c0.X * s, c0.Y * s, c0.Z * s,
		c1.X * s, c1.Y * s, c1.Z * s,
		c2.X * s, c2.Y * s, c2.Z * s,
	}, nil
}

// Matrix3 is a 3x3 matrix flattened in row-major order.
type Matrix3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// MulVec applies the matrix to a direction vector.
func (m Matrix3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}
