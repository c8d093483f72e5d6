package surface

import "github.com/chewxy/math32"

// ComputeVertexNormals returns unit per-vertex normals built by accumulating
// the unnormalized face normal of every triangle onto its three vertices,
// which weights faces by area.  Vertices touched by no triangle get a zero
// normal.
func ComputeVertexNormals(position []float32, index []uint32) []float32 {
	normal := make([]float32, len(position))
	for i := 0; i+2 < len(index); i += 3 {
		a := 3 * int(index[i])
		b := 3 * int(index[i+1])
		c := 3 * int(index[i+2])

		ux := position[b] - position[a]
		uy := position[b+1] - position[a+1]
		uz := position[b+2] - position[a+2]
		vx := position[c] - position[a]
		vy := position[c+1] - position[a+1]
		vz := position[c+2] - position[a+2]

		fx := uy*vz - uz*vy
		fy := uz*vx - ux*vz
		fz := ux*vy - uy*vx

		normal[a] += fx
		normal[a+1] += fy
		normal[a+2] += fz
		normal[b] += fx
		normal[b+1] += fy
		normal[b+2] += fz
		normal[c] += fx
		normal[c+1] += fy
		normal[c+2] += fz
	}
	for i := 0; i+2 < len(normal); i += 3 {
		if l := math32.Sqrt(normal[i]*normal[i] + normal[i+1]*normal[i+1] + normal[i+2]*normal[i+2]); l > 0 {
			normal[i] /= l
			normal[i+1] /= l
			normal[i+2] /= l
		}
	}
	return normal
}
