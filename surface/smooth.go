package surface

// Taubin pass factors.  The negative second pass inflates the mesh back out
// so repeated smoothing does not shrink it.
const (
	smoothLambda float32 = 0.5
	smoothMu     float32 = -0.53
)

// LaplacianSmooth relaxes vertex positions toward their neighbor averages,
// in place, for the given number of iterations.  With volumePreserving set,
// each iteration runs a shrink pass followed by the compensating inflate
// pass.  Vertices are neighbors when a triangle edge connects them, so the
// mesh must be shared-vertex for smoothing to have any effect.
func LaplacianSmooth(position []float32, index []uint32, iterations int, volumePreserving bool) {
	if iterations <= 0 || len(position) < 3 || len(index) < 3 {
		return
	}
	neighbors := vertexNeighbors(index, len(position)/3)
	next := make([]float32, len(position))
	for it := 0; it < iterations; it++ {
		relax(position, next, neighbors, smoothLambda)
		copy(position, next)
		if volumePreserving {
			relax(position, next, neighbors, smoothMu)
			copy(position, next)
		}
	}
}

// relax writes one smoothing pass of src into dst.  A positive factor moves
// vertices toward their neighbor average, a negative one away from it.
// Isolated vertices pass through unchanged.
func relax(src, dst []float32, neighbors [][]uint32, factor float32) {
	for v, ns := range neighbors {
		i := 3 * v
		if len(ns) == 0 {
			dst[i], dst[i+1], dst[i+2] = src[i], src[i+1], src[i+2]
			continue
		}
		var ax, ay, az float32
		for _, n := range ns {
			j := 3 * int(n)
			ax += src[j]
			ay += src[j+1]
			az += src[j+2]
		}
		inv := 1 / float32(len(ns))
		ax *= inv
		ay *= inv
		az *= inv
		dst[i] = src[i] + factor*(ax-src[i])
		dst[i+1] = src[i+1] + factor*(ay-src[i+1])
		dst[i+2] = src[i+2] + factor*(az-src[i+2])
	}
}

// vertexNeighbors builds the distinct neighbor lists implied by the triangle
// edges.
func vertexNeighbors(index []uint32, numVertices int) [][]uint32 {
	adj := make([][]uint32, numVertices)
	add := func(a, b uint32) {
		for _, n := range adj[a] {
			if n == b {
				return
			}
		}
		adj[a] = append(adj[a], b)
	}
	for i := 0; i+2 < len(index); i += 3 {
		a, b, c := index[i], index[i+1], index[i+2]
		add(a, b)
		add(b, a)
		add(b, c)
		add(c, b)
		add(c, a)
		add(a, c)
	}
	return adj
}
