package surface

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/chewxy/math32"
)

// stlTriangle is the 50-byte binary STL record.
type stlTriangle struct {
	Normal [3]float32
	V1     [3]float32
	V2     [3]float32
	V3     [3]float32
	Attr   uint16
}

// WriteSTL writes the surface as binary little-endian STL.  Face normals are
// recomputed from each triangle since STL has no per-vertex normals.
func (s *Surface) WriteSTL(w io.Writer) error {
	// The 80-byte header must not start with "solid", which would mark the
	// file as ASCII STL.
	var header [80]byte
	copy(header[:], "isovol: "+s.Name)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(s.TriangleCount())); err != nil {
		return err
	}
	var rec stlTriangle
	for i := 0; i+2 < len(s.Index); i += 3 {
		a := 3 * int(s.Index[i])
		b := 3 * int(s.Index[i+1])
		c := 3 * int(s.Index[i+2])
		rec.V1 = [3]float32{s.Position[a], s.Position[a+1], s.Position[a+2]}
		rec.V2 = [3]float32{s.Position[b], s.Position[b+1], s.Position[b+2]}
		rec.V3 = [3]float32{s.Position[c], s.Position[c+1], s.Position[c+2]}
		rec.Normal = faceNormal(rec.V1, rec.V2, rec.V3)
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteSTLFile writes the surface to path as binary STL.
func (s *Surface) WriteSTLFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := s.WriteSTL(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// faceNormal returns the unit normal of a triangle, or zero for degenerate
// triangles.
func faceNormal(a, b, c [3]float32) [3]float32 {
	ux, uy, uz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	vx, vy, vz := c[0]-a[0], c[1]-a[1], c[2]-a[2]
	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx
	if l := math32.Sqrt(nx*nx + ny*ny + nz*nz); l > 0 {
		nx /= l
		ny /= l
		nz /= l
	}
	return [3]float32{nx, ny, nz}
}
