/*
	Package surface turns volumes into renderable isosurface meshes.  The
	extractor drives a swappable triangulator, optionally smooths the result
	without shrinking it, and maps positions and normals into world space.
	Binary codecs cover the offload wire format and STL export.
*/
package surface

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/janelia-flyem/isovol/isovol"
)

// Surface is one extracted isosurface in world space: flat xyz vertex
// positions, triangle vertex indices, optional unit normals, and optional
// per-vertex owner labels, together with the parameters that produced it.
type Surface struct {
	Name     string
	Position []float32
	Index    []uint32
	Normal   []float32
	Owner    []uint64
	Isolevel float64
	Smooth   int
}

// VertexCount returns the number of vertices in the surface.
func (s *Surface) VertexCount() int { return len(s.Position) / 3 }

// TriangleCount returns the number of triangles in the surface.
func (s *Surface) TriangleCount() int { return len(s.Index) / 3 }

const (
	flagNormals = 1 << iota
	flagOwners
)

// surfaceHeader is the fixed little-endian preamble of a serialized surface,
// following the length-prefixed name.
type surfaceHeader struct {
	Isolevel float64
	Smooth   int32
	Flags    uint8
	Vertices uint32
	Indices  uint32
}

// Serialize encodes the surface as a little-endian binary blob wrapped in the
// standard compression/checksum envelope: length-prefixed name, header, then
// position, index, and any normal and owner buffers.
func (s *Surface) Serialize(compress isovol.Compression, checksum isovol.Checksum) ([]byte, error) {
	var buf bytes.Buffer
	name := []byte(s.Name)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(name))); err != nil {
		return nil, err
	}
	buf.Write(name)

	hdr := surfaceHeader{
		Isolevel: s.Isolevel,
		Smooth:   int32(s.Smooth),
		Vertices: uint32(s.VertexCount()),
		Indices:  uint32(len(s.Index)),
	}
	if len(s.Normal) > 0 {
		hdr.Flags |= flagNormals
	}
	if len(s.Owner) > 0 {
		hdr.Flags |= flagOwners
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, s.Position); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, s.Index); err != nil {
		return nil, err
	}
	if hdr.Flags&flagNormals != 0 {
		if err := binary.Write(&buf, binary.LittleEndian, s.Normal); err != nil {
			return nil, err
		}
	}
	if hdr.Flags&flagOwners != 0 {
		if err := binary.Write(&buf, binary.LittleEndian, s.Owner); err != nil {
			return nil, err
		}
	}
	return isovol.SerializeData(buf.Bytes(), compress, checksum)
}

// DeserializeSurface decodes a surface serialized by Serialize.  Buffer sizes
// are validated against the header before allocation so corrupt input fails
// cleanly instead of exhausting memory.
func DeserializeSurface(b []byte) (*Surface, error) {
	data, _, err := isovol.DeserializeData(b, true)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)

	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, fmt.Errorf("cannot read surface name length: %v", err)
	}
	if int64(nameLen) > int64(r.Len()) {
		return nil, fmt.Errorf("surface name length %d exceeds %d remaining bytes", nameLen, r.Len())
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("cannot read surface name: %v", err)
	}

	var hdr surfaceHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("cannot read surface header: %v", err)
	}
	want := int64(hdr.Vertices)*3*4 + int64(hdr.Indices)*4
	if hdr.Flags&flagNormals != 0 {
		want += int64(hdr.Vertices) * 3 * 4
	}
	if hdr.Flags&flagOwners != 0 {
		want += int64(hdr.Vertices) * 8
	}
	if int64(r.Len()) != want {
		return nil, fmt.Errorf("corrupt surface: %d bytes of buffers, header promises %d", r.Len(), want)
	}

	s := &Surface{
		Name:     string(name),
		Isolevel: hdr.Isolevel,
		Smooth:   int(hdr.Smooth),
		Position: make([]float32, 3*hdr.Vertices),
		Index:    make([]uint32, hdr.Indices),
	}
	if err := binary.Read(r, binary.LittleEndian, s.Position); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, s.Index); err != nil {
		return nil, err
	}
	if hdr.Flags&flagNormals != 0 {
		s.Normal = make([]float32, 3*hdr.Vertices)
		if err := binary.Read(r, binary.LittleEndian, s.Normal); err != nil {
			return nil, err
		}
	}
	if hdr.Flags&flagOwners != 0 {
		s.Owner = make([]uint64, hdr.Vertices)
		if err := binary.Read(r, binary.LittleEndian, s.Owner); err != nil {
			return nil, err
		}
	}
	return s, nil
}
