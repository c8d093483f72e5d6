package surface

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/janelia-flyem/isovol/isovol"
)

// quadSurface mirrors the mesh a marching cubes sweep emits for a unit cube
// with its isolevel crossing at z=0.5.
func quadSurface() *Surface {
	return &Surface{
		Name:     "quad",
		Position: []float32{0, 0, 0.5, 1, 0, 0.5, 1, 1, 0.5, 0, 1, 0.5},
		Index:    []uint32{1, 0, 2, 2, 0, 3},
		Normal:   []float32{0, 0, -1, 0, 0, -1, 0, 0, -1, 0, 0, -1},
		Owner:    []uint64{7, 7, 9, 9},
		Isolevel: 0.5,
		Smooth:   2,
	}
}

func TestSurfaceRoundTrip(t *testing.T) {
	want := quadSurface()
	for _, compress := range []isovol.Compression{isovol.Uncompressed, isovol.Snappy, isovol.Zstd} {
		b, err := want.Serialize(compress, isovol.CRC32)
		if err != nil {
			t.Fatalf("%s: Serialize: %v", compress, err)
		}
		got, err := DeserializeSurface(b)
		if err != nil {
			t.Fatalf("%s: DeserializeSurface: %v", compress, err)
		}
		if got.Name != want.Name || got.Isolevel != want.Isolevel || got.Smooth != want.Smooth {
			t.Fatalf("%s: metadata altered: %q %g %d", compress, got.Name, got.Isolevel, got.Smooth)
		}
		if got.VertexCount() != want.VertexCount() || got.TriangleCount() != want.TriangleCount() {
			t.Fatalf("%s: %d vertices, %d triangles after round trip",
				compress, got.VertexCount(), got.TriangleCount())
		}
		for i := range want.Position {
			if got.Position[i] != want.Position[i] {
				t.Fatalf("%s: position %d altered", compress, i)
			}
		}
		for i := range want.Index {
			if got.Index[i] != want.Index[i] {
				t.Fatalf("%s: index %d altered", compress, i)
			}
		}
		for i := range want.Normal {
			if got.Normal[i] != want.Normal[i] {
				t.Fatalf("%s: normal %d altered", compress, i)
			}
		}
		for i := range want.Owner {
			if got.Owner[i] != want.Owner[i] {
				t.Fatalf("%s: owner %d altered", compress, i)
			}
		}
	}
}

func TestSurfaceRoundTripBare(t *testing.T) {
	want := &Surface{
		Position: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Index:    []uint32{0, 1, 2},
		Isolevel: 1.25,
	}
	b, err := want.Serialize(isovol.Snappy, isovol.NoChecksum)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializeSurface(b)
	if err != nil {
		t.Fatalf("DeserializeSurface: %v", err)
	}
	if got.Name != "" {
		t.Errorf("name invented: %q", got.Name)
	}
	if got.Normal != nil || got.Owner != nil {
		t.Errorf("optional buffers invented: %v %v", got.Normal, got.Owner)
	}
	if got.VertexCount() != 3 || got.TriangleCount() != 1 {
		t.Errorf("%d vertices, %d triangles", got.VertexCount(), got.TriangleCount())
	}
}

func TestSurfaceCorrupt(t *testing.T) {
	b, err := quadSurface().Serialize(isovol.Uncompressed, isovol.NoChecksum)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := DeserializeSurface(b[:len(b)-4]); err == nil {
		t.Errorf("truncated payload deserialized without error")
	}
}

func TestWriteSTL(t *testing.T) {
	s := quadSurface()
	var buf bytes.Buffer
	if err := s.WriteSTL(&buf); err != nil {
		t.Fatalf("WriteSTL: %v", err)
	}
	b := buf.Bytes()
	if want := 80 + 4 + 2*50; len(b) != want {
		t.Fatalf("wrote %d bytes, expected %d", len(b), want)
	}
	if string(b[:5]) == "solid" {
		t.Fatalf("binary STL header must not start with %q", "solid")
	}
	if n := binary.LittleEndian.Uint32(b[80:84]); n != 2 {
		t.Fatalf("triangle count %d, expected 2", n)
	}
	// First record's face normal: the quad lies in z=0.5 and winds so the
	// normal points down.
	nz := math.Float32frombits(binary.LittleEndian.Uint32(b[92:96]))
	if nz != -1 {
		t.Errorf("first face normal z = %g, expected -1", nz)
	}
	// Attribute byte count of the first record is zero.
	if b[132] != 0 || b[133] != 0 {
		t.Errorf("attribute bytes %v, expected zero", b[132:134])
	}
}
