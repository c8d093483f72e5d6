package mrc

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// mapSpec drives the synthetic map builder.  Zero fields fall back to a
// plain single-voxel-spaced map with standard axis order.
type mapSpec struct {
	mode                   int32
	order                  binary.ByteOrder
	stamp                  byte
	nc, nr, ns             int32
	mapc, mapr, maps       int32
	startc, startr, starts int32
	mx, my, mz             int32
	cella, cellb, cellc    float32
	alpha, beta, gamma     float32
	origin                 [3]float32
	amean, arms            float32
	nsymbt                 int32
	payload                []byte
}

func buildMap(t *testing.T, sp mapSpec) []byte {
	t.Helper()
	if sp.order == nil {
		sp.order = binary.LittleEndian
	}
	if sp.mapc == 0 && sp.mapr == 0 && sp.maps == 0 {
		sp.mapc, sp.mapr, sp.maps = 1, 2, 3
	}
	hw := headerWire{
		NC: sp.nc, NR: sp.nr, NS: sp.ns,
		Mode:   sp.mode,
		StartC: sp.startc, StartR: sp.startr, StartS: sp.starts,
		MX: sp.mx, MY: sp.my, MZ: sp.mz,
		CellA: sp.cella, CellB: sp.cellb, CellC: sp.cellc,
		Alpha: sp.alpha, Beta: sp.beta, Gamma: sp.gamma,
		MapC: sp.mapc, MapR: sp.mapr, MapS: sp.maps,
		AMean:  sp.amean,
		NSymBT: sp.nsymbt,
		Origin: sp.origin,
		Magic:  [4]byte{'M', 'A', 'P', ' '},
		ARMS:   sp.arms,
	}
	if sp.stamp != 0 {
		hw.MachSt = [4]byte{sp.stamp, 0x41, 0, 0}
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, sp.order, &hw); err != nil {
		t.Fatalf("encoding header: %v", err)
	}
	if sp.nsymbt > 0 {
		buf.Write(make([]byte, sp.nsymbt))
	}
	buf.Write(sp.payload)
	return buf.Bytes()
}

func float32Payload(order binary.ByteOrder, vals []float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		order.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func seq(n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}
	return vals
}

func TestReadFloat32Map(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 3, ns: 2,
		mx: 2, my: 3, mz: 2,
		cella: 2, cellb: 3, cellc: 2,
		alpha: 90, beta: 90, gamma: 90,
		amean: 3, arms: 1,
		payload: float32Payload(binary.LittleEndian, seq(12)),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	f := v.Field()
	if f.NX() != 2 || f.NY() != 3 || f.NZ() != 2 {
		t.Fatalf("extents %dx%dx%d", f.NX(), f.NY(), f.NZ())
	}
	for i, got := range f.Data() {
		if got != float32(i) {
			t.Fatalf("sample %d = %g", i, got)
		}
	}
	if f.Min() != 0 || f.Max() != 11 {
		t.Errorf("statistics min %g max %g", f.Min(), f.Max())
	}
	h, ok := v.Header().(*Header)
	if !ok {
		t.Fatalf("no parsed header attached")
	}
	min, ok := h.DefaultFilterMin()
	if !ok || min != 5 {
		t.Errorf("default filter min %g, %v; expected 5 from mean 3 rms 1", min, ok)
	}
}

func TestReadIntegerModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    int32
		payload []byte
		want    []float32
	}{
		{"int8", ModeInt8, []byte{0xfd, 7}, []float32{-3, 7}},
		{"int16", ModeInt16, func() []byte {
			b := make([]byte, 4)
			neg := int16(-300)
			binary.LittleEndian.PutUint16(b, uint16(neg))
			binary.LittleEndian.PutUint16(b[2:], 500)
			return b
		}(), []float32{-300, 500}},
		{"uint16", ModeUint16, func() []byte {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint16(b, 60000)
			binary.LittleEndian.PutUint16(b[2:], 2)
			return b
		}(), []float32{60000, 2}},
	}
	for _, tc := range tests {
		b := buildMap(t, mapSpec{
			mode: tc.mode, stamp: 0x44,
			nc: 2, nr: 1, ns: 1,
			payload: tc.payload,
		})
		v, err := Read(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("%s: Read: %v", tc.name, err)
		}
		for i, want := range tc.want {
			if got := v.Field().Data()[i]; got != want {
				t.Errorf("%s: sample %d = %g, expected %g", tc.name, i, got, want)
			}
		}
	}
}

func TestReadBigEndian(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, order: binary.BigEndian, stamp: 0x11,
		nc: 2, nr: 2, ns: 1,
		payload: float32Payload(binary.BigEndian, []float32{1.5, -2.5, 4, 8}),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []float32{1.5, -2.5, 4, 8}
	for i, w := range want {
		if got := v.Field().Data()[i]; got != w {
			t.Errorf("sample %d = %g, expected %g", i, got, w)
		}
	}
}

func TestReadStampless(t *testing.T) {
	// No machine stamp: the header only parses plausibly big-endian.
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, order: binary.BigEndian,
		nc: 2, nr: 1, ns: 1,
		payload: float32Payload(binary.BigEndian, []float32{3, 9}),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if d := v.Field().Data(); d[0] != 3 || d[1] != 9 {
		t.Errorf("samples %v", d)
	}
}

func TestReadAxisReorder(t *testing.T) {
	// Columns run along y, rows along x.  File value at (c,r,s) is
	// c + 3r + 6s, so the x-fastest sample (x,y,z) must be y + 3x + 6z.
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 3, nr: 2, ns: 2,
		mapc: 2, mapr: 1, maps: 3,
		payload: float32Payload(binary.LittleEndian, seq(12)),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	f := v.Field()
	if f.NX() != 2 || f.NY() != 3 || f.NZ() != 2 {
		t.Fatalf("extents %dx%dx%d", f.NX(), f.NY(), f.NZ())
	}
	for z := int32(0); z < 2; z++ {
		for y := int32(0); y < 3; y++ {
			for x := int32(0); x < 2; x++ {
				want := float32(y + 3*x + 6*z)
				if got := f.Value(x, y, z); got != want {
					t.Fatalf("sample (%d,%d,%d) = %g, expected %g", x, y, z, got, want)
				}
			}
		}
	}
}

func TestReadTransform(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 3, ns: 2,
		startc: -2, startr: -3, starts: 1,
		mx: 2, my: 3, mz: 2,
		cella: 4, cellb: 6, cellc: 1,
		alpha: 90, beta: 90, gamma: 90,
		payload: float32Payload(binary.LittleEndian, seq(12)),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// Spacing (2,2,0.5), origin from starts: (-4,-6,0.5).
	box := v.BoundingBox()
	if box.Min.X != -4 || box.Min.Y != -6 || box.Min.Z != 0.5 {
		t.Errorf("box min (%g,%g,%g)", box.Min.X, box.Min.Y, box.Min.Z)
	}
	if box.Max.X != -2 || box.Max.Y != -2 || box.Max.Z != 1 {
		t.Errorf("box max (%g,%g,%g)", box.Max.X, box.Max.Y, box.Max.Z)
	}
}

func TestReadOriginOverridesStarts(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 2, ns: 2,
		startc: -5, startr: -5, starts: -5,
		origin:  [3]float32{10, 20, 30},
		payload: float32Payload(binary.LittleEndian, seq(8)),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	box := v.BoundingBox()
	if box.Min.X != 10 || box.Min.Y != 20 || box.Min.Z != 30 {
		t.Errorf("box min (%g,%g,%g), expected the explicit origin",
			box.Min.X, box.Min.Y, box.Min.Z)
	}
}

func TestReadSymmetrySkipped(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 1, ns: 1,
		nsymbt:  80,
		payload: float32Payload(binary.LittleEndian, []float32{5, 6}),
	})
	v, err := Read(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if d := v.Field().Data(); d[0] != 5 || d[1] != 6 {
		t.Errorf("samples %v after symmetry block", d)
	}
}

func TestReadGzippedFile(t *testing.T) {
	raw := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 1, ns: 1,
		payload: float32Payload(binary.LittleEndian, []float32{1, 2}),
	})
	var gzBuf bytes.Buffer
	zw := gzip.NewWriter(&gzBuf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dens.mrc.gz")
	if err := os.WriteFile(path, gzBuf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing map: %v", err)
	}
	v, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if v.Name() != "dens" {
		t.Errorf("volume named %q", v.Name())
	}
	if v.Path() != path {
		t.Errorf("volume path %q", v.Path())
	}
	if d := v.Field().Data(); d[0] != 1 || d[1] != 2 {
		t.Errorf("samples %v", d)
	}
}

func TestReadNonOrthogonal(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 1, ns: 1,
		alpha: 90, beta: 90, gamma: 120,
		payload: float32Payload(binary.LittleEndian, []float32{1, 2}),
	})
	_, err := Read(bytes.NewReader(b))
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("sheared cell read as %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	b := buildMap(t, mapSpec{
		mode: ModeFloat32, stamp: 0x44,
		nc: 2, nr: 2, ns: 2,
		payload: float32Payload(binary.LittleEndian, seq(8)),
	})
	if _, err := Read(bytes.NewReader(b[:len(b)-8])); err == nil {
		t.Fatalf("truncated sample block read without error")
	}
}

func TestReadGarbage(t *testing.T) {
	junk := bytes.Repeat([]byte{0xff}, headerSize)
	if _, err := Read(bytes.NewReader(junk)); err == nil {
		t.Fatalf("garbage header read without error")
	}
}
