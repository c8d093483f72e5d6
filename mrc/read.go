/*
	This file parses the map header and sample block.  Headers are tried
	little-endian first unless the machine stamp says otherwise; samples are
	decoded with whichever order the header parsed under.
*/

package mrc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/volume"
)

const (
	headerSize = 1024

	// maxSamples caps a map at 4 GiB of float32 data.
	maxSamples = 1 << 30

	// maxSymBytes bounds the symmetry block we are willing to skip.
	maxSymBytes = 1 << 20

	// orthoTol is how far a cell angle may sit from 90 degrees.
	orthoTol = 1e-3
)

// headerWire is the 1024-byte header exactly as stored.
type headerWire struct {
	NC, NR, NS             int32
	Mode                   int32
	StartC, StartR, StartS int32
	MX, MY, MZ             int32
	CellA, CellB, CellC    float32
	Alpha, Beta, Gamma     float32
	MapC, MapR, MapS       int32
	AMin, AMax, AMean      float32
	ISPG, NSymBT           int32
	Extra                  [25]int32
	Origin                 [3]float32
	Magic                  [4]byte
	MachSt                 [4]byte
	ARMS                   float32
	NLabl                  int32
	Labels                 [800]byte
}

// Read parses a CCP4/MRC map, gzipped or not, into an unnamed volume.
func Read(r io.Reader) (*volume.Volume, error) {
	return read(r, "", "")
}

// ReadFile reads a map file, named after its base filename.
func ReadFile(path string) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return read(f, name, path)
}

func read(r io.Reader, name, path string) (*volume.Volume, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad gzip map: %v", err)
		}
		defer gz.Close()
		br = bufio.NewReaderSize(gz, 1<<16)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("short map header: %v", err)
	}
	hw, order, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	h := hw.header()

	data, nx, ny, nz, err := readSamples(br, hw, order)
	if err != nil {
		return nil, err
	}

	v := volume.New(name, path)
	if err := v.SetData(data, nx, ny, nz, nil); err != nil {
		return nil, err
	}
	if err := v.SetTransform(hw.transform()); err != nil {
		return nil, err
	}
	v.SetHeader(h)
	isovol.Debugf("Read map %q: %dx%dx%d mode %d, mean %g rms %g\n",
		name, nx, ny, nz, h.Mode, h.AMean, h.ARMS)
	return v, nil
}

// decodeHeader resolves byte order from the machine stamp when it is present
// and by plausibility when it is not.
func decodeHeader(raw []byte) (*headerWire, binary.ByteOrder, error) {
	var orders []binary.ByteOrder
	switch raw[212] {
	case 0x44:
		orders = []binary.ByteOrder{binary.LittleEndian}
	case 0x11:
		orders = []binary.ByteOrder{binary.BigEndian}
	default:
		orders = []binary.ByteOrder{binary.LittleEndian, binary.BigEndian}
	}
	for _, order := range orders {
		hw := new(headerWire)
		if err := binary.Read(bytes.NewReader(raw), order, hw); err != nil {
			return nil, nil, err
		}
		if hw.plausible() {
			hw.normalize()
			return hw, order, nil
		}
	}
	return nil, nil, fmt.Errorf("not a readable CCP4/MRC map header")
}

func (hw *headerWire) plausible() bool {
	if hw.Mode < 0 || hw.Mode > 6 {
		return false
	}
	for _, n := range [3]int32{hw.NC, hw.NR, hw.NS} {
		if n < 1 || n > 1<<20 {
			return false
		}
	}
	return hw.NSymBT >= 0 && hw.NSymBT <= maxSymBytes
}

// normalize fills in the axis defaults some old files leave zero.
func (hw *headerWire) normalize() {
	if hw.MapC == 0 && hw.MapR == 0 && hw.MapS == 0 {
		hw.MapC, hw.MapR, hw.MapS = 1, 2, 3
	}
}

func (hw *headerWire) header() *Header {
	h := &Header{
		NC: hw.NC, NR: hw.NR, NS: hw.NS,
		Mode:   hw.Mode,
		StartC: hw.StartC, StartR: hw.StartR, StartS: hw.StartS,
		MX: hw.MX, MY: hw.MY, MZ: hw.MZ,
		CellA: hw.CellA, CellB: hw.CellB, CellC: hw.CellC,
		Alpha: hw.Alpha, Beta: hw.Beta, Gamma: hw.Gamma,
		MapC: hw.MapC, MapR: hw.MapR, MapS: hw.MapS,
		AMin: hw.AMin, AMax: hw.AMax, AMean: hw.AMean,
		ISPG:   hw.ISPG,
		NSymBT: hw.NSymBT,
		Origin: hw.Origin,
		ARMS:   hw.ARMS,
	}
	n := int(hw.NLabl)
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	for i := 0; i < n; i++ {
		label := strings.TrimRight(string(hw.Labels[i*80:(i+1)*80]), " \x00")
		h.Labels = append(h.Labels, label)
	}
	return h
}

// axisExtents distributes the file-order extents onto the x, y, z axes.
func (hw *headerWire) axisExtents() (nx, ny, nz int32, err error) {
	var n [4]int32
	for _, m := range [3][2]int32{{hw.MapC, hw.NC}, {hw.MapR, hw.NR}, {hw.MapS, hw.NS}} {
		axis, extent := m[0], m[1]
		if axis < 1 || axis > 3 || n[axis] != 0 {
			return 0, 0, 0, fmt.Errorf("bad axis order %d,%d,%d", hw.MapC, hw.MapR, hw.MapS)
		}
		n[axis] = extent
	}
	return n[1], n[2], n[3], nil
}

// spacing returns the voxel size per axis.  Maps without cell information get
// unit voxels.
func (hw *headerWire) spacing() [3]float64 {
	s := [3]float64{1, 1, 1}
	m := [3]int32{hw.MX, hw.MY, hw.MZ}
	cell := [3]float32{hw.CellA, hw.CellB, hw.CellC}
	for i := range s {
		if m[i] > 0 && cell[i] > 0 {
			s[i] = float64(cell[i]) / float64(m[i])
		}
	}
	return s
}

// transform builds the grid-to-world transform: scale by the voxel size,
// then translate to the map origin.  MRC2000 maps carry an explicit origin;
// CCP4 maps place the first sample at the start offsets in grid units.
func (hw *headerWire) transform() isovol.Matrix4 {
	s := hw.spacing()
	var o r3.Vec
	if hw.Origin != [3]float32{} {
		o = r3.Vec{X: float64(hw.Origin[0]), Y: float64(hw.Origin[1]), Z: float64(hw.Origin[2])}
	} else {
		var start [4]int32
		start[hw.MapC] = hw.StartC
		start[hw.MapR] = hw.StartR
		start[hw.MapS] = hw.StartS
		o = r3.Vec{
			X: float64(start[1]) * s[0],
			Y: float64(start[2]) * s[1],
			Z: float64(start[3]) * s[2],
		}
	}
	return isovol.Translate(o).Mul(isovol.Scale(r3.Vec{X: s[0], Y: s[1], Z: s[2]}))
}

func (hw *headerWire) orthogonal() bool {
	for _, a := range [3]float32{hw.Alpha, hw.Beta, hw.Gamma} {
		// Angle zero means "not set" and is taken as orthogonal.
		if a != 0 && math.Abs(float64(a)-90) > orthoTol {
			return false
		}
	}
	return true
}

func sampleBytes(mode int32) (int, error) {
	switch mode {
	case ModeInt8:
		return 1, nil
	case ModeInt16, ModeUint16:
		return 2, nil
	case ModeFloat32:
		return 4, nil
	}
	return 0, fmt.Errorf("unsupported map mode %d", mode)
}

// readSamples skips the symmetry block, decodes the sample block, and
// reorders it x-fastest.
func readSamples(r io.Reader, hw *headerWire, order binary.ByteOrder) ([]float32, int32, int32, int32, error) {
	if !hw.orthogonal() {
		return nil, 0, 0, 0, fmt.Errorf("non-orthogonal cell angles %g,%g,%g not supported",
			hw.Alpha, hw.Beta, hw.Gamma)
	}
	width, err := sampleBytes(hw.Mode)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	nx, ny, nz, err := hw.axisExtents()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	n := int64(hw.NC) * int64(hw.NR) * int64(hw.NS)
	if n > maxSamples {
		return nil, 0, 0, 0, fmt.Errorf("map of %d samples exceeds the %d sample limit", n, maxSamples)
	}

	if hw.NSymBT > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(hw.NSymBT)); err != nil {
			return nil, 0, 0, 0, fmt.Errorf("short symmetry block: %v", err)
		}
	}
	raw := make([]byte, n*int64(width))
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("short sample block: %v", err)
	}

	// Decode in file order.
	vals := make([]float32, n)
	switch hw.Mode {
	case ModeInt8:
		for i := range vals {
			vals[i] = float32(int8(raw[i]))
		}
	case ModeInt16:
		for i := range vals {
			vals[i] = float32(int16(order.Uint16(raw[2*i:])))
		}
	case ModeUint16:
		for i := range vals {
			vals[i] = float32(order.Uint16(raw[2*i:]))
		}
	case ModeFloat32:
		for i := range vals {
			vals[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
		}
	}

	if hw.MapC == 1 && hw.MapR == 2 && hw.MapS == 3 {
		return vals, nx, ny, nz, nil
	}

	// Permute file order (column fastest) into x-fastest.
	stride := [4]int64{0, 1, int64(nx), int64(nx) * int64(ny)}
	strideC := stride[hw.MapC]
	strideR := stride[hw.MapR]
	strideS := stride[hw.MapS]
	data := make([]float32, n)
	var k int64
	for s := int64(0); s < int64(hw.NS); s++ {
		for row := int64(0); row < int64(hw.NR); row++ {
			base := s*strideS + row*strideR
			for c := int64(0); c < int64(hw.NC); c++ {
				data[base+c*strideC] = vals[k]
				k++
			}
		}
	}
	return data, nx, ny, nz, nil
}
