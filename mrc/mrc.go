/*
	Package mrc reads CCP4/MRC density maps into volumes.

	The reader handles the fixed 1024-byte header in either byte order,
	transparently decompresses gzipped maps, converts the supported sample
	modes to float32, and reorders axes so samples are always x-fastest.
	The parsed header stays attached to the volume, carrying the map's own
	density statistics for filter defaults.
*/
package mrc

import "encoding/gob"

func init() {
	// Headers travel inside volume snapshots.
	gob.Register(&Header{})
}

// Sample modes defined by the format.  Complex modes 3 and 4 exist in the
// wild but have no sensible scalar interpretation here.
const (
	ModeInt8    = 0
	ModeInt16   = 1
	ModeFloat32 = 2
	ModeUint16  = 6
)

// Header is the parsed CCP4/MRC map header.  Extents and starts are in file
// order (columns, rows, sections); MX/MY/MZ, cell dimensions, and angles are
// in axis order (x, y, z).
type Header struct {
	NC, NR, NS             int32
	Mode                   int32
	StartC, StartR, StartS int32
	MX, MY, MZ             int32
	CellA, CellB, CellC    float32
	Alpha, Beta, Gamma     float32
	MapC, MapR, MapS       int32
	AMin, AMax, AMean      float32
	ISPG                   int32
	NSymBT                 int32
	Origin                 [3]float32
	ARMS                   float32
	Labels                 []string
}

// DefaultFilterMin returns the conventional density floor for this map, two
// RMS deviations above the recorded mean.  Maps that never computed a
// deviation (ARMS <= 0) offer no default.
func (h *Header) DefaultFilterMin() (float64, bool) {
	if h.ARMS <= 0 {
		return 0, false
	}
	return float64(h.AMean) + 2*float64(h.ARMS), true
}
