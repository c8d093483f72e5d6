/*
	This file defines the serialized form of a volume.  The snapshot is the
	wire and persistence contract: what a worker needs to rebuild an equivalent
	ScalarField and CoordinateFrame without recomputing any derived matrix.
*/

package volume

import (
	"fmt"

	"github.com/janelia-flyem/isovol/isovol"
	"gonum.org/v1/gonum/spatial/r3"
)

// Snapshot is the gob-encodable flat form of a Volume.  Matrices are flattened
// row-major; the bounding box is carried as min then max corner.  Sample data
// round-trips bit-identically; the derived matrices are carried rather than
// recomputed so loaders agree exactly with the serializing side.
type Snapshot struct {
	Name string
	Path string
	UUID string

	Data       []float32
	NX, NY, NZ int32
	Owners     []uint64

	Transform        [16]float64
	NormalTransform  [9]float64
	InverseTransform [16]float64
	Center           [3]float64
	BoundingBox      [2][3]float64

	Header     Header
	Generation uint64
}

// Snapshot captures the volume's current data and frame.  The sample and owner
// slices are shared, not copied; the snapshot must be serialized or discarded
// before the volume is mutated.
func (v *Volume) Snapshot() *Snapshot {
	box := v.frame.boundingBox
	c := v.frame.center
	return &Snapshot{
		Name:             v.name,
		Path:             v.path,
		UUID:             v.uid,
		Data:             v.field.data,
		NX:               v.field.nx,
		NY:               v.field.ny,
		NZ:               v.field.nz,
		Owners:           v.field.owners,
		Transform:        [16]float64(v.frame.transform),
		NormalTransform:  [9]float64(v.frame.normalTransform),
		InverseTransform: [16]float64(v.frame.inverseTransform),
		Center:           [3]float64{c.X, c.Y, c.Z},
		BoundingBox: [2][3]float64{
			{box.Min.X, box.Min.Y, box.Min.Z},
			{box.Max.X, box.Max.Y, box.Max.Z},
		},
		Header:     v.header,
		Generation: v.generation.Load(),
	}
}

// FromSnapshot reconstructs a volume from its serialized form.  The carried
// derived matrices and bounds are installed directly.
func FromSnapshot(s *Snapshot) (*Volume, error) {
	v := &Volume{
		name: s.Name,
		path: s.Path,
		uid:  s.UUID,
	}
	if err := v.field.setSamples(s.Data, s.NX, s.NY, s.NZ, s.Owners); err != nil {
		return nil, fmt.Errorf("snapshot of volume %q: %v", s.Name, err)
	}
	v.frame.transform = isovol.Matrix4(s.Transform)
	v.frame.normalTransform = isovol.Matrix3(s.NormalTransform)
	v.frame.inverseTransform = isovol.Matrix4(s.InverseTransform)
	v.frame.boundingBox = r3.Box{
		Min: r3.Vec{X: s.BoundingBox[0][0], Y: s.BoundingBox[0][1], Z: s.BoundingBox[0][2]},
		Max: r3.Vec{X: s.BoundingBox[1][0], Y: s.BoundingBox[1][1], Z: s.BoundingBox[1][2]},
	}
	v.frame.center = r3.Vec{X: s.Center[0], Y: s.Center[1], Z: s.Center[2]}
	v.header = s.Header
	v.generation.Store(s.Generation)
	v.dataGeneration.Store(s.Generation)
	return v, nil
}

// Serialize encodes the snapshot through the standard envelope.
func (s *Snapshot) Serialize(compress isovol.Compression, checksum isovol.Checksum) ([]byte, error) {
	return isovol.Serialize(s, compress, checksum)
}

// DeserializeSnapshot decodes a snapshot produced by Serialize.
func DeserializeSnapshot(b []byte) (*Snapshot, error) {
	s := new(Snapshot)
	if err := isovol.Deserialize(b, s); err != nil {
		return nil, err
	}
	return s, nil
}
