package volume

import (
	"encoding/gob"
	"math"
	"testing"

	"github.com/janelia-flyem/isovol/isovol"
	"gonum.org/v1/gonum/spatial/r3"
)

func init() {
	gob.Register(&testHeader{})
}

func TestSnapshotRoundTrip(t *testing.T) {
	v := New("emd-1234", "/maps/emd-1234.map")
	data := []float32{0, 0.5, -1, 2, 3, 4, 5.25, 6}
	owners := []uint64{1, 1, 2, 2, 3, 3, 4, 4}
	if err := v.SetData(data, 2, 2, 2, owners); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	m := isovol.Translate(r3.Vec{X: -4, Y: 2, Z: 9}).Mul(isovol.Scale(r3.Vec{X: 1.5, Y: 1.5, Z: 2}))
	if err := v.SetTransform(m); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	v.SetHeader(&testHeader{MinDefault: 1.75})

	b, err := v.Snapshot().Serialize(isovol.Snappy, isovol.CRC32)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s, err := DeserializeSnapshot(b)
	if err != nil {
		t.Fatalf("DeserializeSnapshot: %v", err)
	}
	got, err := FromSnapshot(s)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if got.Name() != v.Name() || got.Path() != v.Path() || got.UUID() != v.UUID() {
		t.Errorf("identity altered: %q %q %q", got.Name(), got.Path(), got.UUID())
	}
	if got.Generation() != v.Generation() {
		t.Errorf("generation altered: %d vs %d", got.Generation(), v.Generation())
	}
	for i, want := range data {
		if got.Field().Data()[i] != want {
			t.Fatalf("sample %d altered: %g vs %g", i, got.Field().Data()[i], want)
		}
	}
	for i, want := range owners {
		if got.Field().Owners()[i] != want {
			t.Fatalf("owner %d altered: %d vs %d", i, got.Field().Owners()[i], want)
		}
	}
	if got.Field().Min() != v.Field().Min() || got.Field().Max() != v.Field().Max() {
		t.Errorf("statistics differ after round trip: min %g vs %g, max %g vs %g",
			got.Field().Min(), v.Field().Min(), got.Field().Max(), v.Field().Max())
	}
	if got.Frame().Transform() != v.Frame().Transform() {
		t.Errorf("transform altered")
	}
	if got.Frame().NormalTransform() != v.Frame().NormalTransform() {
		t.Errorf("normal transform altered")
	}
	if got.Frame().InverseTransform() != v.Frame().InverseTransform() {
		t.Errorf("inverse transform altered")
	}
	gotBox, wantBox := got.BoundingBox(), v.BoundingBox()
	if gotBox.Min != wantBox.Min || gotBox.Max != wantBox.Max {
		t.Errorf("bounding box altered: %v vs %v", gotBox, wantBox)
	}
	if got.Header() == nil {
		t.Fatalf("header dropped in round trip")
	}
	min, ok := got.Header().DefaultFilterMin()
	if !ok || math.Abs(min-1.75) > 1e-12 {
		t.Errorf("header default = %g (%t), expected 1.75", min, ok)
	}
}

func TestSnapshotOfUnlabeledVolume(t *testing.T) {
	v := New("plain", "")
	if err := v.SetData([]float32{1, 2, 3, 4, 5, 6}, 3, 2, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	b, err := v.Snapshot().Serialize(isovol.Uncompressed, isovol.NoChecksum)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s, err := DeserializeSnapshot(b)
	if err != nil {
		t.Fatalf("DeserializeSnapshot: %v", err)
	}
	got, err := FromSnapshot(s)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if got.Field().Owners() != nil {
		t.Errorf("expected nil owners, got %v", got.Field().Owners())
	}
	if got.Header() != nil {
		t.Errorf("expected nil header, got %v", got.Header())
	}
	if got.Field().NX() != 3 || got.Field().NY() != 2 || got.Field().NZ() != 1 {
		t.Errorf("extents altered: (%d,%d,%d)", got.Field().NX(), got.Field().NY(), got.Field().NZ())
	}
}
