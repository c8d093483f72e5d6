package volume

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/janelia-flyem/isovol/isovol"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeRegistry struct {
	registered   int
	updated      int
	unregistered int
	last         *Volume
}

func (r *fakeRegistry) Register(v *Volume)   { r.registered++; r.last = v }
func (r *fakeRegistry) Update(v *Volume)     { r.updated++; r.last = v }
func (r *fakeRegistry) Unregister(v *Volume) { r.unregistered++; r.last = v }

func TestRegistryLifecycle(t *testing.T) {
	v := New("tiny", "")
	reg := new(fakeRegistry)
	v.SetRegistry(reg)
	if reg.registered != 0 {
		t.Fatalf("registered an empty volume")
	}
	if err := v.SetData([]float32{1, 2, 3, 4}, 4, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if reg.registered != 1 || reg.updated != 0 {
		t.Fatalf("after first data: %d registers, %d updates", reg.registered, reg.updated)
	}
	if reg.last != v {
		t.Fatalf("registered a different volume")
	}
	if err := v.SetData([]float32{5, 6}, 2, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if reg.registered != 1 || reg.updated != 1 {
		t.Fatalf("after replacing data: %d registers, %d updates", reg.registered, reg.updated)
	}
	if err := v.SetTransform(isovol.Scale(r3.Vec{X: 2, Y: 2, Z: 2})); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	if reg.registered != 1 || reg.updated != 1 {
		t.Fatalf("transform change should not touch registry")
	}
	v.Dispose()
	if reg.unregistered != 1 {
		t.Fatalf("after dispose: %d unregisters", reg.unregistered)
	}
	v.Dispose()
	if reg.unregistered != 1 {
		t.Fatalf("second dispose unregistered again")
	}

	// Attaching a registry after data is loaded registers immediately.
	v2 := New("late", "")
	if err := v2.SetData([]float32{7}, 1, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	reg2 := new(fakeRegistry)
	v2.SetRegistry(reg2)
	if reg2.registered != 1 {
		t.Fatalf("late-attached registry got %d registers", reg2.registered)
	}
}

func TestRegistryThreshold(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	v := New("huge", "")
	reg := new(fakeRegistry)
	v.SetRegistry(reg)

	if err := v.SetData([]float32{1, 2, 3}, 3, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if reg.registered != 1 {
		t.Fatalf("small volume not registered")
	}

	big := make([]float32, MaxRegisteredSamples+1)
	if err := v.SetData(big, int32(len(big)), 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if reg.unregistered != 1 {
		t.Fatalf("oversized volume left in registry: %d unregisters", reg.unregistered)
	}
	if reg.registered != 1 || reg.updated != 0 {
		t.Fatalf("oversized volume tracked: %d registers, %d updates", reg.registered, reg.updated)
	}
	logged := buf.String()
	if !strings.Contains(logged, " WARNING ") {
		t.Errorf("no warning logged for oversized volume: %q", logged)
	}
	if !strings.Contains(logged, "10,000,001") {
		t.Errorf("warning should report the sample count: %q", logged)
	}
}

func TestReleaseHooks(t *testing.T) {
	v := New("hooked", "")
	fired := 0
	v.RegisterOnRelease(func() { fired++ })

	if err := v.SetData([]float32{1, 2}, 2, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if fired != 1 {
		t.Fatalf("hook fired %d times after first data", fired)
	}
	if err := v.SetData([]float32{3, 4}, 2, 1, 1, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if fired != 2 {
		t.Fatalf("hook fired %d times after replacing data", fired)
	}
	if err := v.SetTransform(isovol.Translate(r3.Vec{X: 1})); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	if fired != 2 {
		t.Fatalf("transform change fired release hooks")
	}
	v.Dispose()
	if fired != 3 {
		t.Fatalf("hook fired %d times after dispose", fired)
	}
}

func TestGridPositions(t *testing.T) {
	v := New("grid", "")
	if err := v.SetData(make([]float32, 8), 2, 2, 2, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	p := v.GridPositions()
	if len(p) != 24 {
		t.Fatalf("expected 24 floats, got %d", len(p))
	}
	// Identity transform: positions are the grid coordinates, x fastest.
	checks := []struct {
		voxel int
		want  [3]float32
	}{
		{0, [3]float32{0, 0, 0}},
		{1, [3]float32{1, 0, 0}},
		{2, [3]float32{0, 1, 0}},
		{4, [3]float32{0, 0, 1}},
		{7, [3]float32{1, 1, 1}},
	}
	for _, c := range checks {
		i := c.voxel * 3
		got := [3]float32{p[i], p[i+1], p[i+2]}
		if got != c.want {
			t.Errorf("voxel %d at %v, expected %v", c.voxel, got, c.want)
		}
	}

	p2 := v.GridPositions()
	if &p2[0] != &p[0] {
		t.Errorf("positions recomputed without a generation change")
	}

	if err := v.SetTransform(isovol.Translate(r3.Vec{X: 5})); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	p3 := v.GridPositions()
	if p3[0] != 5 || p3[1] != 0 || p3[2] != 0 {
		t.Errorf("translated first position = (%g,%g,%g)", p3[0], p3[1], p3[2])
	}
	if &p3[0] == &p[0] {
		t.Errorf("positions not recomputed after transform change")
	}
}
