/*
	Package registry tracks the volumes resident in a process.  Volumes notify
	it through the volume.Registry interface; the registry answers how many
	are held and how much memory their samples pin.
*/
package registry

import (
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/volume"
)

// entry is the accounting held per tracked volume.
type entry struct {
	name    string
	samples int64
	bytes   uint64
}

// MemRegistry is an in-memory volume.Registry.  Safe for concurrent use.
type MemRegistry struct {
	mu      sync.Mutex
	volumes map[string]entry
}

// New returns an empty registry.
func New() *MemRegistry {
	return &MemRegistry{volumes: make(map[string]entry)}
}

// Register starts tracking a volume.
func (r *MemRegistry) Register(v *volume.Volume) {
	e := measure(v)
	r.mu.Lock()
	r.volumes[v.UUID()] = e
	n, total := len(r.volumes), r.totalLocked()
	r.mu.Unlock()
	isovol.Debugf("Registered volume %q (%s); %d volumes hold %s\n",
		e.name, humanize.Bytes(e.bytes), n, humanize.Bytes(total))
}

// Update refreshes a tracked volume's accounting after its data changed.
func (r *MemRegistry) Update(v *volume.Volume) {
	e := measure(v)
	r.mu.Lock()
	r.volumes[v.UUID()] = e
	r.mu.Unlock()
	isovol.Debugf("Updated volume %q (%s)\n", e.name, humanize.Bytes(e.bytes))
}

// Unregister stops tracking a volume.
func (r *MemRegistry) Unregister(v *volume.Volume) {
	r.mu.Lock()
	delete(r.volumes, v.UUID())
	n, total := len(r.volumes), r.totalLocked()
	r.mu.Unlock()
	isovol.Debugf("Unregistered volume %q; %d volumes hold %s\n",
		v.Name(), n, humanize.Bytes(total))
}

// Len returns the number of tracked volumes.
func (r *MemRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.volumes)
}

// TotalBytes returns the memory pinned by all tracked volumes' buffers.
func (r *MemRegistry) TotalBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalLocked()
}

func (r *MemRegistry) totalLocked() uint64 {
	var total uint64
	for _, e := range r.volumes {
		total += e.bytes
	}
	return total
}

func measure(v *volume.Volume) entry {
	f := v.Field()
	var numBytes uint64
	if data := f.Data(); data != nil {
		numBytes += uint64(size.Of(data))
	}
	if owners := f.Owners(); owners != nil {
		numBytes += uint64(size.Of(owners))
	}
	return entry{name: v.Name(), samples: f.NumSamples(), bytes: numBytes}
}
