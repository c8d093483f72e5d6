/*
	This file defines the registry collaborator used for process-wide memory
	bookkeeping.  The volume only decides whether to notify; tracking itself is
	injected.
*/

package volume

import (
	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/isovol/isovol"
)

// MaxRegisteredSamples is the sample count above which a volume is kept out of
// the registry.  Accounting overhead on such volumes costs more than the
// bookkeeping is worth, so they are skipped with a logged warning.
const MaxRegisteredSamples = 10_000_000

// Registry receives lifecycle notifications for volumes so a process can track
// what is resident in memory.  Implementations must be safe for concurrent use.
type Registry interface {
	Register(v *Volume)
	Update(v *Volume)
	Unregister(v *Volume)
}

// SetRegistry attaches a registry to the volume.  If the volume already holds
// data, its entry is brought up to date immediately.
func (v *Volume) SetRegistry(r Registry) {
	v.registry = r
	if v.field.NumSamples() > 0 {
		v.notifyRegistry()
	}
}

func (v *Volume) notifyRegistry() {
	if v.registry == nil {
		return
	}
	n := v.field.NumSamples()
	if n > MaxRegisteredSamples {
		isovol.Warningf("volume %q has %s samples, above the %s registry limit; not tracked\n",
			v.name, humanize.Comma(n), humanize.Comma(int64(MaxRegisteredSamples)))
		if v.registered {
			v.registry.Unregister(v)
			v.registered = false
		}
		return
	}
	if v.registered {
		v.registry.Update(v)
		return
	}
	v.registry.Register(v)
	v.registered = true
}
