/*
	This file implements value-range filtering over a volume.  The filtered
	view reuses worst-case backing storage across calls, so repeated filtering
	of a large volume does not allocate per call.
*/

package volume

import (
	"math"

	"github.com/janelia-flyem/isovol/isovol"
)

// FilterView exposes the subset of (world position, value) pairs whose value
// passes a range predicate.  Views returned by Values and Positions are only
// valid until the next Apply; Apply must not be called concurrently with
// itself or with readers of the previous view.
type FilterView struct {
	vol *Volume

	// last applied triple, after default resolution, plus the volume
	// generation it was computed against.
	min, max float64
	outside  bool
	applied  bool
	gen      uint64

	// worst-case backing storage, allocated once and reused.
	dataBuf []float32
	posBuf  []float32

	values    []float32
	positions []float32
}

// NewFilterView returns an unapplied filter over the volume.
func NewFilterView(v *Volume) *FilterView {
	return &FilterView{vol: v}
}

// Apply filters the volume's samples by value.  A sample v is retained iff
// (!outside && min <= v <= max) || (outside && (v < min || v > max)).
//
// A NaN minValue resolves to the volume header's default lower bound when one
// is attached, else -Inf; a NaN maxValue resolves to +Inf.  When the resolved
// triple equals the last applied one and the volume is unchanged, the previous
// view is kept without rescanning.  A fully open range exposes the canonical
// data and cached grid positions directly with no copying.
func (fv *FilterView) Apply(minValue, maxValue float64, outside bool) {
	if math.IsNaN(minValue) {
		minValue = math.Inf(-1)
		if h := fv.vol.Header(); h != nil {
			if def, ok := h.DefaultFilterMin(); ok {
				minValue = def
			}
		}
	}
	if math.IsNaN(maxValue) {
		maxValue = math.Inf(1)
	}

	gen := fv.vol.Generation()
	if fv.applied && gen == fv.gen &&
		minValue == fv.min && maxValue == fv.max && outside == fv.outside {
		return
	}
	timedLog := isovol.NewTimeLog()

	if !outside && math.IsInf(minValue, -1) && math.IsInf(maxValue, 1) {
		fv.values = fv.vol.field.Data()
		fv.positions = fv.vol.GridPositions()
	} else {
		data := fv.vol.field.Data()
		positions := fv.vol.GridPositions()
		if n := len(data); len(fv.dataBuf) < n {
			fv.dataBuf = make([]float32, n)
			fv.posBuf = make([]float32, 3*n)
		}
		kept := 0
		for i, v := range data {
			val := float64(v)
			if (!outside && val >= minValue && val <= maxValue) ||
				(outside && (val < minValue || val > maxValue)) {
				fv.dataBuf[kept] = v
				j := i * 3
				k := kept * 3
				fv.posBuf[k] = positions[j]
				fv.posBuf[k+1] = positions[j+1]
				fv.posBuf[k+2] = positions[j+2]
				kept++
			}
		}
		fv.values = fv.dataBuf[:kept]
		fv.positions = fv.posBuf[:kept*3]
	}

	fv.min, fv.max, fv.outside = minValue, maxValue, outside
	fv.applied = true
	fv.gen = gen
	timedLog.Debugf("filtered volume %q to [%g,%g] outside=%t: %d of %d samples",
		fv.vol.Name(), minValue, maxValue, outside, fv.Len(), fv.vol.field.NumSamples())
}

// Values returns the retained sample values.  Before the first Apply it
// returns nil.
func (fv *FilterView) Values() []float32 {
	return fv.values
}

// Positions returns flat xyz world positions parallel to Values.
func (fv *FilterView) Positions() []float32 {
	return fv.positions
}

// Len returns the number of retained samples.
func (fv *FilterView) Len() int {
	return len(fv.values)
}
