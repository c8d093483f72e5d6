/*
	This file implements the scalar field: the raw flat sample array with its
	grid extents, optional per-sample owner labels, and lazily computed summary
	statistics.
*/

package volume

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidDimensions is returned when grid extents disagree with the length
// of the supplied sample or owner-label slice, or when an extent is < 1.
var ErrInvalidDimensions = errors.New("grid extents do not match sample count")

// Stat selects one of the lazily computed field statistics.
type Stat uint8

const (
	StatMin Stat = iota
	StatMax
	StatMean
	StatRMS
	numStats
)

// ScalarField holds the samples of a regular 3D scalar field in a flat array
// ordered x fastest, then y, then z: index = ((z*ny)+y)*nx + x.  An optional
// parallel owners array labels each sample with an external entity id.
//
// Statistics are computed by a single linear scan the first time each one is
// requested and memoized until the samples are replaced.
type ScalarField struct {
	data       []float32
	nx, ny, nz int32
	owners     []uint64

	mu    sync.Mutex // guards the stat memos
	stats [numStats]statMemo
}

type statMemo struct {
	valid bool
	value float64
}

// setSamples replaces the raw data and invalidates all cached statistics.
// Extents must each be at least 1 and their product must equal len(data);
// owners must be nil or parallel to data.
func (f *ScalarField) setSamples(data []float32, nx, ny, nz int32, owners []uint64) error {
	if nx < 1 || ny < 1 || nz < 1 {
		return fmt.Errorf("%w: extents (%d,%d,%d) must be positive", ErrInvalidDimensions, nx, ny, nz)
	}
	if want := int64(nx) * int64(ny) * int64(nz); want != int64(len(data)) {
		return fmt.Errorf("%w: (%d,%d,%d) grid needs %d samples, got %d",
			ErrInvalidDimensions, nx, ny, nz, want, len(data))
	}
	if owners != nil && len(owners) != len(data) {
		return fmt.Errorf("%w: %d owner labels for %d samples", ErrInvalidDimensions, len(owners), len(data))
	}
	f.data = data
	f.nx, f.ny, f.nz = nx, ny, nz
	f.owners = owners
	f.invalidateStats()
	return nil
}

func (f *ScalarField) invalidateStats() {
	f.mu.Lock()
	for i := range f.stats {
		f.stats[i] = statMemo{}
	}
	f.mu.Unlock()
}

// Data returns the canonical sample array.  Callers must treat it as read-only;
// extraction and filtering never mutate it.
func (f *ScalarField) Data() []float32 {
	return f.data
}

// Owners returns the per-sample owner labels or nil if the field is unlabeled.
func (f *ScalarField) Owners() []uint64 {
	return f.owners
}

// NX, NY and NZ return the grid extents.
func (f *ScalarField) NX() int32 { return f.nx }
func (f *ScalarField) NY() int32 { return f.ny }
func (f *ScalarField) NZ() int32 { return f.nz }

// NumSamples returns the total sample count nx*ny*nz.
func (f *ScalarField) NumSamples() int64 {
	return int64(len(f.data))
}

// Index returns the flat array index for grid coordinate (x,y,z).
func (f *ScalarField) Index(x, y, z int32) int64 {
	return (int64(z)*int64(f.ny)+int64(y))*int64(f.nx) + int64(x)
}

// Value returns the sample at grid coordinate (x,y,z).
func (f *ScalarField) Value(x, y, z int32) float32 {
	return f.data[f.Index(x, y, z)]
}

// Statistic returns the requested statistic, computing and memoizing it on
// first use.  A field with no samples reports 0 for every statistic.
func (f *ScalarField) Statistic(which Stat) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if memo := &f.stats[which]; memo.valid {
		return memo.value
	}
	var value float64
	n := len(f.data)
	if n > 0 {
		switch which {
		case StatMin:
			value = float64(f.data[0])
			for _, v := range f.data[1:] {
				if fv := float64(v); fv < value {
					value = fv
				}
			}
		case StatMax:
			value = float64(f.data[0])
			for _, v := range f.data[1:] {
				if fv := float64(v); fv > value {
					value = fv
				}
			}
		case StatMean:
			var sum float64
			for _, v := range f.data {
				sum += float64(v)
			}
			value = sum / float64(n)
		case StatRMS:
			var sumSq float64
			for _, v := range f.data {
				fv := float64(v)
				sumSq += fv * fv
			}
			value = math.Sqrt(sumSq / float64(n))
		}
	}
	f.stats[which] = statMemo{valid: true, value: value}
	return value
}

// Min returns the smallest sample value.
func (f *ScalarField) Min() float64 { return f.Statistic(StatMin) }

// Max returns the largest sample value.
func (f *ScalarField) Max() float64 { return f.Statistic(StatMax) }

// Mean returns the arithmetic mean of the samples.
func (f *ScalarField) Mean() float64 { return f.Statistic(StatMean) }

// RMS returns the root mean square of the samples: sqrt(sum(v*v)/n).
func (f *ScalarField) RMS() float64 { return f.Statistic(StatRMS) }

// ValueForSigma maps a sigma multiple into a sample value: mean + k*rms.
// With a zero RMS this degenerates to the mean.
func (f *ScalarField) ValueForSigma(k float64) float64 {
	return f.Mean() + k*f.RMS()
}

// SigmaForValue maps a sample value into sigma units: (v - mean) / rms.
// A zero RMS yields an IEEE infinity (or NaN at the mean) rather than a panic.
func (f *ScalarField) SigmaForValue(v float64) float64 {
	return (v - f.Mean()) / f.RMS()
}
