// Package grid defines the rectangular sky pixel mesh that maps are
// accumulated into. A grid is built once per mapmaking run from a center
// coordinate, per-axis angular extent and per-axis resolution, and is
// immutable afterwards.
package grid

import (
	"fmt"
	"math"
	"sort"
)

// Spec describes the geometry of a sky grid. All angles are in degrees.
type Spec struct {
	// CenterRA and CenterDec locate the middle of the grid on the sky.
	CenterRA  float64
	CenterDec float64

	// ExtentRA and ExtentDec are the full angular widths covered by the grid
	// along each axis.
	ExtentRA  float64
	ExtentDec float64

	// ResRA and ResDec are the angular sizes of one pixel along each axis.
	ResRA  float64
	ResDec float64
}

// Grid is a fixed rectangular pixel mesh over the (dec, ra) plane. Rows index
// declination bins, columns index right ascension bins. For N bins per axis
// the grid holds N+1 strictly increasing bin edges.
type Grid struct {
	spec     Spec
	raEdges  []float64
	decEdges []float64
}

// New validates the spec and builds the bin edges. The number of bins per
// axis is extent/resolution rounded to the nearest integer; both must come
// out to at least one bin.
func New(spec Spec) (*Grid, error) {
	raEdges, err := edges(spec.CenterRA, spec.ExtentRA, spec.ResRA, "ra")
	if err != nil {
		return nil, err
	}
	decEdges, err := edges(spec.CenterDec, spec.ExtentDec, spec.ResDec, "dec")
	if err != nil {
		return nil, err
	}
	return &Grid{spec: spec, raEdges: raEdges, decEdges: decEdges}, nil
}

// edges builds n+1 evenly spaced edge values centered on center.
func edges(center, extent, res float64, axis string) ([]float64, error) {
	if extent <= 0 {
		return nil, fmt.Errorf("%s extent must be positive, got %g", axis, extent)
	}
	if res <= 0 {
		return nil, fmt.Errorf("%s resolution must be positive, got %g", axis, res)
	}
	n := int(math.Round(extent / res))
	if n < 1 {
		return nil, fmt.Errorf("%s extent %g is smaller than resolution %g", axis, extent, res)
	}
	start := center - extent/2
	out := make([]float64, n+1)
	for i := range out {
		out[i] = start + float64(i)*res
	}
	return out, nil
}

// Spec returns the geometry the grid was built from.
func (g *Grid) Spec() Spec { return g.spec }

// NumRA returns the number of right ascension bins.
func (g *Grid) NumRA() int { return len(g.raEdges) - 1 }

// NumDec returns the number of declination bins.
func (g *Grid) NumDec() int { return len(g.decEdges) - 1 }

// RAEdges returns a copy of the right ascension bin edges.
func (g *Grid) RAEdges() []float64 {
	out := make([]float64, len(g.raEdges))
	copy(out, g.raEdges)
	return out
}

// DecEdges returns a copy of the declination bin edges.
func (g *Grid) DecEdges() []float64 {
	out := make([]float64, len(g.decEdges))
	copy(out, g.decEdges)
	return out
}

// Digitize maps a sky position to its (row, col) pixel. Samples outside the
// grid return ok=false. A sample exactly on the top edge of an axis is
// clamped into the last bin so the closed upper boundary is not lost.
func (g *Grid) Digitize(dec, ra float64) (row, col int, ok bool) {
	row, ok = locate(g.decEdges, dec)
	if !ok {
		return 0, 0, false
	}
	col, ok = locate(g.raEdges, ra)
	if !ok {
		return 0, 0, false
	}
	return row, col, true
}

// locate finds the bin index of v within strictly increasing edges.
func locate(edges []float64, v float64) (int, bool) {
	n := len(edges) - 1
	if v < edges[0] || v > edges[n] {
		return 0, false
	}
	idx := sort.SearchFloat64s(edges, v)
	var bin int
	if idx <= n && edges[idx] == v {
		bin = idx
	} else {
		bin = idx - 1
	}
	if bin == n {
		bin = n - 1
	}
	return bin, true
}
