// Package mapmaking implements the filter-and-bin mapmaker: scan records are
// consumed in arrival order, per-detector sky pointing is reconstructed from
// fixed focal-plane offsets, and signal and hit counts are accumulated into
// a fixed sky grid. The displayable map is the elementwise quotient of the
// two accumulation grids.
package mapmaking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"skymapper/internal/models"
	"skymapper/pkg/grid"
	"skymapper/pkg/pointing"
)

// Accumulator bins calibrated detector timestreams into a sky grid. It owns
// two same-shaped grids, the signal sum and the hit count, both mutated in
// place by every ingested record that carries a target detector. After the
// stream ends the averaged map is obtained from Map().
//
// An Accumulator is a single-owner object: ingestion is strictly sequential.
// Independent accumulators over the same grid may run in parallel and be
// combined afterwards with Merge.
type Accumulator struct {
	grid      *grid.Grid
	field     models.TimestreamField
	detectors []string
	offsets   map[string]models.DetectorOffset

	signal *mat.Dense
	hits   *mat.Dense

	recordsSeen     int
	recordsBinned   int
	samplesBinned   int
	samplesRejected int
}

// NewAccumulator builds an accumulator for the given target detectors. Every
// target detector must have a known offset; a missing offset is a
// configuration error reported here, before any record is processed.
func NewAccumulator(g *grid.Grid, field models.TimestreamField, detectors []string, offsets map[string]models.DetectorOffset) (*Accumulator, error) {
	if g == nil {
		return nil, fmt.Errorf("accumulator requires a grid")
	}
	if field != models.FieldRaw && field != models.FieldCalibrated {
		return nil, fmt.Errorf("unknown timestream field %q", field)
	}
	if len(detectors) == 0 {
		return nil, fmt.Errorf("accumulator requires at least one target detector")
	}
	for _, id := range detectors {
		if _, ok := offsets[id]; !ok {
			return nil, fmt.Errorf("unknown detector %q: no offset entry", id)
		}
	}

	rows, cols := g.NumDec(), g.NumRA()
	targets := make([]string, len(detectors))
	copy(targets, detectors)
	return &Accumulator{
		grid:      g,
		field:     field,
		detectors: targets,
		offsets:   offsets,
		signal:    mat.NewDense(rows, cols, nil),
		hits:      mat.NewDense(rows, cols, nil),
	}, nil
}

// Grid returns the grid the accumulator bins into.
func (a *Accumulator) Grid() *grid.Grid { return a.grid }

// Ingest processes one scan record. Records lacking the configured
// timestream field, or carrying none of the target detectors, are skipped
// silently: not every record type carries every field. A record whose
// detector timestream length disagrees with its boresight length is
// malformed and returns an error.
func (a *Accumulator) Ingest(rec *models.ScanRecord) error {
	a.recordsSeen++

	if rec == nil || rec.NumSamples() == 0 {
		return nil
	}
	if len(rec.BoresightDec) != len(rec.BoresightRA) {
		return fmt.Errorf("record %d: boresight axes disagree in length (%d vs %d)",
			rec.ID, len(rec.BoresightRA), len(rec.BoresightDec))
	}

	ts, ok := rec.Timestreams(a.field)
	if !ok {
		return nil
	}

	binnedAny := false
	for _, id := range a.detectors {
		samples, present := ts[id]
		if !present {
			continue
		}
		if len(samples) != rec.NumSamples() {
			return fmt.Errorf("record %d: detector %q has %d samples, boresight has %d",
				rec.ID, id, len(samples), rec.NumSamples())
		}

		ra, dec := pointing.Apply(a.offsets[id], rec.BoresightRA, rec.BoresightDec)
		for i, v := range samples {
			row, col, inside := a.grid.Digitize(dec[i], ra[i])
			if !inside {
				a.samplesRejected++
				continue
			}
			a.signal.Set(row, col, a.signal.At(row, col)+v)
			a.hits.Set(row, col, a.hits.At(row, col)+1)
			a.samplesBinned++
		}
		binnedAny = true
	}
	if binnedAny {
		a.recordsBinned++
	}
	return nil
}

// SignalSum returns a copy of the accumulated signal grid.
func (a *Accumulator) SignalSum() *mat.Dense {
	return mat.DenseCopyOf(a.signal)
}

// HitCount returns a copy of the accumulated hit-count grid.
func (a *Accumulator) HitCount() *mat.Dense {
	return mat.DenseCopyOf(a.hits)
}

// Map returns a snapshot of the averaged sky map: signal sum divided by hit
// count per pixel, with NaN in every pixel no sample landed in. Unhit pixels
// must never read as zero, which would be indistinguishable from measured
// empty sky.
func (a *Accumulator) Map() *mat.Dense {
	rows, cols := a.signal.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			h := a.hits.At(r, c)
			if h == 0 {
				out.Set(r, c, math.NaN())
				continue
			}
			out.Set(r, c, a.signal.At(r, c)/h)
		}
	}
	return out
}

// Merge folds another accumulator's grids into this one by elementwise
// addition. Both accumulators must share the same grid geometry; merging is
// how detector-parallel or record-parallel accumulation recombines.
func (a *Accumulator) Merge(other *Accumulator) error {
	ar, ac := a.signal.Dims()
	br, bc := other.signal.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("cannot merge %dx%d accumulator into %dx%d", br, bc, ar, ac)
	}
	a.signal.Add(a.signal, other.signal)
	a.hits.Add(a.hits, other.hits)
	a.recordsSeen += other.recordsSeen
	a.recordsBinned += other.recordsBinned
	a.samplesBinned += other.samplesBinned
	a.samplesRejected += other.samplesRejected
	return nil
}

// Stats reports ingestion counters for run summaries.
func (a *Accumulator) Stats() (recordsSeen, recordsBinned, samplesBinned, samplesRejected int) {
	return a.recordsSeen, a.recordsBinned, a.samplesBinned, a.samplesRejected
}
