package mapmaking

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"skymapper/internal/models"
	"skymapper/pkg/calibration"
	"skymapper/pkg/filter"
	"skymapper/pkg/grid"
	"skymapper/pkg/pointing"
	"skymapper/pkg/source"
	"skymapper/pkg/visualization"
)

// FilterMode selects the per-record baseline removal applied before binning.
type FilterMode int

const (
	// FilterNone bins the timestreams as they arrive.
	FilterNone FilterMode = iota

	// FilterMean subtracts the per-record mean from each detector timestream.
	FilterMean

	// FilterMasked subtracts a per-record baseline estimated away from a
	// known source position.
	FilterMasked
)

// Params holds the mapmaking run configuration.
type Params struct {
	// Grid is the output map geometry.
	Grid grid.Spec

	// Detectors lists the detector identifiers to bin.
	Detectors []string

	// Offsets maps every target detector to its focal-plane offset.
	Offsets map[string]models.DetectorOffset

	// Calibration converts raw timestreams to physical units before
	// filtering and binning. Nil means records already arrive calibrated.
	Calibration *calibration.Store

	// Field selects which timestream map of each record is binned. With a
	// calibration store set this must be the calibrated field.
	Field models.TimestreamField

	// Filter selects the baseline removal mode. FilterMasked additionally
	// uses SourceRA, SourceDec and MaskRadius (degrees).
	Filter     FilterMode
	SourceRA   float64
	SourceDec  float64
	MaskRadius float64

	// SnapshotEvery writes an intermediary map image every N binned
	// records into SnapshotDir; 0 disables snapshots.
	SnapshotEvery int
	SnapshotDir   string

	// Verbose enables progress output during the stream.
	Verbose bool
}

// Mapmaker runs the filter-and-bin pipeline: calibrate each record, remove
// the per-record baseline, and accumulate it into the sky grid. Records are
// processed strictly in arrival order, one at a time.
type Mapmaker struct {
	params *Params
	acc    *Accumulator

	recordsRead int
	snapshots   int
}

// NewMapmaker validates the configuration and builds the accumulator. All
// configuration errors (bad grid geometry, detectors without offsets or
// gains, inconsistent filter settings) surface here, before any record is
// processed.
func NewMapmaker(params *Params) (*Mapmaker, error) {
	if params.Field == "" {
		params.Field = models.FieldCalibrated
	}
	if params.Calibration != nil && params.Field != models.FieldCalibrated {
		return nil, fmt.Errorf("calibration store set but binning field is %q", params.Field)
	}
	if params.Filter == FilterMasked && params.MaskRadius <= 0 {
		return nil, fmt.Errorf("masked filter requires a positive mask radius, got %g", params.MaskRadius)
	}

	// Every requested detector must have a gain before the stream starts.
	if params.Calibration != nil {
		for _, id := range params.Detectors {
			if _, err := params.Calibration.Gain(id); err != nil {
				return nil, err
			}
		}
	}

	g, err := grid.New(params.Grid)
	if err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	acc, err := NewAccumulator(g, params.Field, params.Detectors, params.Offsets)
	if err != nil {
		return nil, err
	}
	return &Mapmaker{params: params, acc: acc}, nil
}

// Accumulator exposes the underlying accumulation grids.
func (m *Mapmaker) Accumulator() *Accumulator { return m.acc }

// Map returns a snapshot of the current averaged map.
func (m *Mapmaker) Map() *mat.Dense { return m.acc.Map() }

// Process consumes the record stream until io.EOF, running calibration,
// filtering and accumulation on each record in order.
func (m *Mapmaker) Process(src source.Source) error {
	if m.params.SnapshotEvery > 0 {
		if err := os.MkdirAll(m.params.SnapshotDir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %v", err)
		}
	}

	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("record stream failed: %w", err)
		}
		m.recordsRead++

		rec, err = m.prepare(rec)
		if err != nil {
			return err
		}
		if err := m.acc.Ingest(rec); err != nil {
			return err
		}

		if m.params.SnapshotEvery > 0 && m.recordsRead%m.params.SnapshotEvery == 0 {
			if err := m.saveSnapshot(); err != nil {
				fmt.Printf("Warning: failed to save map snapshot: %v\n", err)
			}
		}

		if m.params.Verbose && m.recordsRead%25 == 0 {
			fmt.Printf("\rProcessed %d records", m.recordsRead)
		}
	}
	if m.params.Verbose && m.recordsRead >= 25 {
		fmt.Println()
	}
	return nil
}

// prepare runs the per-record stages ahead of binning: calibration and
// baseline filtering. Each stage returns a new record; the input record is
// never mutated.
func (m *Mapmaker) prepare(rec *models.ScanRecord) (*models.ScanRecord, error) {
	if m.params.Calibration != nil {
		out, err := m.params.Calibration.CalibrateRecord(rec, m.params.Detectors)
		if err != nil {
			return nil, err
		}
		rec = out
	}

	if m.params.Filter == FilterNone {
		return rec, nil
	}

	ts, ok := rec.Timestreams(m.params.Field)
	if !ok {
		// Nothing to filter; the accumulator will skip this record too.
		return rec, nil
	}

	filtered := make(map[string][]float64, len(ts))
	for id, samples := range ts {
		off, isTarget := m.params.Offsets[id]
		if !isTarget {
			filtered[id] = samples
			continue
		}

		switch m.params.Filter {
		case FilterMean:
			filtered[id] = filter.Mean(samples)
		case FilterMasked:
			ra, dec := pointing.Apply(off, rec.BoresightRA, rec.BoresightDec)
			out, err := filter.MaskedMean(samples, ra, dec,
				m.params.SourceRA, m.params.SourceDec, m.params.MaskRadius)
			if err != nil {
				return nil, fmt.Errorf("record %d, detector %q: %w", rec.ID, id, err)
			}
			filtered[id] = out
		}
	}
	return replaceField(rec, m.params.Field, filtered), nil
}

// replaceField returns a copy of the record with the selected timestream map
// swapped out.
func replaceField(rec *models.ScanRecord, field models.TimestreamField, ts map[string][]float64) *models.ScanRecord {
	out := *rec
	switch field {
	case models.FieldRaw:
		out.Raw = ts
	case models.FieldCalibrated:
		out.Calibrated = ts
	}
	return &out
}

// saveSnapshot writes the current averaged map as a numbered JPEG.
func (m *Mapmaker) saveSnapshot() error {
	m.snapshots++
	filename := filepath.Join(m.params.SnapshotDir, fmt.Sprintf("map_%04d.jpg", m.snapshots))
	return visualization.NewRenderer(m.acc.Map()).SaveJPEG(filename)
}

// Summary describes a completed run.
type Summary struct {
	RecordsRead     int
	RecordsBinned   int
	SamplesBinned   int
	SamplesRejected int
	PixelsHit       int
	PixelsTotal     int
}

// Summarize reports run statistics after (or during) processing.
func (m *Mapmaker) Summarize() Summary {
	_, binned, samples, rejected := m.acc.Stats()

	hits := m.acc.HitCount()
	rows, cols := hits.Dims()
	hit := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if hits.At(r, c) > 0 {
				hit++
			}
		}
	}

	return Summary{
		RecordsRead:     m.recordsRead,
		RecordsBinned:   binned,
		SamplesBinned:   samples,
		SamplesRejected: rejected,
		PixelsHit:       hit,
		PixelsTotal:     rows * cols,
	}
}
