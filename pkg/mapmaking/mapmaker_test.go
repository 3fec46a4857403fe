package mapmaking

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"skymapper/internal/models"
	"skymapper/pkg/calibration"
	"skymapper/pkg/grid"
	"skymapper/pkg/source"
)

// testOffsets places one detector on the boresight and one off to the side.
var testOffsets = map[string]models.DetectorOffset{
	"det01": {},
	"det02": {X: 0.2, Y: -0.1},
}

var testGains = map[string]float64{
	"det01": 2.0,
	"det02": 4.0,
}

// testSynthetic builds a raster scan over a 2x2 degree patch with a bright
// compact source at the center.
func testSynthetic(t *testing.T) *source.Synthetic {
	t.Helper()
	gen, err := source.NewSynthetic(source.SyntheticParams{
		Detectors:        testOffsets,
		Gains:            testGains,
		Records:          20,
		SamplesPerRecord: 40,
		ExtentRA:         2,
		ExtentDec:        2,
		Background:       2.0,
		SourceAmplitude:  100,
		SourceSigma:      0.15,
	})
	if err != nil {
		t.Fatalf("NewSynthetic failed: %v", err)
	}
	return gen
}

func testStore(t *testing.T) *calibration.Store {
	t.Helper()
	store, err := calibration.NewStore("mK_CMB", testGains)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

// TestPipelineRecoversSource runs the full pipeline — synthetic raw records,
// calibration, masked mean filter, accumulation — and checks the map shows
// the source on a flat baseline.
func TestPipelineRecoversSource(t *testing.T) {
	params := &Params{
		Grid: grid.Spec{
			ExtentRA: 1.6, ExtentDec: 1.6,
			ResRA: 0.1, ResDec: 0.1,
		},
		Detectors:   []string{"det01", "det02"},
		Offsets:     testOffsets,
		Calibration: testStore(t),
		Filter:      FilterMasked,
		MaskRadius:  0.5,
	}

	m, err := NewMapmaker(params)
	if err != nil {
		t.Fatalf("NewMapmaker failed: %v", err)
	}
	if err := m.Process(testSynthetic(t)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	skyMap := m.Map()
	g := m.Accumulator().Grid()

	// The pixel at the source position must carry most of the amplitude.
	row, col, ok := g.Digitize(0.05, 0.05)
	if !ok {
		t.Fatal("source position not on grid")
	}
	if v := skyMap.At(row, col); v < 50 {
		t.Errorf("source pixel: expected > 50, got %g", v)
	}

	// A far corner pixel must sit near zero: the masked filter removed the
	// background without letting the source bias the baseline.
	row, col, ok = g.Digitize(-0.75, -0.75)
	if !ok {
		t.Fatal("corner position not on grid")
	}
	if v := skyMap.At(row, col); math.IsNaN(v) || math.Abs(v) > 0.5 {
		t.Errorf("far pixel: expected near zero, got %g", v)
	}

	sum := m.Summarize()
	if sum.RecordsRead != 20 {
		t.Errorf("expected 20 records read, got %d", sum.RecordsRead)
	}
	if sum.RecordsBinned != 20 {
		t.Errorf("expected 20 records binned, got %d", sum.RecordsBinned)
	}
	if sum.PixelsHit == 0 || sum.PixelsHit > sum.PixelsTotal {
		t.Errorf("implausible pixel coverage: %d of %d", sum.PixelsHit, sum.PixelsTotal)
	}
}

// TestPipelineMeanFilterWings demonstrates why the masked filter exists: with
// a plain mean filter the source pulls the baseline down, leaving negative
// residuals on the scan rows that cross it.
func TestPipelineMeanFilterWings(t *testing.T) {
	run := func(mode FilterMode) float64 {
		params := &Params{
			Grid: grid.Spec{
				ExtentRA: 1.6, ExtentDec: 1.6,
				ResRA: 0.1, ResDec: 0.1,
			},
			Detectors:   []string{"det01"},
			Offsets:     testOffsets,
			Calibration: testStore(t),
			Filter:      mode,
			MaskRadius:  0.5,
		}
		m, err := NewMapmaker(params)
		if err != nil {
			t.Fatalf("NewMapmaker failed: %v", err)
		}
		if err := m.Process(testSynthetic(t)); err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		// Probe a pixel on the source's scan row but well away from it.
		g := m.Accumulator().Grid()
		row, col, ok := g.Digitize(0.05, -0.75)
		if !ok {
			t.Fatal("probe position not on grid")
		}
		return m.Map().At(row, col)
	}

	masked := run(FilterMasked)
	naive := run(FilterMean)

	if naive >= masked {
		t.Errorf("expected the naive mean filter to depress the scan row below the masked result, got naive=%g masked=%g",
			naive, masked)
	}
	if math.Abs(masked) > 0.5 {
		t.Errorf("masked filter row residual: expected near zero, got %g", masked)
	}
}

// TestMapmakerFailsFast verifies configuration errors surface at
// construction, before any record is read.
func TestMapmakerFailsFast(t *testing.T) {
	goodGrid := grid.Spec{ExtentRA: 1, ExtentDec: 1, ResRA: 0.1, ResDec: 0.1}

	testCases := []struct {
		name   string
		params Params
	}{
		{
			name: "detector without gain",
			params: Params{
				Grid:        goodGrid,
				Detectors:   []string{"det01", "detNoGain"},
				Offsets:     map[string]models.DetectorOffset{"det01": {}, "detNoGain": {}},
				Calibration: testStore(t),
			},
		},
		{
			name: "detector without offset",
			params: Params{
				Grid:      goodGrid,
				Detectors: []string{"det01", "detNoOffset"},
				Offsets:   map[string]models.DetectorOffset{"det01": {}},
			},
		},
		{
			name: "masked filter without radius",
			params: Params{
				Grid:      goodGrid,
				Detectors: []string{"det01"},
				Offsets:   map[string]models.DetectorOffset{"det01": {}},
				Filter:    FilterMasked,
			},
		},
		{
			name: "calibration with raw binning field",
			params: Params{
				Grid:        goodGrid,
				Detectors:   []string{"det01"},
				Offsets:     map[string]models.DetectorOffset{"det01": {}},
				Calibration: testStore(t),
				Field:       models.FieldRaw,
			},
		},
		{
			name: "invalid grid",
			params: Params{
				Grid:      grid.Spec{ExtentRA: -1, ExtentDec: 1, ResRA: 0.1, ResDec: 0.1},
				Detectors: []string{"det01"},
				Offsets:   map[string]models.DetectorOffset{"det01": {}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewMapmaker(&tc.params); err == nil {
				t.Error("expected configuration error, got nil")
			}
		})
	}
}

// TestPrepareDoesNotMutateInput verifies the pipeline stages return new
// records rather than writing into the one handed over by the source.
func TestPrepareDoesNotMutateInput(t *testing.T) {
	params := &Params{
		Grid:        grid.Spec{ExtentRA: 4, ExtentDec: 2, ResRA: 1, ResDec: 1},
		Detectors:   []string{"det01"},
		Offsets:     map[string]models.DetectorOffset{"det01": {}},
		Calibration: testStore(t),
		Filter:      FilterMean,
	}
	m, err := NewMapmaker(params)
	if err != nil {
		t.Fatalf("NewMapmaker failed: %v", err)
	}

	rec := &models.ScanRecord{
		ID:           1,
		BoresightRA:  []float64{0, 1, 2},
		BoresightDec: []float64{0, 0, 0},
		Raw:          map[string][]float64{"det01": {1, 2, 3}},
	}

	out, err := m.prepare(rec)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if out == rec {
		t.Fatal("prepare should return a new record")
	}
	if rec.Calibrated != nil {
		t.Error("input record gained calibrated timestreams")
	}
	if rec.Raw["det01"][0] != 1 {
		t.Error("input raw timestream was modified")
	}
	if out.Units != "mK_CMB" {
		t.Errorf("expected output units mK_CMB, got %q", out.Units)
	}
}

// TestSnapshots verifies intermediary maps land in the snapshot directory.
func TestSnapshots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	params := &Params{
		Grid: grid.Spec{
			ExtentRA: 1.6, ExtentDec: 1.6,
			ResRA: 0.1, ResDec: 0.1,
		},
		Detectors:     []string{"det01"},
		Offsets:       testOffsets,
		Calibration:   testStore(t),
		Filter:        FilterMean,
		SnapshotEvery: 5,
		SnapshotDir:   dir,
	}

	m, err := NewMapmaker(params)
	if err != nil {
		t.Fatalf("NewMapmaker failed: %v", err)
	}
	if err := m.Process(testSynthetic(t)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("snapshot directory missing: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 snapshots for 20 records every 5, got %d", len(entries))
	}
}
