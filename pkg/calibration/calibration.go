// Package calibration converts raw detector output to physical units using
// fixed per-detector gain constants. The gains and the shared output-units
// tag are loaded once before stream processing begins; a detector with no
// gain entry is a configuration error, never a silent unity default.
package calibration

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"skymapper/internal/models"
)

// Store holds per-detector gain constants plus the units tag shared by all
// calibrated timestreams in a run. A Store is immutable after construction.
type Store struct {
	units string
	gains map[string]float64
}

// NewStore builds a calibration store from a gain map. The map is copied so
// later mutation by the caller cannot affect the store.
func NewStore(units string, gains map[string]float64) (*Store, error) {
	if units == "" {
		return nil, fmt.Errorf("calibration units tag must not be empty")
	}
	if len(gains) == 0 {
		return nil, fmt.Errorf("calibration store must contain at least one detector")
	}
	copied := make(map[string]float64, len(gains))
	for id, g := range gains {
		copied[id] = g
	}
	return &Store{units: units, gains: copied}, nil
}

// storeFile is the YAML layout of a calibration file.
type storeFile struct {
	Units string             `yaml:"units"`
	Gains map[string]float64 `yaml:"gains"`
}

// Load reads a calibration store from a YAML file of the form:
//
//	units: mK_CMB
//	gains:
//	  det01: 0.0123
//	  det02: 0.0119
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading calibration file: %w", err)
	}

	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing calibration file: %w", err)
	}
	return NewStore(f.Units, f.Gains)
}

// Units returns the output units tag shared by all calibrated timestreams.
func (s *Store) Units() string { return s.units }

// Gain returns the calibration constant for a detector, failing fast when
// the detector is unknown.
func (s *Store) Gain(id string) (float64, error) {
	g, ok := s.gains[id]
	if !ok {
		return 0, fmt.Errorf("unknown detector %q: no calibration entry", id)
	}
	return g, nil
}

// Calibrate multiplies every sample by the detector's gain constant and
// returns a new slice; the input is never modified.
func (s *Store) Calibrate(raw []float64, id string) ([]float64, error) {
	g, err := s.Gain(id)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	copy(out, raw)
	floats.Scale(g, out)
	return out, nil
}

// CalibrateRecord applies calibration to every requested detector present in
// the record's raw timestreams and returns a new record carrying the results
// and the store's units tag. Requested detectors absent from the record are
// skipped; an unknown detector in the calibration store is an error.
func (s *Store) CalibrateRecord(rec *models.ScanRecord, detectors []string) (*models.ScanRecord, error) {
	raw, ok := rec.Timestreams(models.FieldRaw)
	if !ok {
		return rec, nil
	}

	calibrated := make(map[string][]float64, len(detectors))
	for _, id := range detectors {
		samples, present := raw[id]
		if !present {
			continue
		}
		out, err := s.Calibrate(samples, id)
		if err != nil {
			return nil, err
		}
		calibrated[id] = out
	}
	if len(calibrated) == 0 {
		return rec, nil
	}
	return rec.WithCalibrated(calibrated, s.units), nil
}
