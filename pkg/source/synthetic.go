package source

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"skymapper/internal/models"
	"skymapper/pkg/pointing"
)

// SyntheticParams configures the synthetic raster-scan generator. The
// generator sweeps the boresight in RA across the patch, stepping in dec
// between records, and evaluates a constant background plus a circular
// Gaussian source at each detector's reconstructed pointing.
type SyntheticParams struct {
	// Detectors maps detector identifier to focal-plane offset; the signal
	// is evaluated at the offset-corrected pointing of each detector.
	Detectors map[string]models.DetectorOffset

	// Gains maps detector identifier to the gain that calibration will later
	// apply; the generator divides the sky signal by it so the raw
	// timestreams calibrate back to the sky. A nil map means unity gains.
	Gains map[string]float64

	// Records is the number of scan records (dec rows) to generate.
	Records int

	// SamplesPerRecord is the number of samples in each RA sweep.
	SamplesPerRecord int

	// CenterRA, CenterDec, ExtentRA and ExtentDec define the scanned patch
	// in degrees.
	CenterRA  float64
	CenterDec float64
	ExtentRA  float64
	ExtentDec float64

	// Background is the constant sky level.
	Background float64

	// SourceRA, SourceDec, SourceAmplitude and SourceSigma inject a compact
	// Gaussian source. A zero amplitude disables it.
	SourceRA        float64
	SourceDec       float64
	SourceAmplitude float64
	SourceSigma     float64

	// NoiseSigma adds white noise per sample; zero means noiseless.
	NoiseSigma float64

	// Seed makes the noise reproducible.
	Seed int64
}

// Synthetic generates raster-scan records on demand. It satisfies Source.
type Synthetic struct {
	params SyntheticParams
	rng    *rand.Rand
	next   int
}

// NewSynthetic validates the parameters and builds a generator.
func NewSynthetic(params SyntheticParams) (*Synthetic, error) {
	if len(params.Detectors) == 0 {
		return nil, fmt.Errorf("synthetic source requires at least one detector")
	}
	if params.Records < 1 {
		return nil, fmt.Errorf("synthetic source requires at least one record, got %d", params.Records)
	}
	if params.SamplesPerRecord < 1 {
		return nil, fmt.Errorf("synthetic source requires at least one sample per record, got %d", params.SamplesPerRecord)
	}
	if params.ExtentRA <= 0 || params.ExtentDec <= 0 {
		return nil, fmt.Errorf("synthetic scan extent must be positive")
	}
	if params.SourceAmplitude != 0 && params.SourceSigma <= 0 {
		return nil, fmt.Errorf("source sigma must be positive when an amplitude is set")
	}
	return &Synthetic{
		params: params,
		rng:    rand.New(rand.NewSource(params.Seed)),
	}, nil
}

// Next generates the next raster row, returning io.EOF after the configured
// number of records.
func (s *Synthetic) Next() (*models.ScanRecord, error) {
	if s.next >= s.params.Records {
		return nil, io.EOF
	}
	p := s.params

	// Boresight: constant dec per record, RA swept across the extent.
	dec := p.CenterDec - p.ExtentDec/2 + (float64(s.next)+0.5)*p.ExtentDec/float64(p.Records)
	boreRA := make([]float64, p.SamplesPerRecord)
	boreDec := make([]float64, p.SamplesPerRecord)
	for i := range boreRA {
		boreRA[i] = p.CenterRA - p.ExtentRA/2 + (float64(i)+0.5)*p.ExtentRA/float64(p.SamplesPerRecord)
		boreDec[i] = dec
	}

	raw := make(map[string][]float64, len(p.Detectors))
	for id, off := range p.Detectors {
		ra, decDet := pointing.Apply(off, boreRA, boreDec)
		gain := 1.0
		if p.Gains != nil {
			if g, ok := p.Gains[id]; ok && g != 0 {
				gain = g
			}
		}

		samples := make([]float64, p.SamplesPerRecord)
		for i := range samples {
			sky := p.Background
			if p.SourceAmplitude != 0 {
				sep := pointing.Separation(ra[i], decDet[i], p.SourceRA, p.SourceDec)
				sky += p.SourceAmplitude * gauss(sep, p.SourceSigma)
			}
			if p.NoiseSigma > 0 {
				sky += s.rng.NormFloat64() * p.NoiseSigma
			}
			samples[i] = sky / gain
		}
		raw[id] = samples
	}

	rec := &models.ScanRecord{
		ID:           s.next,
		BoresightRA:  boreRA,
		BoresightDec: boreDec,
		Raw:          raw,
	}
	s.next++
	return rec, nil
}

// gauss is the unnormalized Gaussian profile exp(-x^2 / 2 sigma^2).
func gauss(x, sigma float64) float64 {
	u := x / sigma
	return math.Exp(-u * u / 2)
}
