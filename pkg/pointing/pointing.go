// Package pointing reconstructs per-detector sky pointing from the boresight
// pointing timestream and fixed focal-plane detector offsets, and provides
// the angular geometry helpers the filtering stages need.
package pointing

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"skymapper/internal/models"
)

const degToRad = math.Pi / 180

// Apply computes per-sample sky pointing for one detector. The declination
// offset is subtracted directly from the boresight declination. The RA offset
// is divided by the cosine of the offset-corrected declination before being
// added to the boresight RA: lines of constant RA converge toward the poles,
// so a raw RA offset would introduce a latitude-dependent pointing error.
//
// Both inputs are in degrees and the returned slices are freshly allocated.
func Apply(off models.DetectorOffset, boreRA, boreDec []float64) (ra, dec []float64) {
	ra = make([]float64, len(boreRA))
	dec = make([]float64, len(boreDec))
	for i := range boreDec {
		dec[i] = boreDec[i] - off.Y
		ra[i] = boreRA[i] + off.X/math.Cos(dec[i]*degToRad)
	}
	return ra, dec
}

// Separation returns the angular distance in degrees between two sky
// positions, using the haversine form which stays accurate at small
// separations.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	phi1 := dec1 * degToRad
	phi2 := dec2 * degToRad
	dPhi := (dec2 - dec1) * degToRad
	dLam := (ra2 - ra1) * degToRad

	sinPhi := math.Sin(dPhi / 2)
	sinLam := math.Sin(dLam / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLam*sinLam
	return 2 * math.Asin(math.Min(1, math.Sqrt(a))) / degToRad
}

// offsetsFile is the YAML layout of a detector offsets file.
type offsetsFile struct {
	Offsets map[string]models.DetectorOffset `yaml:"offsets"`
}

// LoadOffsets reads a detector offsets map from a YAML file of the form:
//
//	offsets:
//	  det01: {x: 0.12, y: -0.05}
//	  det02: {x: -0.08, y: 0.03}
func LoadOffsets(path string) (map[string]models.DetectorOffset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading offsets file: %w", err)
	}

	var f offsetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing offsets file: %w", err)
	}
	if len(f.Offsets) == 0 {
		return nil, fmt.Errorf("offsets file %s contains no detectors", path)
	}
	return f.Offsets, nil
}
