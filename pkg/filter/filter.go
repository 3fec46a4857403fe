// Package filter implements per-record timestream baseline removal. The
// unmasked form subtracts the record mean; the masked form estimates the
// baseline only from samples pointing away from a known bright source, so
// the source's flux does not bias the estimate and get smeared into stripes
// along the scan direction.
package filter

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"skymapper/pkg/pointing"
)

// Mean subtracts the arithmetic mean of samples from every element and
// returns a new slice. The mean is recomputed per call, never carried across
// records. Applying Mean twice is equivalent to applying it once.
func Mean(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	m := stat.Mean(samples, nil)
	for i, v := range samples {
		out[i] = v - m
	}
	return out
}

// MaskedMean subtracts a baseline estimated from the samples whose sky
// pointing lies farther than radius degrees from (centerRA, centerDec). The
// baseline is subtracted from every sample, including the masked-out ones.
//
// The pointing slices must match the sample count. If the mask excludes
// every sample there is no baseline to estimate and an error is returned.
func MaskedMean(samples, ra, dec []float64, centerRA, centerDec, radius float64) ([]float64, error) {
	if len(ra) != len(samples) || len(dec) != len(samples) {
		return nil, fmt.Errorf("pointing length %d/%d does not match %d samples",
			len(ra), len(dec), len(samples))
	}

	var sum float64
	var n int
	for i, v := range samples {
		if pointing.Separation(ra[i], dec[i], centerRA, centerDec) > radius {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("all %d samples fall within %g deg of the mask center", len(samples), radius)
	}

	m := sum / float64(n)
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v - m
	}
	return out, nil
}
