package pointing

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"skymapper/internal/models"
)

// TestZeroOffsetIdentity verifies that a detector with zero offset
// reproduces the boresight pointing exactly, for arbitrary boresight values.
func TestZeroOffsetIdentity(t *testing.T) {
	boreRA := []float64{0, 1.25, -3.5, 179.9, 42.0}
	boreDec := []float64{0, -15.0, 60.0, -89.0, 33.3}

	ra, dec := Apply(models.DetectorOffset{}, boreRA, boreDec)

	for i := range boreRA {
		if ra[i] != boreRA[i] {
			t.Errorf("sample %d: RA changed from %g to %g with zero offset", i, boreRA[i], ra[i])
		}
		if dec[i] != boreDec[i] {
			t.Errorf("sample %d: Dec changed from %g to %g with zero offset", i, boreDec[i], dec[i])
		}
	}
}

// TestLatitudeCorrection verifies that two detectors sharing an RA offset but
// at different declinations receive RA corrections in the ratio
// cos(dec1)/cos(dec2).
func TestLatitudeCorrection(t *testing.T) {
	const xOff = 0.25
	boreRA := []float64{10.0}
	boreDec := []float64{45.0}

	off1 := models.DetectorOffset{X: xOff, Y: 5.0}  // lands at dec 40
	off2 := models.DetectorOffset{X: xOff, Y: -5.0} // lands at dec 50

	ra1, dec1 := Apply(off1, boreRA, boreDec)
	ra2, dec2 := Apply(off2, boreRA, boreDec)

	corr1 := ra1[0] - boreRA[0]
	corr2 := ra2[0] - boreRA[0]

	// corr = xOff / cos(dec), so corr1/corr2 = cos(dec2)/cos(dec1).
	gotRatio := corr1 / corr2
	wantRatio := math.Cos(dec2[0]*math.Pi/180) / math.Cos(dec1[0]*math.Pi/180)

	if math.Abs(gotRatio-wantRatio) > 1e-12 {
		t.Errorf("correction ratio: expected %.15f, got %.15f", wantRatio, gotRatio)
	}
}

// TestApplyOffsets verifies the sign conventions for both axes.
func TestApplyOffsets(t *testing.T) {
	off := models.DetectorOffset{X: 1.0, Y: 0.5}
	boreRA := []float64{100.0}
	boreDec := []float64{60.5}

	ra, dec := Apply(off, boreRA, boreDec)

	// Dec offset is subtracted directly.
	if math.Abs(dec[0]-60.0) > 1e-12 {
		t.Errorf("Dec: expected 60.0, got %g", dec[0])
	}

	// RA offset is scaled by 1/cos of the corrected declination (60 deg).
	wantRA := 100.0 + 1.0/math.Cos(60.0*math.Pi/180)
	if math.Abs(ra[0]-wantRA) > 1e-12 {
		t.Errorf("RA: expected %g, got %g", wantRA, ra[0])
	}
}

// TestSeparation checks angular distances against known geometry.
func TestSeparation(t *testing.T) {
	testCases := []struct {
		name                 string
		ra1, dec1, ra2, dec2 float64
		want                 float64
	}{
		{"coincident", 10, 20, 10, 20, 0},
		{"pure dec separation", 0, 0, 0, 3, 3},
		{"pure ra separation on equator", 0, 0, 5, 0, 5},
		{"ra separation shrinks at latitude", 0, 60, 2, 60, 2 * math.Cos(60*math.Pi/180)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Separation(tc.ra1, tc.dec1, tc.ra2, tc.dec2)
			// The high-latitude case is a small-angle approximation, so allow
			// a loose tolerance there and a tight one elsewhere.
			tol := 1e-9
			if tc.name == "ra separation shrinks at latitude" {
				tol = 1e-3
			}
			if math.Abs(got-tc.want) > tol {
				t.Errorf("Separation: expected %g, got %g", tc.want, got)
			}
		})
	}
}

// TestLoadOffsets verifies the YAML offsets file loader.
func TestLoadOffsets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offsets.yaml")

	content := `offsets:
  det01: {x: 0.12, y: -0.05}
  det02: {x: -0.08, y: 0.03}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write offsets file: %v", err)
	}

	offsets, err := LoadOffsets(path)
	if err != nil {
		t.Fatalf("LoadOffsets failed: %v", err)
	}

	if len(offsets) != 2 {
		t.Fatalf("expected 2 detectors, got %d", len(offsets))
	}
	if off := offsets["det01"]; off.X != 0.12 || off.Y != -0.05 {
		t.Errorf("det01: expected {0.12, -0.05}, got %+v", off)
	}
	if off := offsets["det02"]; off.X != -0.08 || off.Y != 0.03 {
		t.Errorf("det02: expected {-0.08, 0.03}, got %+v", off)
	}
}

// TestLoadOffsetsErrors verifies missing and empty files are rejected.
func TestLoadOffsetsErrors(t *testing.T) {
	if _, err := LoadOffsets(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("offsets: {}\n"), 0644); err != nil {
		t.Fatalf("Failed to write empty offsets file: %v", err)
	}
	if _, err := LoadOffsets(empty); err == nil {
		t.Error("expected error for empty offsets map, got nil")
	}
}
