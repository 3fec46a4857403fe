// Package visualization renders averaged sky maps to grayscale JPEG images.
// Pixels with no hits are NaN in the map; they render as black rather than
// being folded into the intensity scale, so empty sky is never mistaken for
// measured zero signal.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// Renderer converts a sky map matrix into an image. Rows of the matrix are
// declination bins drawn bottom-up, so north is at the top of the image.
type Renderer struct {
	data *mat.Dense
}

// NewRenderer creates a renderer for the given map matrix.
func NewRenderer(data *mat.Dense) *Renderer {
	return &Renderer{data: data}
}

// Render produces a 16-bit grayscale image of the map. Finite values are
// scaled linearly between the map minimum and maximum; NaN pixels are black.
// A map whose finite values are all equal renders mid-gray.
func (r *Renderer) Render() image.Image {
	rows, cols := r.data.Dims()

	// Scan for the finite value range.
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := r.data.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := r.data.At(row, col)
			if math.IsNaN(v) {
				img.SetGray16(col, rows-1-row, color.Gray16{Y: 0})
				continue
			}
			var scaled float64
			switch {
			case hi > lo:
				scaled = (v - lo) / (hi - lo)
			default:
				scaled = 0.5
			}
			value := uint16(math.Max(0, math.Min(65535, scaled*65535)))
			img.SetGray16(col, rows-1-row, color.Gray16{Y: value})
		}
	}
	return img
}

// SaveJPEG renders the map and writes it as a JPEG file, creating parent
// directories as needed.
func (r *Renderer) SaveJPEG(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %v", err)
	}
	defer file.Close()

	return jpeg.Encode(file, r.Render(), &jpeg.Options{Quality: 90})
}
