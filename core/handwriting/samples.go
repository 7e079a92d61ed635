// Package handwriting implements the handwriting identification pipeline:
// per-writer sample loading, dataset construction, the convolutional writer
// classifier and its single-slot model store.
package handwriting

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// SampleSize is the edge length every sample is normalized to.
const SampleSize = 128

// Sample is a single grayscale handwriting image, SampleSize×SampleSize,
// row-major, pixel intensities normalized to [0,1].
type Sample []float64

var ErrDecode = errors.New("input is not a decodable image")

// DecodeSample decodes raw image bytes into a normalized Sample:
// grayscale, resized to SampleSize×SampleSize, intensities in [0,1].
func DecodeSample(data []byte) (Sample, error) {
	return readSample(bytes.NewReader(data))
}

func readSample(r io.Reader) (Sample, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return rasterize(img), nil
}

// rasterize converts to grayscale, resizes and normalizes in one pass.
func rasterize(img image.Image) Sample {
	gray := image.NewGray(image.Rect(0, 0, SampleSize, SampleSize))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	s := make(Sample, SampleSize*SampleSize)
	for y := 0; y < SampleSize; y++ {
		for x := 0; x < SampleSize; x++ {
			s[y*SampleSize+x] = float64(gray.GrayAt(x, y).Y) / 255.0
		}
	}
	return s
}

// LoadSamples reads every file in dir as a handwriting sample.
// Files that fail to decode are silently skipped: a corrupt sample must not
// abort a training run. Subdirectories are ignored.
func LoadSamples(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sample folder %s", dir)
	}

	samples := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		s, err := readSample(f)
		_ = f.Close()
		if err != nil {
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}
