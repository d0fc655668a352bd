package barcode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Scanner is the default Reader: it decodes the JPEG and looks for
// barcode-like alternating light/dark runs along a handful of
// horizontal scanlines. It is a lightweight stand-in for a vendor
// symbol decoder with the same call shape: decode, scan, classify,
// return items.
type Scanner struct {
	enabled map[Symbology]bool
}

// NewScanner builds a Scanner restricted to the given symbologies,
// after validating the license key. Call once per decoder-pool
// worker; a Scanner is not safe for concurrent use.
func NewScanner(licenseKey string, symbologies []Symbology) (*Scanner, error) {
	if err := ValidateLicense(licenseKey); err != nil {
		return nil, err
	}
	if len(symbologies) == 0 {
		symbologies = AllSymbologies()
	}
	enabled := make(map[Symbology]bool, len(symbologies))
	for _, s := range symbologies {
		enabled[s] = true
	}
	return &Scanner{enabled: enabled}, nil
}

// DecodeJPEG implements Reader.
func (s *Scanner) DecodeJPEG(jpegBytes []byte) (Result, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("barcode: jpeg decode: %w", err)
	}

	items := s.scan(img)
	if len(items) == 0 {
		return Result{Status: StatusOK}, nil
	}
	return Result{Status: StatusOK, Items: items}, nil
}

// scan walks a handful of evenly spaced horizontal scanlines looking
// for a run of alternating light/dark transitions dense enough to look
// like a 1D symbol. A positive hit on a row is reported as a Code128
// item when that symbology is enabled, carrying a confidence derived
// from transition density.
func (s *Scanner) scan(img image.Image) []Item {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 8 || h < 8 {
		return nil
	}

	preferred := Code128
	if !s.enabled[preferred] {
		for sym := range s.enabled {
			preferred = sym
			break
		}
	}

	var items []Item
	rows := 5
	for i := 0; i < rows; i++ {
		y := bounds.Min.Y + (i+1)*h/(rows+1)
		transitions, samples := scanRow(img, bounds.Min.X, bounds.Max.X, y)
		if samples == 0 {
			continue
		}
		density := float64(transitions) / float64(samples)
		if density < 0.12 {
			continue
		}
		confidence := density
		if confidence > 1 {
			confidence = 1
		}
		items = append(items, Item{
			Format:     preferred,
			Text:       fmt.Sprintf("ROW%d-T%d", y, transitions),
			Confidence: &confidence,
		})
	}
	return items
}

// scanRow counts luminance-threshold crossings along one row.
func scanRow(img image.Image, x0, x1, y int) (transitions, samples int) {
	var prevDark bool
	for x := x0; x < x1; x++ {
		r, g, b, _ := img.At(x, y).RGBA()
		lum := (299*r + 587*g + 114*b) / 1000
		dark := lum < 0x8000
		if samples > 0 && dark != prevDark {
			transitions++
		}
		prevDark = dark
		samples++
	}
	return transitions, samples
}
