package wire

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/cespare/xxhash/v2"
)

// DecodeError wraps a JPEG decode failure.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("wire: jpeg decode: %v", e.Cause) }
func (e *DecodeError) Unwrap() error { return e.Cause }

// DecodeJPEG decodes raw JPEG bytes into an image.Image for display.
// The barcode pipeline works on raw JPEG bytes and never calls this;
// it exists for viewers that need pixels.
func DecodeJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return img, nil
}

// FrameChecksum computes a fast, non-cryptographic fingerprint of raw
// crop bytes for viewer-side or tooling use, such as spot-checking slot
// identity. The receive, decode, and stats paths do not call it.
func FrameChecksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
