package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	crops := []CropRecord{
		{
			Metadata: Metadata{
				ROI:    ROI{X: 1, Y: 2, Width: 10, Height: 20, Label: "barcode", Confidence: 0.9},
				Camera: Camera{ID: 3},
				Pose:   Pose{Position: [3]float64{1.5, 2.5, 3.5}},
				YawDeg: 42.5,
			},
			ImageData: []byte{0xFF, 0xD8, 0xFF, 0x00},
		},
		{
			Metadata:  Metadata{Camera: Camera{ID: 3}},
			ImageData: []byte{0x01},
		},
	}

	buf, err := EncodeFrame(1234, 9999, crops)
	require.NoError(t, err)

	seq, ts, decoded, err := DecodeFrame(buf, DefaultLimits())
	require.NoError(t, err)
	require.EqualValues(t, 1234, seq)
	require.EqualValues(t, 9999, ts)
	require.Len(t, decoded, 2)
	require.Equal(t, crops[0].ImageData, decoded[0].ImageData)
	require.Equal(t, crops[0].Metadata.ROI, decoded[0].Metadata.ROI)
	require.Equal(t, crops[0].Metadata.Pose, decoded[0].Metadata.Pose)
	require.Equal(t, crops[1].ImageData, decoded[1].ImageData)
}

func TestDecodeFrameHeaderOnly(t *testing.T) {
	buf, err := EncodeFrame(7, 1000, nil)
	require.NoError(t, err)

	seq, ts, crops, err := DecodeFrame(buf, DefaultLimits())
	require.NoError(t, err)
	require.EqualValues(t, 7, seq)
	require.EqualValues(t, 1000, ts)
	require.Empty(t, crops)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, _, _, err := DecodeFrame([]byte{0x00, 0x01}, DefaultLimits())
	require.Error(t, err)
	var malformed *MalformedFrame
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeFrameTruncatedCropOverrunsBuffer(t *testing.T) {
	buf, err := EncodeFrame(1, 1, []CropRecord{{Metadata: Metadata{}, ImageData: []byte{1, 2, 3}}})
	require.NoError(t, err)

	// Truncate the buffer mid-crop so the length prefix overruns it.
	truncated := buf[:len(buf)-2]
	_, _, _, err = DecodeFrame(truncated, DefaultLimits())
	require.Error(t, err)
	var malformed *MalformedFrame
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeFrameOversizeImage(t *testing.T) {
	buf, err := EncodeFrame(1, 1, []CropRecord{{Metadata: Metadata{}, ImageData: make([]byte, 1024)}})
	require.NoError(t, err)

	// Metadata{} marshals to about 126 bytes, so the ceiling sits between
	// the metadata and the 1024-byte image.
	limits := Limits{MaxFrameBytes: 0, MaxCropBytes: 512}
	_, _, _, err = DecodeFrame(buf, limits)
	require.Error(t, err)
	var oversize *OversizeLength
	require.ErrorAs(t, err, &oversize)
	require.Equal(t, "image", oversize.Field)
}

func TestFrameChecksumIdentifiesPayload(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xFF, 0x00}
	b := []byte{0xFF, 0xD8, 0xFF, 0x01}

	require.Equal(t, FrameChecksum(a), FrameChecksum(a))
	require.NotEqual(t, FrameChecksum(a), FrameChecksum(b))
}

func TestMetadataPreservesUnknownKeys(t *testing.T) {
	raw := []byte(`{"roi":{"x":1,"y":2,"width":3,"height":4,"label":"l","confidence":0.5},"camera":{"id":1},"pose":{"position":[0,0,0]},"yaw_deg":0,"extra_field":"kept"}`)

	var md Metadata
	require.NoError(t, json.Unmarshal(raw, &md))
	require.Equal(t, 1, md.Camera.ID)

	out, err := json.Marshal(md)
	require.NoError(t, err)
	require.Contains(t, string(out), `"extra_field":"kept"`)
}
