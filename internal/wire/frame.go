// Package wire implements the producer's length-prefixed framing: one
// header (frame_sequence, timestamp_ms) followed by one or more crop
// records, each a length-prefixed metadata JSON blob and a
// length-prefixed JPEG blob. All multi-byte integers are big-endian.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Limits bounds allocation for untrusted length fields.
type Limits struct {
	MaxFrameBytes int
	MaxCropBytes  int
}

// DefaultLimits returns the default ceilings: 64 MiB per frame, 16 MiB
// per crop.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 64 * 1024 * 1024,
		MaxCropBytes:  16 * 1024 * 1024,
	}
}

// ROI is the region-of-interest rectangle plus recognition label carried
// in crop metadata.
type ROI struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Camera identifies the producer-side camera that captured a crop.
type Camera struct {
	ID int `json:"id"`
}

// Pose is the camera's 3D position at capture time.
type Pose struct {
	Position [3]float64 `json:"position"`
}

// Metadata is the required-field view of the per-crop JSON metadata.
// Unknown keys are preserved verbatim in Raw so a viewer or journal
// consumer can round-trip fields this type doesn't model.
type Metadata struct {
	ROI    ROI                        `json:"roi"`
	Camera Camera                     `json:"camera"`
	Pose   Pose                       `json:"pose"`
	YawDeg float64                    `json:"yaw_deg"`
	Raw    map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the required fields into the typed struct while
// keeping every key (including unknown ones) available in Raw.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Metadata(a)

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Raw = raw
	return nil
}

// MarshalJSON re-serializes Raw if present (preserving unknown keys),
// otherwise falls back to the typed fields.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.Raw != nil {
		return json.Marshal(m.Raw)
	}
	type alias Metadata
	return json.Marshal(alias(m))
}

// CropRecord is one decoded crop record from a wire frame: its metadata
// JSON and the raw JPEG bytes that followed it.
type CropRecord struct {
	Metadata  Metadata
	ImageData []byte
}

// MalformedFrame is returned whenever a length field overruns the
// buffer or the metadata JSON does not parse.
type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string { return fmt.Sprintf("wire: malformed frame: %s", e.Reason) }

// OversizeLength is returned when a length field exceeds the configured
// maximum before any allocation happens.
type OversizeLength struct {
	Field string
	Got   uint32
	Max   int
}

func (e *OversizeLength) Error() string {
	return fmt.Sprintf("wire: oversize %s length: %d > %d", e.Field, e.Got, e.Max)
}

// DecodeFrame parses one wire frame. The framing is self-delimiting
// via length prefixes; there are no magic bytes.
func DecodeFrame(buf []byte, limits Limits) (frameSequence uint16, timestampMs uint32, crops []CropRecord, err error) {
	if limits.MaxFrameBytes > 0 && len(buf) > limits.MaxFrameBytes {
		return 0, 0, nil, &OversizeLength{Field: "frame", Got: uint32(len(buf)), Max: limits.MaxFrameBytes}
	}
	if len(buf) < 6 {
		return 0, 0, nil, &MalformedFrame{Reason: "buffer shorter than header (6 bytes)"}
	}

	frameSequence = binary.BigEndian.Uint16(buf[0:2])
	timestampMs = binary.BigEndian.Uint32(buf[2:6])
	pos := 6

	for pos < len(buf) {
		rec, next, err := decodeCropRecord(buf, pos, limits)
		if err != nil {
			return 0, 0, nil, err
		}
		crops = append(crops, rec)
		pos = next
	}

	return frameSequence, timestampMs, crops, nil
}

func decodeCropRecord(buf []byte, pos int, limits Limits) (CropRecord, int, error) {
	if pos+4 > len(buf) {
		return CropRecord{}, 0, &MalformedFrame{Reason: "truncated metadata_length"}
	}
	metaLen := binary.BigEndian.Uint32(buf[pos : pos+4])
	pos += 4

	if limits.MaxCropBytes > 0 && int(metaLen) > limits.MaxCropBytes {
		return CropRecord{}, 0, &OversizeLength{Field: "metadata", Got: metaLen, Max: limits.MaxCropBytes}
	}
	if pos+int(metaLen) > len(buf) {
		return CropRecord{}, 0, &MalformedFrame{Reason: "metadata_length overruns buffer"}
	}
	metaBytes := buf[pos : pos+int(metaLen)]
	pos += int(metaLen)

	var md Metadata
	if err := json.Unmarshal(metaBytes, &md); err != nil {
		return CropRecord{}, 0, &MalformedFrame{Reason: "metadata JSON parse: " + err.Error()}
	}

	if pos+4 > len(buf) {
		return CropRecord{}, 0, &MalformedFrame{Reason: "truncated image_length"}
	}
	imgLen := binary.BigEndian.Uint32(buf[pos : pos+4])
	pos += 4

	if limits.MaxCropBytes > 0 && int(imgLen) > limits.MaxCropBytes {
		return CropRecord{}, 0, &OversizeLength{Field: "image", Got: imgLen, Max: limits.MaxCropBytes}
	}
	if pos+int(imgLen) > len(buf) {
		return CropRecord{}, 0, &MalformedFrame{Reason: "image_length overruns buffer"}
	}
	imgBytes := make([]byte, imgLen)
	copy(imgBytes, buf[pos:pos+int(imgLen)])
	pos += int(imgLen)

	return CropRecord{Metadata: md, ImageData: imgBytes}, pos, nil
}

// EncodeFrame is the inverse of DecodeFrame, used by producers and by
// round-trip tests.
func EncodeFrame(frameSequence uint16, timestampMs uint32, crops []CropRecord) ([]byte, error) {
	buf := make([]byte, 6, 6+len(crops)*64)
	binary.BigEndian.PutUint16(buf[0:2], frameSequence)
	binary.BigEndian.PutUint32(buf[2:6], timestampMs)

	for _, c := range crops {
		metaBytes, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal metadata: %w", err)
		}

		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(metaBytes)))
		buf = append(buf, lenBuf...)
		buf = append(buf, metaBytes...)

		binary.BigEndian.PutUint32(lenBuf, uint32(len(c.ImageData)))
		buf = append(buf, lenBuf...)
		buf = append(buf, c.ImageData...)
	}

	return buf, nil
}
