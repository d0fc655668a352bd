// Package lossdetect detects gaps, duplicates, and rollbacks in the
// producer's 16-bit frame sequence counter.
//
// Wrap policy: a wrap is contiguous. When the previous sequence sits
// near the top of the 16-bit space and the new one near the bottom,
// the forward delta is computed modulo 2^16 and counted as normal
// progress; any other backwards jump is a producer reset, re-anchored
// without counting loss.
package lossdetect

// wrapWindow bounds how close to the 16-bit boundary both the last and
// current sequence numbers must be before a large negative delta is
// treated as wraparound rather than a producer reset.
const wrapWindow = 4096

const seqSpace = 1 << 16

// Detector tracks the last observed frame sequence and classifies each
// new one as first-seen, forward progress (possibly with loss),
// duplicate, or reset.
type Detector struct {
	hasLast   bool
	last      uint16
	lost      uint64
	duplicate uint64
}

// New returns a Detector with no prior frame observed.
func New() *Detector {
	return &Detector{}
}

// Observe classifies current against the previously observed sequence.
// It returns the number of frames lost in this step (0 unless forward
// progress skipped sequence numbers) and whether current repeats the
// previously observed sequence exactly.
func (d *Detector) Observe(current uint16) (lost int, duplicate bool) {
	if !d.hasLast {
		d.hasLast = true
		d.last = current
		return 0, false
	}

	switch {
	case current == d.last:
		d.duplicate++
		return 0, true

	case isWrap(d.last, current):
		// Wrap-as-contiguous policy: the delta is computed modulo 2^16,
		// so 65535 -> 0 is clean forward progress and 65534 -> 0 still
		// reports the one frame skipped across the boundary.
		lost = (int(current) + seqSpace - int(d.last) - 1) % seqSpace
		d.lost += uint64(lost)
		d.last = current
		return lost, false

	case current > d.last:
		lost = int(current) - int(d.last) - 1
		d.lost += uint64(lost)
		d.last = current
		return lost, false

	default: // current < d.last, not a wrap: producer reset/rollback.
		d.last = current
		return 0, false
	}
}

// isWrap reports whether (last, current) looks like a contiguous
// 16-bit wraparound rather than an out-of-order reset: last must sit
// near the top of the sequence space and current near the bottom.
func isWrap(last, current uint16) bool {
	return int(last) >= seqSpace-wrapWindow && int(current) < wrapWindow
}

// LostFrames returns the running lost-frame counter.
func (d *Detector) LostFrames() uint64 { return d.lost }

// DuplicateFrames returns the running duplicate-frame counter.
func (d *Detector) DuplicateFrames() uint64 { return d.duplicate }
