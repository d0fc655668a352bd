// Package ring implements the fixed-capacity ring buffer of crop
// slots. A single writer publishes each slot as a whole value, so
// readers never observe a torn write; the slot's recv_seq tag lets a
// late reader (or a decode worker writing results back) detect that
// the slot has since been overwritten.
package ring

import (
	"sync/atomic"
)

// DecodedItem is one barcode/QR recognition result.
type DecodedItem struct {
	Format     string
	Text       string
	Confidence *float64
}

// Decoded is the optional decode result attached to a slot.
type Decoded struct {
	ElapsedMs float32
	Items     []DecodedItem
}

// Metadata and image payload are kept generic (interface{} for metadata,
// []byte for the JPEG) so this package has no dependency on the wire
// package's concrete Metadata type; sink wires the two together.

// Slot is one ring-buffer element: a crop, its receive identity, and
// an optional decode result.
type Slot struct {
	Metadata      interface{}
	ImageBytes    []byte
	RecvSeq       uint64
	FrameSequence uint16
	SlotIndex     int
	Decoded       *Decoded
}

// cell is the internal storage unit: a Slot behind an atomic pointer so
// a writer publishes the whole slot in one release-store and readers
// observe either the old or the new slot in full, never a mix of
// fields.
type cell struct {
	slot atomic.Pointer[Slot]
}

// Ring is the fixed-capacity circular store. Single writer (the
// Receiver), many readers (viewer, decoder workers doing identity
// checks before write-back).
type Ring struct {
	cells []cell
	num   int

	writeIndex  atomic.Uint64
	latestIndex atomic.Int64
}

// New creates a Ring with the given capacity; non-positive falls back
// to 5000 slots.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 5000
	}
	r := &Ring{
		cells: make([]cell, capacity),
		num:   capacity,
	}
	r.latestIndex.Store(-1)
	return r
}

// Capacity returns slot_num.
func (r *Ring) Capacity() int { return r.num }

// Write stores slot at the next write position and advances the write
// index. Writer-exclusive. It does not update the latest index —
// callers writing a batch of crops from one frame call AdvanceLatest
// once, after the whole batch is written, so a viewer never observes
// the latest index pointing past a slot that hasn't landed yet.
func (r *Ring) Write(s Slot) int {
	idx := int(r.writeIndex.Add(1)-1) % r.num
	s.SlotIndex = idx
	stored := s
	r.cells[idx].slot.Store(&stored)
	return idx
}

// AdvanceLatest publishes the index of the most recently written slot.
func (r *Ring) AdvanceLatest() {
	wi := r.writeIndex.Load()
	if wi == 0 {
		return
	}
	r.latestIndex.Store(int64((wi - 1) % uint64(r.num)))
}

// LatestIndex returns the most recently completed write's index, or -1
// if nothing has been written yet.
func (r *Ring) LatestIndex() int {
	return int(r.latestIndex.Load())
}

// Read returns a snapshot of the slot at index, or (Slot{}, false) if
// the slot has never been written. Callers that care about identity
// across a concurrent overwrite re-check RecvSeq.
func (r *Ring) Read(index int) (Slot, bool) {
	if index < 0 || index >= r.num {
		return Slot{}, false
	}
	p := r.cells[index].slot.Load()
	if p == nil {
		return Slot{}, false
	}
	return *p, true
}

// ReadRange returns up to count slots starting at fromIndex, walking
// backwards through write order — a viewer's seekable window over
// recent crops.
func (r *Ring) ReadRange(fromIndex, count int) []Slot {
	if count <= 0 || r.num == 0 {
		return nil
	}
	out := make([]Slot, 0, count)
	idx := fromIndex
	for i := 0; i < count; i++ {
		if idx < 0 {
			idx += r.num
		}
		s, ok := r.Read(idx % r.num)
		if ok {
			out = append(out, s)
		}
		idx--
		if idx < -r.num {
			break
		}
	}
	return out
}

// PublishDecoded attaches a decode result to the slot at slotIndex,
// succeeding only if the slot still holds the recvSeq the job was
// issued against. A stale write (the slot has since been overwritten
// by a newer crop) is silently discarded — the journal entry remains
// the authoritative record of that decode.
func (r *Ring) PublishDecoded(slotIndex int, recvSeq uint64, decoded Decoded) bool {
	if slotIndex < 0 || slotIndex >= r.num {
		return false
	}
	cellPtr := &r.cells[slotIndex].slot

	for {
		current := cellPtr.Load()
		if current == nil || current.RecvSeq != recvSeq {
			return false
		}
		updated := *current
		updated.Decoded = &decoded
		if cellPtr.CompareAndSwap(current, &updated) {
			return true
		}
		// Lost the race to a concurrent overwrite or another write-back;
		// re-check identity and retry or bail.
	}
}
