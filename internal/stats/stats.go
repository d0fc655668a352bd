// Package stats holds the pipeline's health counters: atomic
// receive-path tallies, a rolling frame-interval sample window, the
// connected gauge, and ticker-driven snapshot emission to an observer.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of the pipeline's counters. There
// is deliberately no success-rate field: consumers that want one must
// pick their own definition.
type Snapshot struct {
	ReceivedCrops       uint64
	TotalBytes          uint64
	LostFrames          uint64
	DuplicateFrames     uint64
	MalformedFrames     uint64
	DecodeAttempts      uint64
	DecodeSuccesses     uint64
	DecodeItemsTotal    uint64
	DecodeTotalTimeMs   uint64
	DecodeDrops         uint64
	ACKSendErrors       uint64
	TCPConnected        bool
	MeanFrameIntervalMs float64
	Timestamp           time.Time
}

// Observer receives periodic snapshots.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

const rollingWindow = 1000
const connectedThreshold = 30 * time.Second

// Collector holds the receive-path counters and the rolling interval
// window. Decode-path counters live in the decoder pool and the ACK
// emitter; the sink merges them into the Snapshot it emits.
type Collector struct {
	receivedCrops   atomic.Uint64
	totalBytes      atomic.Uint64
	lostFrames      atomic.Uint64
	duplicateFrames atomic.Uint64
	malformedFrames atomic.Uint64

	lastReceiveNanos atomic.Int64

	mu         sync.Mutex
	intervals  []float64 // milliseconds between successive crop receipts
	lastCropAt time.Time
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{}
}

// RecordCrop updates received_crops, total_bytes, the rolling
// frame-interval window, and the last-receive timestamp used by the
// tcp_connected gauge.
func (c *Collector) RecordCrop(byteLen int, now time.Time) {
	c.receivedCrops.Add(1)
	c.totalBytes.Add(uint64(byteLen))
	c.lastReceiveNanos.Store(now.UnixNano())

	c.mu.Lock()
	if !c.lastCropAt.IsZero() {
		intervalMs := float64(now.Sub(c.lastCropAt).Microseconds()) / 1000.0
		c.intervals = append(c.intervals, intervalMs)
		if len(c.intervals) > rollingWindow {
			c.intervals = c.intervals[len(c.intervals)-rollingWindow:]
		}
	}
	c.lastCropAt = now
	c.mu.Unlock()
}

// AddLostFrames adds n to the lost-frame counter.
func (c *Collector) AddLostFrames(n uint64) { c.lostFrames.Add(n) }

// AddDuplicateFrame increments the duplicate-frame counter.
func (c *Collector) AddDuplicateFrame() { c.duplicateFrames.Add(1) }

// AddMalformedFrame increments the malformed/oversize discard counter.
func (c *Collector) AddMalformedFrame() { c.malformedFrames.Add(1) }

// Snapshot builds a Snapshot from the current counters. The connected
// gauge is true iff something was received within the last 30 s.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	lastNanos := c.lastReceiveNanos.Load()
	connected := lastNanos != 0 && now.Sub(time.Unix(0, lastNanos)) < connectedThreshold

	c.mu.Lock()
	mean := meanOf(c.intervals)
	c.mu.Unlock()

	return Snapshot{
		ReceivedCrops:       c.receivedCrops.Load(),
		TotalBytes:          c.totalBytes.Load(),
		LostFrames:          c.lostFrames.Load(),
		DuplicateFrames:     c.duplicateFrames.Load(),
		MalformedFrames:     c.malformedFrames.Load(),
		TCPConnected:        connected,
		MeanFrameIntervalMs: mean,
		Timestamp:           now,
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Run emits a Snapshot to observer every interval until ctx-equivalent
// stop channel is closed. Callers own the ticker's lifetime via the
// stop channel, matching the cooperative-shutdown idiom used across
// this repo's long-lived loops.
func (c *Collector) Run(stop <-chan struct{}, interval time.Duration, observer Observer) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			observer.Observe(c.Snapshot(t))
		}
	}
}
