// Package ack publishes the per-frame acknowledgement the producer
// uses for delay monitoring. Sends are fire-and-forget: failures are
// counted, never propagated, and never block the receive path.
package ack

import (
	"encoding/binary"
	"sync/atomic"

	"barcode-sink-go/internal/transport"
)

// Emitter publishes one 6-byte ACK per received frame: 2-byte
// frame_sequence followed by 4-byte timestamp_ms, both big-endian.
type Emitter struct {
	pub        transport.Publisher
	sendErrors atomic.Uint64
}

// New wraps a Publisher already dialed to the producer's ACK port.
func New(pub transport.Publisher) *Emitter {
	return &Emitter{pub: pub}
}

// Ack sends the 6-byte acknowledgement for one frame header.
func (e *Emitter) Ack(frameSequence uint16, timestampMs uint32) {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint16(payload[0:2], frameSequence)
	binary.BigEndian.PutUint32(payload[2:6], timestampMs)

	if err := e.pub.Publish(payload); err != nil {
		e.sendErrors.Add(1)
	}
}

// SendErrors returns the count of failed ACK publishes.
func (e *Emitter) SendErrors() uint64 { return e.sendErrors.Load() }

// Close closes the underlying publisher.
func (e *Emitter) Close() error {
	return e.pub.Close()
}
