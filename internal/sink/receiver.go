package sink

import (
	"context"
	"errors"
	"time"

	"barcode-sink-go/internal/decoder"
	"barcode-sink-go/internal/ring"
	"barcode-sink-go/internal/transport"
	"barcode-sink-go/internal/wire"
)

// receiveLoop is the sink's ingest loop: receive, deframe, ACK,
// loss-check, ring write, decode enqueue, repeated until ctx is
// canceled or the transport reports itself closed.
func (s *Sink) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := s.sub.Receive()
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return err
		case err != nil:
			s.log.Warnw("transport receive error", "error", err)
			transport.WaitContext(ctx, 50*time.Millisecond)
			continue
		}

		s.handleFrame(payload)
	}
}

// handleFrame processes one received datagram: deframe, ACK, loss
// check, and per-crop ring write plus decode enqueue.
func (s *Sink) handleFrame(payload []byte) {
	frameSeq, timestampMs, crops, err := wire.DecodeFrame(payload, s.limit)
	if err != nil {
		// Malformed or oversize: discard the whole datagram, count it,
		// never ACK a frame we could not parse. Log throttled so a
		// garbage-spewing producer can't flood the log at wire rate.
		s.stats.AddMalformedFrame()
		s.malformedCount++
		if s.malformedCount%150 == 1 {
			s.log.Warnw("dropping malformed frames", "count", s.malformedCount, "error", err)
		}
		return
	}

	// ACK goes out before any of this frame's crops reach the decoder
	// queue.
	s.ack.Ack(frameSeq, timestampMs)

	lost, duplicate := s.lossDet.Observe(frameSeq)
	if lost > 0 {
		s.stats.AddLostFrames(uint64(lost))
	}
	if duplicate {
		s.stats.AddDuplicateFrame()
	}

	now := time.Now()
	for _, crop := range crops {
		recvSeq := s.recvSeq.Add(1)

		slotIdx := s.ring.Write(ring.Slot{
			Metadata:      crop.Metadata,
			ImageBytes:    crop.ImageData,
			RecvSeq:       recvSeq,
			FrameSequence: frameSeq,
		})

		s.stats.RecordCrop(len(crop.ImageData), now)

		if s.decoderPool != nil {
			s.decoderPool.Submit(decoder.Job{
				RecvSeq:     recvSeq,
				JPEGBytes:   crop.ImageData,
				SlotIndex:   slotIdx,
				Position:    crop.Metadata.Pose.Position,
				HasPosition: true,
			})
		}
	}

	if len(crops) > 0 {
		s.ring.AdvanceLatest()
	}
}
