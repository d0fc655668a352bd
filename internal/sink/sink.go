// Package sink wires together the wire codec, ring buffer, ACK
// emitter, loss detector, decoder pool, journal, and stats collector
// into the process core, and exposes the operations a viewer or CLI
// consumes: slot reads, manual decode submission, and statistics
// snapshots.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"barcode-sink-go/internal/ack"
	"barcode-sink-go/internal/barcode"
	"barcode-sink-go/internal/config"
	"barcode-sink-go/internal/decoder"
	"barcode-sink-go/internal/journal"
	"barcode-sink-go/internal/lossdetect"
	"barcode-sink-go/internal/ring"
	"barcode-sink-go/internal/stats"
	"barcode-sink-go/internal/transport"
	"barcode-sink-go/internal/wire"
)

const (
	dataPort = 5555
	ackPort  = 5556

	receiveTimeout = 3 * time.Second
)

type options struct {
	logger        *zap.SugaredLogger
	decoder       bool
	licenseKey    string
	symbologies   []barcode.Symbology
	observer      stats.Observer
	journalDir    string
	sub           transport.Subscriber
	pub           transport.Publisher
	readerFactory func(string, []barcode.Symbology) (barcode.Reader, error)
}

// Option configures a Sink at construction time.
type Option func(*options)

// WithLogger sets the structured logger used for all non-fatal
// diagnostics. Transient errors are counted rather than surfaced to
// callers, so the log is where they become visible.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithDecoder enables or disables the decoder pool (the --dbr flag).
// Disabled leaves the ring and viewer-facing API functional with no
// decoding, journaling, or write-backs.
func WithDecoder(enabled bool) Option {
	return func(o *options) { o.decoder = enabled }
}

// WithLicenseKey sets the decoder pool's license key. An empty or
// short key causes decoder initialization to fail closed; the sink
// still starts, with the decoder disabled.
func WithLicenseKey(key string) Option {
	return func(o *options) { o.licenseKey = key }
}

// WithSymbologies restricts the enabled symbology set; the zero value
// enables all of them.
func WithSymbologies(syms []barcode.Symbology) Option {
	return func(o *options) { o.symbologies = syms }
}

// WithStatsObserver registers an observer for periodic snapshots. The
// sink merges decoder and ACK counters into every snapshot it emits.
func WithStatsObserver(obs stats.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithJournalDir overrides the journal's output directory (default
// "test_results").
func WithJournalDir(dir string) Option {
	return func(o *options) { o.journalDir = dir }
}

// WithTransport injects a pre-built subscriber/publisher pair instead
// of binding the fixed UDP ports, letting tests drive the full
// receive-decode-journal pipeline without sockets.
func WithTransport(sub transport.Subscriber, pub transport.Publisher) Option {
	return func(o *options) { o.sub, o.pub = sub, pub }
}

// WithReaderFactory overrides the per-worker barcode reader
// constructor (tests use it to inject stalled or scripted readers).
func WithReaderFactory(f func(string, []barcode.Symbology) (barcode.Reader, error)) Option {
	return func(o *options) { o.readerFactory = f }
}

// Sink is the process core: receiver, decoder pool, journal, ring,
// and stats, bound to one running instance.
type Sink struct {
	cfg *config.Config
	log *zap.SugaredLogger
	obs stats.Observer

	sub transport.Subscriber
	pub transport.Publisher
	ack *ack.Emitter

	ring  *ring.Ring
	limit wire.Limits

	lossDet *lossdetect.Detector
	stats   *stats.Collector

	decoderPool *decoder.Pool
	journal     *journal.Journal

	recvSeq atomic.Uint64

	// malformedCount is touched only by the receiver goroutine; the
	// cross-thread counter lives in stats.
	malformedCount uint64

	stopOnce sync.Once
}

// New builds a Sink bound to cfg's listen host and camera node IP. A
// failed decoder license (or WithDecoder(false)) leaves decoderPool
// nil; the receiver and ring remain fully functional.
func New(cfg *config.Config, opts ...Option) (*Sink, error) {
	o := options{logger: config.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	sub, pub := o.sub, o.pub
	if sub == nil {
		var err error
		sub, err = transport.NewUDPSubscriber(cfg.ListenHost, dataPort, receiveTimeout)
		if err != nil {
			return nil, fmt.Errorf("sink: listen data port: %w", err)
		}
	}
	if pub == nil {
		var err error
		pub, err = transport.NewUDPPublisher(cfg.CameraNodeIP, ackPort)
		if err != nil {
			sub.Close()
			return nil, fmt.Errorf("sink: dial ack port: %w", err)
		}
	}

	s := &Sink{
		cfg:     cfg,
		log:     o.logger,
		obs:     o.observer,
		sub:     sub,
		pub:     pub,
		ack:     ack.New(pub),
		ring:    ring.New(cfg.SlotCount),
		limit:   wire.DefaultLimits(),
		lossDet: lossdetect.New(),
		stats:   stats.New(),
	}

	if o.decoder {
		s.startDecoder(o)
	}

	return s, nil
}

// startDecoder builds and starts the decoder pool and its journal. A
// license failure is logged and the pool stays disabled — the sink
// itself still starts successfully.
func (s *Sink) startDecoder(o options) {
	pool, err := decoder.New(decoder.Config{
		Workers:       s.cfg.MaxParallelTasks,
		QueueCapacity: s.cfg.QueueCapacity,
		DecodeTimeout: time.Duration(s.cfg.TimeoutMS) * time.Millisecond,
		LicenseKey:    o.licenseKey,
		Symbologies:   o.symbologies,
		ReaderFactory: o.readerFactory,
	}, s.handleDecodeResult)
	if err != nil {
		s.log.Warnw("decoder pool disabled", "error", err)
		return
	}

	// A journal open failure does not take the pool down with it: the
	// pipeline keeps decoding and write-backs keep landing, the run
	// just has no durable record.
	j, err := journal.Open(o.journalDir, time.Now())
	if err != nil {
		s.log.Warnw("journal open failed, continuing without journal", "error", err)
		j = nil
	}

	if err := pool.Start(); err != nil {
		s.log.Warnw("decoder pool failed to start", "error", err)
		if j != nil {
			j.Close()
		}
		return
	}

	s.decoderPool = pool
	s.journal = j
}

// Run starts the receiver and stats loops and blocks until ctx is
// canceled or the receiver loop exits with a fatal (transport-closed)
// error. Both loops run under one errgroup, so the first to fail
// cancels the other.
func (s *Sink) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.receiveLoop(gctx)
	})

	g.Go(func() error {
		interval := time.Duration(s.cfg.StatsIntervalSec * float64(time.Second))
		s.stats.Run(gctx.Done(), interval, stats.ObserverFunc(s.emitSnapshot))
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

func (s *Sink) emitSnapshot(snap stats.Snapshot) {
	snap.ACKSendErrors = s.ack.SendErrors()
	if s.decoderPool != nil {
		ps := s.decoderPool.SnapshotStats()
		snap.DecodeAttempts = ps.Attempts
		snap.DecodeSuccesses = ps.Successes
		snap.DecodeItemsTotal = ps.ItemsTotal
		snap.DecodeTotalTimeMs = ps.TotalTimeMs
		snap.DecodeDrops = ps.Drops
	}
	if s.obs != nil {
		s.obs.Observe(snap)
	}
}

// handleDecodeResult performs the ring write-back and journal append
// for one completed decode job. The write-back's identity
// check also decides the journal row's slot_status and position: a
// stale job (its slot has been lapped) journals as N/A / NA, so the
// row records whether the slot still held this crop at journal time.
func (s *Sink) handleDecodeResult(res decoder.Result) {
	if len(res.Items) == 0 {
		return
	}

	items := make([]ring.DecodedItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, ring.DecodedItem{Format: string(it.Format), Text: it.Text, Confidence: it.Confidence})
	}

	live := s.ring.PublishDecoded(res.Job.SlotIndex, res.Job.RecvSeq, ring.Decoded{ElapsedMs: res.ElapsedMs, Items: items})

	if s.journal == nil {
		return
	}

	slotIndex := -1
	hasPosition := false
	if live {
		slotIndex = res.Job.SlotIndex
		hasPosition = res.Job.HasPosition
	}
	records := make([]journal.Record, 0, len(res.Items))
	for _, it := range res.Items {
		records = append(records, journal.Record{
			RecvSeq:     res.Job.RecvSeq,
			WorkerID:    res.WorkerID,
			SlotIndex:   slotIndex,
			Position:    res.Job.Position,
			HasPosition: hasPosition,
			Format:      string(it.Format),
			Text:        it.Text,
		})
	}
	if err := s.journal.Append(records...); err != nil {
		s.log.Warnw("journal append failed", "error", err)
	}
}

// ReadSlot returns an immutable snapshot of the ring slot at index.
func (s *Sink) ReadSlot(index int) (ring.Slot, bool) {
	return s.ring.Read(index)
}

// ReadRecent returns up to count of the most recently written slots.
func (s *Sink) ReadRecent(count int) []ring.Slot {
	return s.ring.ReadRange(s.ring.LatestIndex(), count)
}

// LatestIndex returns the ring's most recently completed write index.
func (s *Sink) LatestIndex() int { return s.ring.LatestIndex() }

// SnapshotStats returns the current merged statistics snapshot on
// demand, independent of the periodic observer.
func (s *Sink) SnapshotStats() stats.Snapshot {
	snap := s.stats.Snapshot(time.Now())
	snap.ACKSendErrors = s.ack.SendErrors()
	if s.decoderPool != nil {
		ps := s.decoderPool.SnapshotStats()
		snap.DecodeAttempts = ps.Attempts
		snap.DecodeSuccesses = ps.Successes
		snap.DecodeItemsTotal = ps.ItemsTotal
		snap.DecodeTotalTimeMs = ps.TotalTimeMs
		snap.DecodeDrops = ps.Drops
	}
	return snap
}

// ErrDecoderDisabled is returned by SubmitManualDecode when the
// decoder pool was never started (disabled by flag or license
// failure).
var ErrDecoderDisabled = errors.New("sink: decoder pool disabled")

// ErrUnknownSlot is returned by SubmitManualDecode when the slot index
// has never been written.
var ErrUnknownSlot = errors.New("sink: slot has not been written")

// SubmitManualDecode re-enqueues the crop at slotIndex for decoding,
// used by a viewer to force a retry on a slot the automatic pipeline
// skipped or dropped. The job carries a fresh recv_seq drawn from the
// same counter the receiver uses, so its journal rows form their own
// contiguous block; slot write-back for the job is dropped by the
// identity check, leaving the journal authoritative.
func (s *Sink) SubmitManualDecode(slotIndex int) error {
	if s.decoderPool == nil {
		return ErrDecoderDisabled
	}
	slot, ok := s.ring.Read(slotIndex)
	if !ok {
		return ErrUnknownSlot
	}

	job := decoder.Job{RecvSeq: s.recvSeq.Add(1), JPEGBytes: slot.ImageBytes, SlotIndex: slotIndex}
	if md, ok := slot.Metadata.(wire.Metadata); ok {
		job.Position = md.Pose.Position
		job.HasPosition = true
	}
	s.decoderPool.Submit(job)
	return nil
}

// Shutdown is idempotent: it stops the receiver and decoder workers,
// flushes the journal, and closes both transports, aggregating any
// close errors into one.
func (s *Sink) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		err = multierr.Append(err, s.sub.Close())
		err = multierr.Append(err, s.ack.Close())

		if s.decoderPool != nil {
			s.decoderPool.Stop()
		}
		if s.journal != nil {
			err = multierr.Append(err, s.journal.Flush())
			err = multierr.Append(err, s.journal.Close())
		}
	})
	return err
}
