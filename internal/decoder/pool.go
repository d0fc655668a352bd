// Package decoder implements the barcode worker pool: long-lived
// workers decoding JPEG crops into symbol results, served by a
// bounded job queue with drop-oldest overflow. The producer side never
// blocks: when the queue is full, the oldest pending job is popped and
// the new one enqueued in its place.
package decoder

import (
	"sync"
	"sync/atomic"
	"time"

	"barcode-sink-go/internal/barcode"
)

// Job is one decode request: a crop's receive identity, its JPEG
// bytes, and the ring slot it came from.
type Job struct {
	RecvSeq     uint64
	JPEGBytes   []byte
	SlotIndex   int
	Position    [3]float64
	HasPosition bool
}

// Result is a completed job's outcome, passed to the pool's result
// callback. Journal append and slot write-back happen downstream in
// the callback, so the pool stays decoupled from storage.
type Result struct {
	Job       Job
	ElapsedMs float32
	Items     []barcode.Item
	WorkerID  int
}

// Config configures the pool.
type Config struct {
	Workers       int
	QueueCapacity int
	DecodeTimeout time.Duration
	LicenseKey    string
	Symbologies   []barcode.Symbology
	ReaderFactory func(licenseKey string, symbologies []barcode.Symbology) (barcode.Reader, error)
}

// DefaultReaderFactory builds a barcode.Scanner.
func DefaultReaderFactory(licenseKey string, symbologies []barcode.Symbology) (barcode.Reader, error) {
	return barcode.NewScanner(licenseKey, symbologies)
}

// Pool owns the bounded job queue and the worker goroutines.
type Pool struct {
	cfg     Config
	jobs    chan Job
	mu      sync.Mutex // guards the drop-oldest pop+push and the stopped flag
	stopped bool
	wg      sync.WaitGroup
	onDone  func(Result)

	attempts    atomic.Uint64
	successes   atomic.Uint64
	itemsTotal  atomic.Uint64
	totalTimeMs atomic.Uint64
	drops       atomic.Uint64
}

// New validates the license and constructs the pool. The caller only
// starts workers via Start once construction succeeds, so a license
// failure leaves nothing running.
func New(cfg Config, onDone func(Result)) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 200
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = 10 * time.Second
	}
	if cfg.ReaderFactory == nil {
		cfg.ReaderFactory = DefaultReaderFactory
	}

	if err := barcode.ValidateLicense(cfg.LicenseKey); err != nil {
		return nil, err
	}

	return &Pool{
		cfg:    cfg,
		jobs:   make(chan Job, cfg.QueueCapacity),
		onDone: onDone,
	}, nil
}

// Start launches the configured worker count, each with its own
// Reader instance. Readers are never shared across workers.
func (p *Pool) Start() error {
	for i := 0; i < p.cfg.Workers; i++ {
		reader, err := p.cfg.ReaderFactory(p.cfg.LicenseKey, p.cfg.Symbologies)
		if err != nil {
			return err
		}
		p.wg.Add(1)
		go p.workerLoop(i, reader)
	}
	return nil
}

// Submit enqueues a job, applying drop-oldest overflow: on queue-full,
// the oldest pending job is discarded and the new one enqueued. The
// caller never blocks. The mutex also excludes Stop's channel close,
// so a late Submit after shutdown counts a drop instead of panicking
// on a closed channel.
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		p.drops.Add(1)
		return
	}

	select {
	case p.jobs <- job:
		return
	default:
	}

	select {
	case <-p.jobs:
		p.drops.Add(1)
	default:
	}

	select {
	case p.jobs <- job:
	default:
		p.drops.Add(1)
	}
}

// Stop closes the job queue and waits for in-flight decodes to
// finish. Idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// workerLoop ranges over the job channel until Stop closes it.
// Shutdown is purely channel-driven: closing p.jobs is the single
// suspension boundary every worker observes, so no separate polling
// is needed.
func (p *Pool) workerLoop(workerID int, reader barcode.Reader) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.handle(workerID, job, reader)
	}
}

func (p *Pool) handle(workerID int, job Job, reader barcode.Reader) {
	t0 := time.Now()
	result, err := reader.DecodeJPEG(job.JPEGBytes)
	elapsed := time.Since(t0)
	elapsedMs := float32(elapsed.Milliseconds())

	if elapsed > p.cfg.DecodeTimeout {
		// Over budget: discard without counting an attempt or success.
		return
	}

	p.attempts.Add(1)
	p.totalTimeMs.Add(uint64(elapsedMs))

	if err != nil || result.Status == barcode.StatusError {
		return
	}
	if len(result.Items) == 0 {
		return
	}

	p.successes.Add(1)
	p.itemsTotal.Add(uint64(len(result.Items)))

	if p.onDone != nil {
		p.onDone(Result{Job: job, ElapsedMs: elapsedMs, Items: result.Items, WorkerID: workerID})
	}
}

// Stats is a snapshot of the pool's atomic counters.
type Stats struct {
	Attempts    uint64
	Successes   uint64
	ItemsTotal  uint64
	TotalTimeMs uint64
	Drops       uint64
}

// SnapshotStats returns the current counters.
func (p *Pool) SnapshotStats() Stats {
	return Stats{
		Attempts:    p.attempts.Load(),
		Successes:   p.successes.Load(),
		ItemsTotal:  p.itemsTotal.Load(),
		TotalTimeMs: p.totalTimeMs.Load(),
		Drops:       p.drops.Load(),
	}
}

// QueueLen reports the current queue occupancy.
func (p *Pool) QueueLen() int { return len(p.jobs) }
