// Package usage records per-request usage and the funnel analysis audit
// trail.
//
// Entries go to a buffered channel and are flushed in batches to every
// configured Sink by a background goroutine, so recording never blocks a
// request. When the channel is full new entries are dropped and counted.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marco-2806/OtimizaAds/internal/metrics"
)

const (
	defaultBuffer        = 10_000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second

	// flushTimeout bounds one flush. Flushes outlive the constructor
	// context so the final drain on shutdown still reaches the sinks.
	flushTimeout = 5 * time.Second
)

// Record is one usage row. Every analysis request that passes validation,
// auth and quota produces exactly one.
type Record struct {
	ID            uuid.UUID
	UserID        string
	Service       string
	Model         string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
	LatencyMs     int64
	Success       bool
	Cached        bool
	Tier          string
	CreatedAt     time.Time
}

// AuditEntry is one computed analysis kept for the user's history.
type AuditEntry struct {
	ID              uuid.UUID
	UserID          string
	AdText          string
	LandingPageText string
	Score           float64
	Suggestions     []string
	OptimizedAd     string
	ProcessingMs    int64
	Tier            string
	CreatedAt       time.Time
}

// Sink persists batches. Implementations must be safe to call from the
// flusher goroutine only; they are never called concurrently.
type Sink interface {
	Name() string
	WriteUsage(ctx context.Context, records []Record) error
	WriteAudit(ctx context.Context, entries []AuditEntry) error
}

// Options tunes a Recorder. Zero values use defaults.
type Options struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Registry
}

type item struct {
	usage *Record
	audit *AuditEntry
}

// Recorder batches usage records and audit entries to its sinks.
type Recorder struct {
	ch        chan item
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64

	sinks     []Sink
	batchSize int
	interval  time.Duration

	baseCtx context.Context
	log     *slog.Logger
	metrics *metrics.Registry
}

func New(ctx context.Context, opts Options, sinks ...Sink) (*Recorder, error) {
	if ctx == nil {
		return nil, fmt.Errorf("usage: context must not be nil")
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("usage: at least one sink is required")
	}

	r := newRecorder(ctx, opts, sinks)
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func newRecorder(ctx context.Context, opts Options, sinks []Sink) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{
		ch:        make(chan item, opts.Buffer),
		done:      make(chan struct{}),
		sinks:     sinks,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		baseCtx:   ctx,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// RecordUsage enqueues rec. It never blocks.
func (r *Recorder) RecordUsage(rec Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = normalizeTime(rec.CreatedAt)
	r.enqueue(item{usage: &rec})
}

// RecordAudit enqueues e. It never blocks.
func (r *Recorder) RecordAudit(e AuditEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = normalizeTime(e.CreatedAt)
	r.enqueue(item{audit: &e})
}

func (r *Recorder) enqueue(it item) {
	select {
	case r.ch <- it:
	default:
		r.dropped.Add(1)
		r.metrics.UsageDropped()
	}
}

// Dropped is the number of entries discarded because the buffer was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close flushes everything queued and stops the flusher.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var (
		records = make([]Record, 0, r.batchSize)
		audits  = make([]AuditEntry, 0, r.batchSize)
	)

	flush := func() {
		if len(records) == 0 && len(audits) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), flushTimeout)
		defer cancel()

		if len(records) > 0 {
			for _, s := range r.sinks {
				r.report(s, "usage", s.WriteUsage(ctx, records))
			}
			records = records[:0]
		}
		if len(audits) > 0 {
			for _, s := range r.sinks {
				r.report(s, "audit", s.WriteAudit(ctx, audits))
			}
			audits = audits[:0]
		}
	}

	add := func(it item) {
		if it.usage != nil {
			records = append(records, *it.usage)
		}
		if it.audit != nil {
			audits = append(audits, *it.audit)
		}
		if len(records) >= r.batchSize || len(audits) >= r.batchSize {
			flush()
		}
	}

	for {
		select {
		case it := <-r.ch:
			add(it)

		case <-ticker.C:
			flush()

		case <-r.done:
			for {
				select {
				case it := <-r.ch:
					add(it)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) report(s Sink, kind string, err error) {
	r.metrics.RecordUsageFlush(s.Name(), err == nil)
	if err != nil {
		r.log.Error("usage_flush_failed",
			slog.String("sink", s.Name()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
