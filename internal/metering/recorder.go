package metering

import (
	"context"
	"log/slog"
	"time"

	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/core/timebucket"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DriftSink receives sellers whose cached aggregates may have drifted because
// a metering write was dropped. Reconciliation drains it.
type DriftSink interface {
	MarkDirty(sellerID string)
}

// Options tunes the recorder.
type Options struct {
	QueueBufferSize int // buffered chan capacity
	RetryCount      int // transient store retries per write (small, fixed)
	TopProducts     int // size of the lifetime ranking snapshot
}

func (o Options) normalized() Options {
	if o.QueueBufferSize <= 0 {
		o.QueueBufferSize = 1024
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryCount > 3 {
		o.RetryCount = 3
	}
	if o.TopProducts <= 0 {
		o.TopProducts = 5
	}
	return o
}

// Recorder consumes product events and fans each one out to the day, week,
// month, and lifetime analytics buckets, the product row counters, and the
// raw event log, then refreshes the lifetime top-N ranking.
//
// The recorder is decoupled from the business action by a buffered queue:
// handlers enqueue and return, so a failed metering write never fails or
// rolls back a completed sale, view, or like. Failures are logged and the
// seller is marked dirty for reconciliation instead.
type Recorder struct {
	buckets  storage.BucketStore
	entities storage.EntityStore
	log      storage.EventLog
	drift    DriftSink
	queue    chan *v1.ProductEvent
	opts     Options
	nowFn    func() time.Time
}

// NewRecorder creates an event recorder.
func NewRecorder(
	buckets storage.BucketStore,
	entities storage.EntityStore,
	log storage.EventLog,
	drift DriftSink,
	opts Options,
) *Recorder {
	if buckets == nil {
		panic("metering: bucket store must not be nil")
	}
	if entities == nil {
		panic("metering: entity store must not be nil")
	}
	if log == nil {
		panic("metering: event log must not be nil")
	}
	opts = opts.normalized()
	return &Recorder{
		buckets:  buckets,
		entities: entities,
		log:      log,
		drift:    drift,
		queue:    make(chan *v1.ProductEvent, opts.QueueBufferSize),
		opts:     opts,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Enqueue hands an event to the recorder without blocking the caller.
// A full queue drops the event and marks the seller dirty so reconciliation
// repairs the lifetime totals later.
func (r *Recorder) Enqueue(event *v1.ProductEvent) {
	select {
	case r.queue <- event:
	default:
		slog.Warn("[Recorder] Queue full, dropping event",
			"seller_id", event.SellerID,
			"product_id", event.ProductID,
			"event_type", event.Type)
		r.markDirty(event.SellerID)
	}
}

// Run drains the queue until the context is cancelled, then finishes whatever
// is still buffered before returning.
func (r *Recorder) Run(ctx context.Context) {
	slog.Info("[Recorder] Started",
		"queue_buffer", r.opts.QueueBufferSize,
		"retries", r.opts.RetryCount,
		"top_products", r.opts.TopProducts)

	for {
		select {
		case event := <-r.queue:
			r.Record(ctx, event)
		case <-ctx.Done():
			r.drainRemaining()
			slog.Info("[Recorder] Stopped (context cancelled)")
			return
		}
	}
}

// drainRemaining processes buffered events with a bounded shutdown budget.
func (r *Recorder) drainRemaining() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		select {
		case event := <-r.queue:
			r.Record(shutdownCtx, event)
		default:
			return
		}
	}
}

// Record processes one event synchronously. Exported so tests and callers
// without a worker loop can drive the recorder directly.
//
// Nothing here returns an error: every failure is logged and converted into
// a drift mark. The increments to the same bucket key commute, so no ordering
// is needed between concurrent events; only the top-N snapshot is last-write-
// wins, and that ranking is advisory.
func (r *Recorder) Record(ctx context.Context, event *v1.ProductEvent) {
	if event.RecordedAt.IsZero() {
		event.RecordedAt = r.nowFn()
	}

	if err := r.withRetry(ctx, func() error {
		return r.log.Append(ctx, event)
	}); err != nil {
		slog.Error("[Recorder] Failed to append event to log",
			"seller_id", event.SellerID, "event_type", event.Type, "error", err)
		r.markDirty(event.SellerID)
	}

	if err := r.withRetry(ctx, func() error {
		return r.entities.ApplyProductEvent(ctx, event.ProductID, event.Type)
	}); err != nil {
		slog.Error("[Recorder] Failed to update product counters",
			"product_id", event.ProductID, "event_type", event.Type, "error", err)
		r.markDirty(event.SellerID)
	}

	r.incrementBuckets(ctx, event)
	r.refreshTopProducts(ctx, event.SellerID)
}

// incrementBuckets issues the four bucket merges in parallel. The keys are
// disjoint, so the writes are independent; a failure of one does not stop
// the others.
func (r *Recorder) incrementBuckets(ctx context.Context, event *v1.ProductEvent) {
	deltas := storage.FieldDeltas{}
	switch event.Type {
	case v1.EventView:
		deltas.Views = 1
	case v1.EventLike:
		deltas.Likes = 1
	case v1.EventSale:
		deltas.Sales = 1
		deltas.Revenue = event.SaleRevenue
	default:
		slog.Warn("[Recorder] Skipping unknown event type", "event_type", event.Type)
		return
	}

	buckets := timebucket.Resolve(event.RecordedAt)
	keys := []storage.BucketKey{
		{SellerID: event.SellerID, Granularity: timebucket.GranularityDay, PeriodID: buckets.Day},
		{SellerID: event.SellerID, Granularity: timebucket.GranularityWeek, PeriodID: buckets.Week},
		{SellerID: event.SellerID, Granularity: timebucket.GranularityMonth, PeriodID: buckets.Month},
		{SellerID: event.SellerID, Granularity: timebucket.GranularityTotal, PeriodID: timebucket.PeriodTotal},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := r.withRetry(gctx, func() error {
				return r.buckets.MergeIncrement(gctx, key, deltas)
			}); err != nil {
				slog.Error("[Recorder] Failed to merge bucket increment",
					"seller_id", key.SellerID,
					"granularity", key.Granularity,
					"period_id", key.PeriodID,
					"error", err)
				r.markDirty(key.SellerID)
			}
			// Bucket failures never propagate; the drift mark is the signal.
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// refreshTopProducts overwrites the lifetime ranking snapshot with a fresh
// top-N by views. Full overwrite: concurrent refreshes may clobber each other
// with slightly different snapshots, which is acceptable for advisory data.
func (r *Recorder) refreshTopProducts(ctx context.Context, sellerID string) {
	products, err := r.entities.TopProductsBySeller(ctx, sellerID, r.opts.TopProducts)
	if err != nil {
		slog.Error("[Recorder] Failed to query top products",
			"seller_id", sellerID, "error", err)
		r.markDirty(sellerID)
		return
	}

	top := make([]model.TopProduct, 0, len(products))
	for _, p := range products {
		top = append(top, model.TopProduct{
			ProductID: p.ID,
			Name:      p.Name,
			Views:     p.Views,
			Sales:     p.Sales,
			Revenue:   p.Price.Mul(decimal.NewFromInt(p.Sales)),
		})
	}

	if err := r.buckets.OverwriteTopProducts(ctx, sellerID, top); err != nil {
		slog.Error("[Recorder] Failed to overwrite top products",
			"seller_id", sellerID, "error", err)
		r.markDirty(sellerID)
	}
}

// withRetry runs fn, retrying on failure up to the configured small fixed
// count. No backoff: the retry exists for transient store hiccups only and
// the metering path must not stall the worker.
func (r *Recorder) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.opts.RetryCount; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (r *Recorder) markDirty(sellerID string) {
	if r.drift != nil {
		r.drift.MarkDirty(sellerID)
	}
}
