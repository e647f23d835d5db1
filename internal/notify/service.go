package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/quota"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyAudience marks a send whose audience resolved to nobody.
	// Blocks the send before any delivery attempt; consumes no quota.
	ErrEmptyAudience = errors.New("audience resolved to no recipients")

	// ErrDeliveryUnavailable marks a send where no batch reached the
	// delivery service at all. Surfaced as a hard error to the seller.
	ErrDeliveryUnavailable = errors.New("delivery service unavailable")
)

// SendResult summarises one send attempt. Partial delivery failure is not an
// error; it shows up here as counts.
type SendResult struct {
	RecordID  string `json:"record_id"`
	Audience  string `json:"audience"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	FellBack  bool   `json:"fell_back"`
}

// Options tunes the fan-out engine.
type Options struct {
	BatchSize       int
	HistoryPageSize int
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = 50
	}
	return o
}

// Engine resolves audiences, batches pushes to the delivery service, and
// appends one ledger entry per send attempt. Sends are metered by the quota
// enforcer; a zero-recipient attempt never consumes quota.
type Engine struct {
	resolver *Resolver
	delivery Deliverer
	records  storage.NotificationStore
	enforcer *quota.Enforcer
	opts     Options
	nowFn    func() time.Time
}

// NewEngine creates a fan-out engine.
func NewEngine(
	resolver *Resolver,
	delivery Deliverer,
	records storage.NotificationStore,
	enforcer *quota.Enforcer,
	opts Options,
) *Engine {
	if resolver == nil {
		panic("notify: resolver must not be nil")
	}
	if delivery == nil {
		panic("notify: deliverer must not be nil")
	}
	if records == nil {
		panic("notify: record store must not be nil")
	}
	if enforcer == nil {
		panic("notify: quota enforcer must not be nil")
	}
	return &Engine{
		resolver: resolver,
		delivery: delivery,
		records:  records,
		enforcer: enforcer,
		opts:     opts.normalized(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Send broadcasts one notification to the resolved audience.
//
// Order of operations: quota check (fails closed), audience resolution,
// batched delivery, ledger append, quota consumption. The weekly counter
// moves only after a non-empty attempt actually reached the delivery
// service, so neither an empty audience nor total gateway unavailability
// consumes quota.
func (e *Engine) Send(ctx context.Context, sellerID, title, message, spec string) (*SendResult, error) {
	if !ValidAudience(spec) {
		return nil, fmt.Errorf("unknown audience spec %q", spec)
	}

	decision, err := e.enforcer.CanSendNotification(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, quota.ErrQuotaExceeded
	}

	addresses, fellBack, err := e.resolver.Resolve(ctx, spec, sellerID)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, ErrEmptyAudience
	}

	delivered, failed, reached := e.fanOut(ctx, addresses, Payload{
		Title: title,
		Body:  message,
		Data:  map[string]string{"seller_id": sellerID},
	})

	record := &model.NotificationRecord{
		ID:             uuid.NewString(),
		SellerID:       sellerID,
		Title:          title,
		Message:        message,
		TargetAudience: spec,
		Delivered:      delivered,
		Failed:         failed,
		FellBack:       fellBack,
		SentAt:         e.nowFn(),
	}

	// One ledger entry per attempt, partial failure and total gateway
	// outage included. A ledger write failure is logged, not surfaced: the
	// delivery outcome already happened and must still reach the caller.
	if err := e.records.AppendRecord(ctx, record); err != nil {
		slog.Error("[Notify] Failed to append notification record",
			"seller_id", sellerID, "record_id", record.ID, "error", err)
	}

	if !reached {
		return nil, ErrDeliveryUnavailable
	}

	if err := e.enforcer.ConsumeNotification(ctx, sellerID); err != nil {
		// The send happened; quota under-counts until corrected. Do not
		// fail a delivered broadcast over its own bookkeeping.
		slog.Error("[Notify] Failed to consume notification quota",
			"seller_id", sellerID, "error", err)
	}

	slog.Info("[Notify] Send complete",
		"seller_id", sellerID,
		"audience", spec,
		"delivered", delivered,
		"failed", failed,
		"fell_back", fellBack)

	return &SendResult{
		RecordID:  record.ID,
		Audience:  spec,
		Delivered: delivered,
		Failed:    failed,
		FellBack:  fellBack,
	}, nil
}

// fanOut submits the addresses in fixed-size batches concurrently and
// partitions the outcomes. reached reports whether at least one batch made
// it to the delivery service; a batch-level transport error counts its whole
// chunk as failed rather than aborting the remaining batches.
func (e *Engine) fanOut(ctx context.Context, addresses []string, payload Payload) (delivered, failed int, reached bool) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(addresses); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[start:end]

		g.Go(func() error {
			results, err := e.delivery.SendBatch(gctx, chunk, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("[Notify] Batch submission failed",
					"batch_size", len(chunk), "error", err)
				failed += len(chunk)
				return nil
			}
			reached = true
			for _, res := range results {
				if res.Status == StatusDelivered {
					delivered++
				} else {
					failed++
				}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return delivered, failed, reached
}

// History returns the seller's most recent ledger entries.
func (e *Engine) History(ctx context.Context, sellerID string) ([]model.NotificationRecord, error) {
	return e.records.ListBySeller(ctx, sellerID, e.opts.HistoryPageSize)
}
