package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/session"
)

// sessionFlag names the per-session guard for the dashboard-load trigger.
const sessionFlag = "reconciled"

// Result reports one reconciliation pass.
type Result struct {
	SellerID      string `json:"seller_id"`
	ProductCount  int    `json:"product_count"`
	DriftDetected bool   `json:"drift_detected"`
	PreviousCount int    `json:"previous_count"`
	Skipped       bool   `json:"skipped,omitempty"`
}

// Service recomputes lifetime aggregates from the entity records and
// overwrites the cached values, correcting drift from double-fires, lost
// increments, or out-of-band deletions.
//
// The recount is intentionally expensive (a scan of the seller's products),
// so it runs only once per session on first dashboard load, on explicit
// operator request, or for sellers the metering path flagged as dirty. It
// takes no lock: an increment landing between the read and the overwrite
// produces a brief re-drift that self-corrects on the next pass.
type Service struct {
	entities storage.EntityStore
	buckets  storage.BucketStore
	sessions session.Store

	mu    sync.Mutex
	dirty map[string]struct{}
}

// NewService creates a reconciliation service.
func NewService(entities storage.EntityStore, buckets storage.BucketStore, sessions session.Store) *Service {
	if entities == nil {
		panic("reconcile: entity store must not be nil")
	}
	if buckets == nil {
		panic("reconcile: bucket store must not be nil")
	}
	return &Service{
		entities: entities,
		buckets:  buckets,
		sessions: sessions,
		dirty:    make(map[string]struct{}),
	}
}

// MarkDirty flags a seller for correction after a dropped metering write.
// Implements metering.DriftSink.
func (s *Service) MarkDirty(sellerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[sellerID] = struct{}{}
}

// takeDirty consumes the seller's dirty flag if set.
func (s *Service) takeDirty(sellerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dirty[sellerID]; !ok {
		return false
	}
	delete(s.dirty, sellerID)
	return true
}

// ReconcileProductCount recounts the seller's products (active and inactive)
// and overwrites both the cached Seller.productCount and the lifetime
// bucket's product count. Idempotent: a second call converges to the same
// value. Drift is an informational signal, never a user-facing error.
func (s *Service) ReconcileProductCount(ctx context.Context, sellerID string) (*Result, error) {
	seller, err := s.entities.GetSeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile seller %s: %w", sellerID, err)
	}

	count, err := s.entities.CountProductsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile seller %s: count products: %w", sellerID, err)
	}

	result := &Result{
		SellerID:      sellerID,
		ProductCount:  count,
		PreviousCount: seller.ProductCount,
		DriftDetected: seller.ProductCount != count,
	}

	if result.DriftDetected {
		slog.Info("[Reconcile] Drift detected",
			"seller_id", sellerID,
			"cached_count", seller.ProductCount,
			"true_count", count)
	}

	if err := s.entities.SetProductCount(ctx, sellerID, count); err != nil {
		return nil, fmt.Errorf("reconcile seller %s: overwrite cached count: %w", sellerID, err)
	}

	if err := s.buckets.OverwriteProductCount(ctx, sellerID, count); err != nil {
		return nil, fmt.Errorf("reconcile seller %s: overwrite bucket count: %w", sellerID, err)
	}

	return result, nil
}

// ReconcileOnSession runs the recount at most once per session. A seller the
// metering path marked dirty is corrected regardless of the session guard: a
// known-bad counter should not wait for the next session.
func (s *Service) ReconcileOnSession(ctx context.Context, sessionID, sellerID string) (*Result, error) {
	dirty := s.takeDirty(sellerID)

	run := dirty
	if !run && s.sessions != nil && sessionID != "" {
		acquired, err := s.sessions.TryAcquire(ctx, sessionID, sessionFlag+":"+sellerID)
		if err != nil {
			// The guard exists to bound cost, not correctness. If it is
			// unavailable, skipping is the bounded choice.
			slog.Warn("[Reconcile] Session guard unavailable, skipping",
				"seller_id", sellerID, "error", err)
			return &Result{SellerID: sellerID, Skipped: true}, nil
		}
		run = acquired
	}

	if !run {
		return &Result{SellerID: sellerID, Skipped: true}, nil
	}

	result, err := s.ReconcileProductCount(ctx, sellerID)
	if err != nil && dirty {
		// Correction failed; keep the seller flagged for the next attempt.
		s.MarkDirty(sellerID)
	}
	return result, err
}

// ReconcileDirty corrects every flagged seller. Failed corrections stay
// flagged for the next drain.
func (s *Service) ReconcileDirty(ctx context.Context) []Result {
	var results []Result
	for _, sellerID := range s.DirtySellers() {
		if !s.takeDirty(sellerID) {
			continue
		}
		result, err := s.ReconcileProductCount(ctx, sellerID)
		if err != nil {
			slog.Error("[Reconcile] Dirty-seller correction failed",
				"seller_id", sellerID, "error", err)
			s.MarkDirty(sellerID)
			continue
		}
		results = append(results, *result)
	}
	return results
}

// DirtySellers returns a snapshot of currently flagged sellers.
func (s *Service) DirtySellers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		out = append(out, id)
	}
	return out
}
