package metering

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

// errTransient simulates a store hiccup that clears on retry.
var errTransient = errors.New("transient store failure")

// memBucketStore is an additive in-memory storage.BucketStore for tests.
type memBucketStore struct {
	mu      sync.Mutex
	buckets map[storage.BucketKey]*model.AnalyticsBucket

	mergeErr     error
	mergeFailsAt int // fail the first N merges, then succeed
	mergeCalls   int
	overwriteErr error
}

func newMemBucketStore() *memBucketStore {
	return &memBucketStore{buckets: make(map[storage.BucketKey]*model.AnalyticsBucket)}
}

func (m *memBucketStore) MergeIncrement(_ context.Context, key storage.BucketKey, deltas storage.FieldDeltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mergeCalls++
	if m.mergeErr != nil {
		return m.mergeErr
	}
	if m.mergeFailsAt > 0 {
		m.mergeFailsAt--
		return errTransient
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &model.AnalyticsBucket{
			SellerID:    key.SellerID,
			Granularity: key.Granularity,
			PeriodID:    key.PeriodID,
		}
		m.buckets[key] = b
	}
	b.Views += deltas.Views
	b.Likes += deltas.Likes
	b.Sales += deltas.Sales
	b.Revenue = b.Revenue.Add(deltas.Revenue)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memBucketStore) Get(_ context.Context, key storage.BucketKey) (*model.AnalyticsBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *memBucketStore) OverwriteTopProducts(_ context.Context, sellerID string, top []model.TopProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overwriteErr != nil {
		return m.overwriteErr
	}
	key := lifetimeKey(sellerID)
	b, ok := m.buckets[key]
	if !ok {
		b = &model.AnalyticsBucket{SellerID: sellerID, Granularity: key.Granularity, PeriodID: key.PeriodID}
		m.buckets[key] = b
	}
	b.TopProducts = top
	return nil
}

func (m *memBucketStore) OverwriteProductCount(_ context.Context, sellerID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := lifetimeKey(sellerID)
	b, ok := m.buckets[key]
	if !ok {
		b = &model.AnalyticsBucket{SellerID: sellerID, Granularity: key.Granularity, PeriodID: key.PeriodID}
		m.buckets[key] = b
	}
	b.Products = count
	return nil
}

func lifetimeKey(sellerID string) storage.BucketKey {
	return storage.BucketKey{SellerID: sellerID, Granularity: "total", PeriodID: "lifetime"}
}

var _ storage.BucketStore = (*memBucketStore)(nil)

// productStore is a minimal storage.EntityStore carrying only products.
// Seller-side operations are unused on the metering path.
type productStore struct {
	mu       sync.Mutex
	products map[string]*model.Product

	applyErr     error
	applyFailsAt int
	applyCalls   int
	topErr       error
}

func newProductStore() *productStore {
	return &productStore{products: make(map[string]*model.Product)}
}

func (s *productStore) add(p *model.Product) {
	s.products[p.ID] = p
}

func (s *productStore) ApplyProductEvent(_ context.Context, productID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyCalls++
	if s.applyErr != nil {
		return s.applyErr
	}
	if s.applyFailsAt > 0 {
		s.applyFailsAt--
		return errTransient
	}

	p, ok := s.products[productID]
	if !ok {
		return storage.ErrNotFound
	}
	switch eventType {
	case v1.EventView:
		p.Views++
	case v1.EventLike:
		p.Likes++
	case v1.EventSale:
		p.Sales++
	}
	return nil
}

func (s *productStore) TopProductsBySeller(_ context.Context, sellerID string, n int) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.topErr != nil {
		return nil, s.topErr
	}
	var out []model.Product
	for _, p := range s.products {
		if p.SellerID == sellerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *productStore) GetSeller(context.Context, string) (*model.Seller, error) {
	return nil, storage.ErrNotFound
}

func (s *productStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *productStore) ListProductsBySeller(context.Context, string) ([]model.Product, error) {
	return nil, nil
}

func (s *productStore) CountProductsBySeller(context.Context, string) (int, error) { return 0, nil }
func (s *productStore) CreateProduct(context.Context, *model.Product) error        { return nil }
func (s *productStore) DeleteProduct(context.Context, string, string) error        { return nil }
func (s *productStore) AdjustProductCount(context.Context, string, int) error      { return nil }
func (s *productStore) SetProductCount(context.Context, string, int) error         { return nil }
func (s *productStore) ResetNotificationWindow(context.Context, string, time.Time) error {
	return nil
}
func (s *productStore) IncrementNotificationCount(context.Context, string) error { return nil }
func (s *productStore) ActivatePremium(context.Context, string, time.Time) error { return nil }
func (s *productStore) DowngradeExpired(context.Context, string) error           { return nil }

var _ storage.EntityStore = (*productStore)(nil)

// memEventLog appends into a slice and hands out sequence numbers.
type memEventLog struct {
	mu     sync.Mutex
	events []*v1.ProductEvent

	appendErr     error
	appendFailsAt int
	appendCalls   int
}

func newMemEventLog() *memEventLog {
	return &memEventLog{}
}

func (l *memEventLog) Append(_ context.Context, event *v1.ProductEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.appendCalls++
	if l.appendErr != nil {
		return l.appendErr
	}
	if l.appendFailsAt > 0 {
		l.appendFailsAt--
		return errTransient
	}

	event.Seq = int64(len(l.events) + 1)
	l.events = append(l.events, event)
	return nil
}

func (l *memEventLog) RecentViewerAddresses(_ context.Context, sellerID string, since time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, e := range l.events {
		if e.SellerID != sellerID || e.Type != v1.EventView || e.ViewerAddress == "" {
			continue
		}
		if e.OccurredAt.Before(since) {
			continue
		}
		if _, dup := seen[e.ViewerAddress]; dup {
			continue
		}
		seen[e.ViewerAddress] = struct{}{}
		out = append(out, e.ViewerAddress)
	}
	return out, nil
}

func (l *memEventLog) InterestedAddresses(_ context.Context, sellerID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, e := range l.events {
		if e.SellerID != sellerID || e.Type != v1.EventLike || e.ViewerAddress == "" {
			continue
		}
		if _, dup := seen[e.ViewerAddress]; dup {
			continue
		}
		seen[e.ViewerAddress] = struct{}{}
		out = append(out, e.ViewerAddress)
	}
	return out, nil
}

var _ storage.EventLog = (*memEventLog)(nil)

// driftRecorder collects dirty marks.
type driftRecorder struct {
	mu    sync.Mutex
	marks []string
}

func (d *driftRecorder) MarkDirty(sellerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marks = append(d.marks, sellerID)
}

func (d *driftRecorder) marked(sellerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.marks {
		if id == sellerID {
			return true
		}
	}
	return false
}

var _ DriftSink = (*driftRecorder)(nil)
