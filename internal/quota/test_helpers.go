package quota

import (
	"context"
	"time"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

// memEntityStore is an in-memory storage.EntityStore for tests. Error fields
// inject failures per operation.
type memEntityStore struct {
	sellers  map[string]*model.Seller
	products map[string]*model.Product

	getSellerErr   error
	resetWindowErr error
	downgradeErr   error
	createErr      error
	adjustErr      error

	downgradeCalls int
	resetCalls     int
}

func newMemEntityStore() *memEntityStore {
	return &memEntityStore{
		sellers:  make(map[string]*model.Seller),
		products: make(map[string]*model.Product),
	}
}

func (m *memEntityStore) addSeller(s *model.Seller) {
	m.sellers[s.ID] = s
}

func (m *memEntityStore) GetSeller(_ context.Context, id string) (*model.Seller, error) {
	if m.getSellerErr != nil {
		return nil, m.getSellerErr
	}
	s, ok := m.sellers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memEntityStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memEntityStore) ListProductsBySeller(_ context.Context, sellerID string) ([]model.Product, error) {
	var out []model.Product
	for _, p := range m.products {
		if p.SellerID == sellerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memEntityStore) TopProductsBySeller(_ context.Context, sellerID string, n int) ([]model.Product, error) {
	products, _ := m.ListProductsBySeller(context.Background(), sellerID)
	if len(products) > n {
		products = products[:n]
	}
	return products, nil
}

func (m *memEntityStore) CountProductsBySeller(_ context.Context, sellerID string) (int, error) {
	count := 0
	for _, p := range m.products {
		if p.SellerID == sellerID {
			count++
		}
	}
	return count, nil
}

func (m *memEntityStore) CreateProduct(_ context.Context, p *model.Product) error {
	if m.createErr != nil {
		return m.createErr
	}
	copied := *p
	m.products[p.ID] = &copied
	return nil
}

func (m *memEntityStore) DeleteProduct(_ context.Context, sellerID, productID string) error {
	p, ok := m.products[productID]
	if !ok || p.SellerID != sellerID {
		return storage.ErrNotFound
	}
	delete(m.products, productID)
	return nil
}

func (m *memEntityStore) ApplyProductEvent(_ context.Context, productID, eventType string) error {
	p, ok := m.products[productID]
	if !ok {
		return storage.ErrNotFound
	}
	switch eventType {
	case "view":
		p.Views++
	case "like":
		p.Likes++
	case "sale":
		p.Sales++
	}
	return nil
}

func (m *memEntityStore) AdjustProductCount(_ context.Context, sellerID string, delta int) error {
	if m.adjustErr != nil {
		return m.adjustErr
	}
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	s.ProductCount += delta
	if s.ProductCount < 0 {
		s.ProductCount = 0
	}
	return nil
}

func (m *memEntityStore) SetProductCount(_ context.Context, sellerID string, count int) error {
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	s.ProductCount = count
	return nil
}

func (m *memEntityStore) ResetNotificationWindow(_ context.Context, sellerID string, resetAt time.Time) error {
	if m.resetWindowErr != nil {
		return m.resetWindowErr
	}
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	m.resetCalls++
	s.WeeklyNotificationCount = 0
	s.NotificationWindowResetAt = resetAt
	return nil
}

func (m *memEntityStore) IncrementNotificationCount(_ context.Context, sellerID string) error {
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	s.WeeklyNotificationCount++
	return nil
}

func (m *memEntityStore) ActivatePremium(_ context.Context, sellerID string, expiresAt time.Time) error {
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	s.Tier = model.TierPremium
	s.SubscriptionExpiresAt = &expiresAt
	return nil
}

func (m *memEntityStore) DowngradeExpired(_ context.Context, sellerID string) error {
	if m.downgradeErr != nil {
		return m.downgradeErr
	}
	s, ok := m.sellers[sellerID]
	if !ok {
		return storage.ErrNotFound
	}
	m.downgradeCalls++
	s.Tier = model.TierFree
	s.SubscriptionExpiresAt = nil
	return nil
}

var _ storage.EntityStore = (*memEntityStore)(nil)
