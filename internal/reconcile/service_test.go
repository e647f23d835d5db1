package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/session"
	"github.com/stretchr/testify/require"
)

// fakeEntities implements the slice of storage.EntityStore reconciliation
// touches; the embedded interface panics on anything else.
type fakeEntities struct {
	storage.EntityStore

	seller       *model.Seller
	trueCount    int
	getSellerErr error
	setCalls     []int
}

func (f *fakeEntities) GetSeller(_ context.Context, id string) (*model.Seller, error) {
	if f.getSellerErr != nil {
		return nil, f.getSellerErr
	}
	if f.seller == nil || f.seller.ID != id {
		return nil, storage.ErrNotFound
	}
	copied := *f.seller
	return &copied, nil
}

func (f *fakeEntities) CountProductsBySeller(context.Context, string) (int, error) {
	return f.trueCount, nil
}

func (f *fakeEntities) SetProductCount(_ context.Context, _ string, count int) error {
	f.setCalls = append(f.setCalls, count)
	f.seller.ProductCount = count
	return nil
}

type fakeBuckets struct {
	storage.BucketStore

	overwrites []int
}

func (f *fakeBuckets) OverwriteProductCount(_ context.Context, _ string, count int) error {
	f.overwrites = append(f.overwrites, count)
	return nil
}

type failingSessionStore struct{}

func (failingSessionStore) TryAcquire(context.Context, string, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestReconcileProductCountCorrectsDrift(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	buckets := &fakeBuckets{}
	svc := NewService(entities, buckets, session.NewMemoryStore(time.Minute))

	result, err := svc.ReconcileProductCount(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, result.DriftDetected)
	require.Equal(t, 5, result.PreviousCount)
	require.Equal(t, 2, result.ProductCount)
	require.Equal(t, []int{2}, entities.setCalls)
	require.Equal(t, []int{2}, buckets.overwrites)
}

func TestReconcileProductCountIdempotent(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	buckets := &fakeBuckets{}
	svc := NewService(entities, buckets, session.NewMemoryStore(time.Minute))

	_, err := svc.ReconcileProductCount(context.Background(), "s-1")
	require.NoError(t, err)

	result, err := svc.ReconcileProductCount(context.Background(), "s-1")
	require.NoError(t, err)
	require.False(t, result.DriftDetected, "second pass converges")
	require.Equal(t, 2, result.ProductCount)
}

func TestReconcileProductCountUnknownSeller(t *testing.T) {
	svc := NewService(&fakeEntities{}, &fakeBuckets{}, session.NewMemoryStore(time.Minute))

	_, err := svc.ReconcileProductCount(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReconcileOnSessionRunsOncePerSession(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	svc := NewService(entities, &fakeBuckets{}, session.NewMemoryStore(time.Minute))
	ctx := context.Background()

	result, err := svc.ReconcileOnSession(ctx, "sess-1", "s-1")
	require.NoError(t, err)
	require.False(t, result.Skipped)

	result, err = svc.ReconcileOnSession(ctx, "sess-1", "s-1")
	require.NoError(t, err)
	require.True(t, result.Skipped, "guard holds for the rest of the session")
	require.Len(t, entities.setCalls, 1)

	// A new session runs again.
	result, err = svc.ReconcileOnSession(ctx, "sess-2", "s-1")
	require.NoError(t, err)
	require.False(t, result.Skipped)
}

func TestReconcileOnSessionDirtyOverridesGuard(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	svc := NewService(entities, &fakeBuckets{}, session.NewMemoryStore(time.Minute))
	ctx := context.Background()

	_, err := svc.ReconcileOnSession(ctx, "sess-1", "s-1")
	require.NoError(t, err)

	// A dropped metering write flags the seller; the session guard must not
	// delay the correction.
	svc.MarkDirty("s-1")
	entities.trueCount = 3

	result, err := svc.ReconcileOnSession(ctx, "sess-1", "s-1")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Equal(t, 3, result.ProductCount)
	require.Empty(t, svc.DirtySellers(), "a successful pass clears the flag")
}

func TestReconcileOnSessionSkipsWhenGuardUnavailable(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	svc := NewService(entities, &fakeBuckets{}, failingSessionStore{})

	result, err := svc.ReconcileOnSession(context.Background(), "sess-1", "s-1")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Empty(t, entities.setCalls)
}

func TestReconcileDirtyDrainsFlaggedSellers(t *testing.T) {
	entities := &fakeEntities{
		seller:    &model.Seller{ID: "s-1", ProductCount: 5},
		trueCount: 2,
	}
	svc := NewService(entities, &fakeBuckets{}, session.NewMemoryStore(time.Minute))

	svc.MarkDirty("s-1")
	svc.MarkDirty("ghost")

	results := svc.ReconcileDirty(context.Background())
	require.Len(t, results, 1, "only the known seller corrects")
	require.Equal(t, 2, results[0].ProductCount)
	require.Equal(t, []string{"ghost"}, svc.DirtySellers(), "failed correction stays flagged")
}

func TestReconcileOnSessionKeepsDirtyFlagOnFailure(t *testing.T) {
	entities := &fakeEntities{
		seller:       &model.Seller{ID: "s-1"},
		getSellerErr: errors.New("db down"),
	}
	svc := NewService(entities, &fakeBuckets{}, session.NewMemoryStore(time.Minute))

	svc.MarkDirty("s-1")
	_, err := svc.ReconcileOnSession(context.Background(), "sess-1", "s-1")
	require.Error(t, err)
	require.Equal(t, []string{"s-1"}, svc.DirtySellers(), "failed correction stays flagged")
}
