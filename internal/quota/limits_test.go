package quota

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	free := limits.For(model.TierFree)
	require.Equal(t, 1, free.MaxProducts)
	require.Equal(t, 3, free.WeeklyNotifications)
	require.False(t, free.UnlimitedProducts)

	premium := limits.For(model.TierPremium)
	require.True(t, premium.UnlimitedProducts)
	require.True(t, premium.UnlimitedNotifications)
}

func TestLimitsForUnknownTier(t *testing.T) {
	limits := DefaultLimits()
	require.Equal(t, limits.For(model.TierFree), limits.For("enterprise"))
}

func TestLoadLimitsBuiltin(t *testing.T) {
	limits, fingerprint, err := LoadLimits("")
	require.NoError(t, err)
	require.Equal(t, "builtin", fingerprint)
	require.Equal(t, DefaultLimits(), limits)
}

func TestLoadLimitsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `free:
  max_products: 5
  weekly_notifications: 10
premium:
  unlimited_products: true
  unlimited_notifications: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	limits, fingerprint, err := LoadLimits(path)
	require.NoError(t, err)
	require.NotEqual(t, "builtin", fingerprint)
	require.Len(t, fingerprint, 64)
	require.Equal(t, 5, limits.For(model.TierFree).MaxProducts)
	require.Equal(t, 10, limits.For(model.TierFree).WeeklyNotifications)
}

func TestLoadLimitsRejectsMissingFreeTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("premium:\n  unlimited_products: true\n"), 0o644))

	_, _, err := LoadLimits(path)
	require.ErrorContains(t, err, "free tier must be defined")
}

func TestLoadLimitsRejectsNegativeLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("free:\n  max_products: -1\n"), 0o644))

	_, _, err := LoadLimits(path)
	require.ErrorContains(t, err, "must not be negative")
}

func TestLoadLimitsMissingFile(t *testing.T) {
	_, _, err := LoadLimits(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
