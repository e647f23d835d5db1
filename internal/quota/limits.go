package quota

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/makola-lab/project-makola/internal/core/model"
	"gopkg.in/yaml.v3"
)

// TierLimits defines the gated-resource limits of one subscription tier.
type TierLimits struct {
	MaxProducts            int  `yaml:"max_products"`
	WeeklyNotifications    int  `yaml:"weekly_notifications"`
	UnlimitedProducts      bool `yaml:"unlimited_products"`
	UnlimitedNotifications bool `yaml:"unlimited_notifications"`
}

// Limits maps tier name to its limits.
type Limits map[string]TierLimits

// DefaultLimits returns the built-in tier table: free sellers may list one
// product and send three notifications per week; premium is unlimited.
func DefaultLimits() Limits {
	return Limits{
		model.TierFree: {
			MaxProducts:         1,
			WeeklyNotifications: 3,
		},
		model.TierPremium: {
			UnlimitedProducts:      true,
			UnlimitedNotifications: true,
		},
	}
}

// For returns the limits of a tier, defaulting to free for unknown tiers.
func (l Limits) For(tier string) TierLimits {
	if limits, ok := l[tier]; ok {
		return limits
	}
	return l[model.TierFree]
}

// LoadLimits reads a tier-limit table from a YAML file. An empty path returns
// the built-in defaults. The file is fingerprinted at load time so operators
// can tell which table a running instance carries.
//
// File shape:
//
//	free:
//	  max_products: 1
//	  weekly_notifications: 3
//	premium:
//	  unlimited_products: true
//	  unlimited_notifications: true
func LoadLimits(path string) (Limits, string, error) {
	if path == "" {
		return DefaultLimits(), "builtin", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading tier limits file %s: %w", path, err)
	}

	var limits Limits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, "", fmt.Errorf("parsing tier limits file %s: %w", path, err)
	}

	if _, ok := limits[model.TierFree]; !ok {
		return nil, "", fmt.Errorf("tier limits file %s: free tier must be defined", path)
	}

	for tier, tl := range limits {
		if !tl.UnlimitedProducts && tl.MaxProducts < 0 {
			return nil, "", fmt.Errorf("tier %q: max_products must not be negative", tier)
		}
		if !tl.UnlimitedNotifications && tl.WeeklyNotifications < 0 {
			return nil, "", fmt.Errorf("tier %q: weekly_notifications must not be negative", tier)
		}
	}

	fingerprint := fmt.Sprintf("%x", sha256.Sum256(data))
	return limits, fingerprint, nil
}
