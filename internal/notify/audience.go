package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/makola-lab/project-makola/internal/core/storage"
)

// Audience specifications. Scoped specs (recent viewers, interested) resolve
// from the event log; the rest from the device registry.
const (
	AudienceAll           = "all"
	AudienceVerified      = "verified"
	AudienceRecentViewers = "recent_viewers"
	AudienceInterested    = "interested"
)

// ValidAudience reports whether spec names a supported audience.
func ValidAudience(spec string) bool {
	switch spec {
	case AudienceAll, AudienceVerified, AudienceRecentViewers, AudienceInterested:
		return true
	}
	return false
}

// Resolver turns an audience specification into a deduplicated address list.
type Resolver struct {
	devices      storage.DeviceStore
	events       storage.EventLog
	viewerWindow time.Duration
	nowFn        func() time.Time
}

// NewResolver creates an audience resolver. viewerWindow bounds the
// recent-viewers lookback (7 days by default).
func NewResolver(devices storage.DeviceStore, events storage.EventLog, viewerWindow time.Duration) *Resolver {
	if viewerWindow <= 0 {
		viewerWindow = 7 * 24 * time.Hour
	}
	return &Resolver{
		devices:      devices,
		events:       events,
		viewerWindow: viewerWindow,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Resolve returns the deduplicated delivery addresses for the spec.
//
// When a scoped resolver fails (the underlying signal is unavailable), the
// resolution falls back to the broadest audience rather than blocking the
// send. Availability over precision; fellBack surfaces the substitution to
// the caller instead of hiding it.
func (r *Resolver) Resolve(ctx context.Context, spec, sellerID string) (addresses []string, fellBack bool, err error) {
	switch spec {
	case AudienceAll:
		addresses, err = r.devices.AllAddresses(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("resolve audience %q: %w", spec, err)
		}
	case AudienceVerified:
		addresses, err = r.devices.VerifiedAddresses(ctx)
	case AudienceRecentViewers:
		addresses, err = r.events.RecentViewerAddresses(ctx, sellerID, r.nowFn().Add(-r.viewerWindow))
	case AudienceInterested:
		addresses, err = r.events.InterestedAddresses(ctx, sellerID)
	default:
		return nil, false, fmt.Errorf("unknown audience spec %q", spec)
	}

	if err != nil {
		slog.Warn("[Notify] Audience resolution failed, falling back to all",
			"spec", spec, "seller_id", sellerID, "error", err)
		addresses, err = r.devices.AllAddresses(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("resolve fallback audience: %w", err)
		}
		fellBack = true
	}

	return dedupe(addresses), fellBack, nil
}

// dedupe removes duplicate and empty addresses, returning a sorted list so
// batching is deterministic.
func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
