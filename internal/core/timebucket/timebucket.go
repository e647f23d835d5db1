package timebucket

import (
	"fmt"
	"time"
)

// Bucket granularities. Every recorded event lands in one bucket of each
// calendar granularity plus the lifetime total.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
	GranularityTotal = "total"
)

// PeriodTotal is the period identifier of the single lifetime bucket.
const PeriodTotal = "lifetime"

// BucketSet holds the canonical period identifiers for one instant.
type BucketSet struct {
	Day   string // YYYY-MM-DD
	Week  string // YYYY-Www, ISO-8601 week numbering
	Month string // YYYY-MM
}

// Resolve computes the day/week/month period identifiers for now.
// Pure and deterministic: duplicate calls within one logical event always
// target the same buckets. Timestamps are normalised to UTC first so the
// bucket boundary does not depend on the caller's zone.
//
// The week identifier uses ISO week numbering, so the year component near
// January 1st may differ from the calendar year (e.g. 2027-01-01 is 2026-W53).
func Resolve(now time.Time) BucketSet {
	now = now.UTC()
	isoYear, isoWeek := now.ISOWeek()
	return BucketSet{
		Day:   now.Format("2006-01-02"),
		Week:  fmt.Sprintf("%04d-W%02d", isoYear, isoWeek),
		Month: now.Format("2006-01"),
	}
}

// PeriodFor returns the period identifier of the given granularity.
func (b BucketSet) PeriodFor(granularity string) (string, error) {
	switch granularity {
	case GranularityDay:
		return b.Day, nil
	case GranularityWeek:
		return b.Week, nil
	case GranularityMonth:
		return b.Month, nil
	case GranularityTotal:
		return PeriodTotal, nil
	}
	return "", fmt.Errorf("unknown granularity %q", granularity)
}

// ValidGranularity reports whether g names a supported bucket granularity.
func ValidGranularity(g string) bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityTotal:
		return true
	}
	return false
}
